package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/mikey/subscription-sentry/internal/config"
	"github.com/mikey/subscription-sentry/internal/core"
	"github.com/mikey/subscription-sentry/internal/extract"
	"github.com/mikey/subscription-sentry/internal/factory"
	"github.com/mikey/subscription-sentry/internal/logging"
	"github.com/mikey/subscription-sentry/internal/policy"
	"github.com/mikey/subscription-sentry/internal/registry"
	"github.com/mikey/subscription-sentry/internal/utils"
	"go.uber.org/zap"
)

var (
	// Model backend flags
	useModel    = flag.Bool("use-model", false, "Enable the model-based extractor")
	provider    = flag.String("provider", "openai", "Model provider (openai, gemini, bedrock)")
	maxTokens   = flag.Int("max-tokens", 1000, "Maximum tokens for model response")
	temperature = flag.Float64("temperature", 0.1, "Temperature for model generation")
	topP        = flag.Float64("top-p", 0.9, "Top-p for model generation")
	maxBodySize = flag.Int("max-body-size", 1500, "Maximum email body size to send to the model")

	// Bedrock flags
	bedrockRegion  = flag.String("bedrock-region", "us-east-1", "AWS region for Bedrock")
	bedrockModelID = flag.String("bedrock-model", "anthropic.claude-v2", "Bedrock model ID")

	// Gemini flags
	geminiAPIKey    = flag.String("gemini-api-key", "", "API key for Google Gemini")
	geminiModelName = flag.String("gemini-model", "gemini-pro", "Gemini model name")

	// OpenAI flags
	openaiAPIKey    = flag.String("openai-api-key", "", "API key for OpenAI")
	openaiModelName = flag.String("openai-model", "gpt-4", "OpenAI model name")

	// Pipeline flags
	minConfidence  = flag.Float64("threshold", 0.9, "Minimum confidence for auto-acceptance")
	extraMerchants = flag.String("merchants", "", "Comma-separated list of extra known merchants")

	// Input flags
	inputFile  = flag.String("file", "", "Input email file (use stdin if not specified)")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog    = flag.Bool("json-log", false, "Output logs in JSON format")
	configFile = flag.String("config", "", "Path to config file (overrides command line flags)")
)

func main() {
	flag.Parse()

	var cfg *config.Config
	var err error

	// Initialize logger
	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration from file if specified
	if *configFile != "" {
		cfg, err = config.New()
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		// Create config from command line flags
		cfg = createConfigFromFlags()
	}

	// Build the merchant registry
	merchants := cfg.GetPipeline().ExtraMerchants
	var reg *registry.Registry
	if len(merchants) > 0 {
		logger.Info("Extending merchant registry", zap.Strings("extra", merchants))
		reg = registry.NewWithNames(append(registry.New(logger).Names(), merchants...), logger)
	} else {
		reg = registry.New(logger)
	}

	// Initialize the model client (nil when disabled)
	textProcessor := utils.NewTextProcessor(logger)
	modelClient, err := factory.NewModelFactory(cfg, logger, textProcessor).CreateModelClient()
	if err != nil {
		logger.Fatal("Failed to create model client", zap.Error(err))
	}

	// Assemble the pipeline with no persistence
	service := core.NewExtractionService(
		extract.NewPrefilter(logger),
		modelClient,
		extract.NewRuleBasedExtractor(reg, logger),
		policy.New(reg, cfg.GetPipeline().MinConfidence),
		nil,
		reg,
		logger,
		0,
	)

	// Read email from file or stdin
	var emailReader io.Reader
	if *inputFile != "" {
		file, err := os.Open(*inputFile)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", *inputFile))
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", *inputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	// Parse email
	msg, err := mail.ReadMessage(bufio.NewReader(emailReader))
	if err != nil {
		logger.Fatal("Failed to parse email", zap.Error(err))
	}

	from := msg.Header.Get("From")
	subject := msg.Header.Get("Subject")

	bodyBytes, err := io.ReadAll(msg.Body)
	if err != nil {
		logger.Fatal("Failed to read email body", zap.Error(err))
	}
	body := string(bodyBytes)

	senderName, senderAddr := splitFrom(from)
	email := &core.EmailMessage{
		ID:            msg.Header.Get("Message-Id"),
		Subject:       subject,
		SenderName:    senderName,
		SenderAddress: senderAddr,
		Body:          body,
		ReceivedAt:    time.Now(),
	}

	// Print email summary
	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", from)
	fmt.Printf("Subject: %s\n", subject)
	fmt.Printf("Body length: %d bytes\n", len(body))
	fmt.Printf("\n")

	fmt.Printf("=== Analysis ===\n")
	if modelClient != nil {
		fmt.Printf("Model provider: %s\n", cfg.GetModel().Provider)
	} else {
		fmt.Printf("Model provider: disabled (rule-based only)\n")
	}
	fmt.Printf("Acceptance threshold: %.2f\n", cfg.GetPipeline().MinConfidence)

	startTime := time.Now()
	result, decision := service.Triage(context.Background(), email)
	duration := time.Since(startTime)

	// Print results
	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Outcome: %s (%s)\n", decision.Outcome, decision.Reason)
	if result.ServiceName != nil {
		fmt.Printf("Service: %s (confidence %.2f, registry: %t)\n",
			result.ServiceName.Value, result.ServiceName.Confidence, result.ServiceName.FromRegistry)
	} else {
		fmt.Printf("Service: <none>\n")
	}
	printDate("Trial ends", result.TrialEnd)
	printDate("First charge", result.FirstCharge)
	printDate("Renews", result.Renewal)
	if result.Amount > 0 {
		fmt.Printf("Amount: %.2f %s\n", result.Amount, result.Currency)
	}
	if result.BillingCycle != "" {
		fmt.Printf("Billing cycle: %s\n", result.BillingCycle)
	}
	fmt.Printf("Confidence: %.4f\n", result.Confidence)
	fmt.Printf("Needs review: %t\n", result.NeedsReview)
	fmt.Printf("Backend: %s\n", result.Backend)
	if len(result.MatchedPhrases) > 0 {
		fmt.Printf("Matched phrases: %s\n", strings.Join(result.MatchedPhrases, "; "))
	}
	fmt.Printf("Processing time: %v\n", duration)

	// Close any resources that need closing
	if closer, ok := modelClient.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close model client", zap.Error(err))
		}
	}
}

func printDate(label, iso string) {
	if iso != "" {
		fmt.Printf("%s: %s\n", label, iso)
	}
}

// splitFrom breaks an RFC 5322 From header into display name and address,
// tolerating bare addresses
func splitFrom(from string) (string, string) {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return "", strings.TrimSpace(from)
	}
	return addr.Name, addr.Address
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags() *config.Config {
	v := config.NewEmptyViper()

	v.Set("model.enabled", *useModel)
	v.Set("model.provider", *provider)

	// Set provider-specific configuration
	switch *provider {
	case "bedrock":
		v.Set("bedrock.region", *bedrockRegion)
		v.Set("bedrock.model_id", *bedrockModelID)
		v.Set("bedrock.max_tokens", *maxTokens)
		v.Set("bedrock.temperature", *temperature)
		v.Set("bedrock.top_p", *topP)
		v.Set("bedrock.max_body_size", *maxBodySize)
	case "gemini":
		v.Set("gemini.api_key", *geminiAPIKey)
		v.Set("gemini.model_name", *geminiModelName)
		v.Set("gemini.max_tokens", *maxTokens)
		v.Set("gemini.temperature", *temperature)
		v.Set("gemini.top_p", *topP)
		v.Set("gemini.max_body_size", *maxBodySize)
	case "openai":
		v.Set("openai.api_key", *openaiAPIKey)
		v.Set("openai.model_name", *openaiModelName)
		v.Set("openai.max_tokens", *maxTokens)
		v.Set("openai.temperature", *temperature)
		v.Set("openai.top_p", *topP)
		v.Set("openai.max_body_size", *maxBodySize)
	}

	v.Set("pipeline.min_confidence", *minConfidence)

	if *extraMerchants != "" {
		names := strings.Split(*extraMerchants, ",")
		for i, name := range names {
			names[i] = strings.TrimSpace(name)
		}
		v.Set("pipeline.extra_merchants", names)
	} else {
		v.Set("pipeline.extra_merchants", []string{})
	}

	return config.NewFromViper(v)
}
