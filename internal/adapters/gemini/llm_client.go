package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/mikey/subscription-sentry/internal/core"
	"github.com/mikey/subscription-sentry/internal/utils"
)

// GeminiClient is an implementation of the ModelClient interface using Google Gemini
type GeminiClient struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	modelName     string
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
	promptFormat  string
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) (*GeminiClient, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))

	return &GeminiClient{
		client:        client,
		model:         model,
		modelName:     modelName,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
		promptFormat:  subscriptionPromptFormat,
	}, nil
}

const subscriptionPromptFormat = `You are a subscription detection system. Analyze the following email and decide whether it documents a user signing up for a PAID recurring service.
Be maximally conservative: reject anything that is not unambiguously a paid-service confirmation from a well-known company. Newsletters, one-off purchase receipts, marketing and shipping mail are not subscriptions.
Respond with a JSON object containing:
- is_subscription: boolean
- service_name: string (the merchant name, empty if unknown)
- type: string ("trial" or "paid")
- amount: number (0 if unknown)
- currency: string (ISO code, empty if unknown)
- billing_cycle: string ("daily", "weekly", "monthly" or "yearly", empty if unknown)
- trial_end_date: string (YYYY-MM-DD, empty if not stated)
- first_charge_date: string (YYYY-MM-DD, empty if not stated)
- renewal_date: string (YYYY-MM-DD, empty if not stated)
- start_date: string (YYYY-MM-DD, empty if not stated)
- cancel_url: string (empty if none)
- confidence: number between 0 and 1

Email:
From: %s
Subject: %s
Received: %s
Body:
%s

Respond only with the JSON object and nothing else.`

// ExtractSubscription asks Gemini for the structured subscription fields
func (c *GeminiClient) ExtractSubscription(ctx context.Context, msg *core.EmailMessage) (*core.ModelReply, error) {
	body := c.textProcessor.ProcessText(msg.Body, c.maxBodySize)
	prompt := fmt.Sprintf(c.promptFormat, msg.SenderAddress, msg.Subject, msg.ReceivedAt.Format(time.RFC1123), body)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return nil, fmt.Errorf("unexpected response part type from Gemini")
	}

	reply, err := parseModelReply(string(text))
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Gemini extraction complete",
		zap.String("message_id", msg.ID),
		zap.Bool("is_subscription", reply.IsSubscription))
	return reply, nil
}

// Close releases the underlying API client
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// parseModelReply parses the backend's JSON, salvaging replies where the
// object is wrapped in extra prose by scanning for the outermost braces
func parseModelReply(responseText string) (*core.ModelReply, error) {
	var reply core.ModelReply
	if err := json.Unmarshal([]byte(responseText), &reply); err == nil {
		return &reply, nil
	}

	jsonStart := -1
	jsonEnd := -1
	for i := 0; i < len(responseText); i++ {
		if responseText[i] == '{' {
			jsonStart = i
			break
		}
	}
	for i := len(responseText) - 1; i >= 0; i-- {
		if responseText[i] == '}' {
			jsonEnd = i + 1
			break
		}
	}
	if jsonStart < 0 || jsonEnd <= jsonStart {
		return nil, fmt.Errorf("failed to extract JSON from model response")
	}
	if err := json.Unmarshal([]byte(responseText[jsonStart:jsonEnd]), &reply); err != nil {
		return nil, fmt.Errorf("failed to parse model response as JSON: %w", err)
	}
	return &reply, nil
}
