package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/mikey/subscription-sentry/internal/core"
	"github.com/mikey/subscription-sentry/internal/utils"
)

// BedrockClient is an implementation of the ModelClient interface using Amazon Bedrock
type BedrockClient struct {
	client        *bedrockruntime.Client
	modelID       string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
	promptFormat  string
}

// NewBedrockClient creates a new Bedrock client
func NewBedrockClient(
	client *bedrockruntime.Client,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *BedrockClient {
	return &BedrockClient{
		client:        client,
		modelID:       modelID,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
		promptFormat:  subscriptionPromptFormat,
	}
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

// ExtractSubscription asks the Bedrock model for the structured subscription fields
func (c *BedrockClient) ExtractSubscription(ctx context.Context, msg *core.EmailMessage) (*core.ModelReply, error) {
	body := c.textProcessor.ProcessText(msg.Body, c.maxBodySize)
	prompt := fmt.Sprintf(c.promptFormat, msg.SenderAddress, msg.Subject, msg.ReceivedAt.Format(time.RFC1123), body)

	var payload []byte
	var err error
	switch {
	case c.isAnthropicModel():
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":               prompt,
			"max_tokens_to_sample": c.maxTokens,
			"temperature":          c.temperature,
			"top_p":                c.topP,
		})
	case c.isAmazonTitanModel():
		payload, err = json.Marshal(map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": c.maxTokens,
				"temperature":   c.temperature,
				"topP":          c.topP,
			},
		})
	default:
		payload, err = json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  c.maxTokens,
			"temperature": c.temperature,
			"top_p":       c.topP,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &c.modelID,
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	responseText, err := c.responseText(resp.Body)
	if err != nil {
		return nil, err
	}

	reply, err := parseModelReply(responseText)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Bedrock extraction complete",
		zap.String("message_id", msg.ID),
		zap.Bool("is_subscription", reply.IsSubscription),
		zap.String("model_id", c.modelID))
	return reply, nil
}

// responseText pulls the completion text out of the model-family-specific
// response envelope
func (c *BedrockClient) responseText(body []byte) (string, error) {
	if c.isAnthropicModel() {
		var claudeResp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		return claudeResp.Completion, nil
	}

	if c.isAmazonTitanModel() {
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", fmt.Errorf("empty response from Titan model")
		}
		return titanResp.Results[0].OutputText, nil
	}

	var genericResp struct {
		Output   string `json:"output"`
		Text     string `json:"text"`
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &genericResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal generic response: %w", err)
	}
	switch {
	case genericResp.Output != "":
		return genericResp.Output, nil
	case genericResp.Text != "":
		return genericResp.Text, nil
	case genericResp.Response != "":
		return genericResp.Response, nil
	}
	return string(body), nil
}

// isAnthropicModel checks if the model is an Anthropic Claude model
func (c *BedrockClient) isAnthropicModel() bool {
	return strings.HasPrefix(c.modelID, "anthropic.claude")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func (c *BedrockClient) isAmazonTitanModel() bool {
	return strings.HasPrefix(c.modelID, "amazon.titan")
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
