package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mikey/subscription-sentry/internal/core"
	"github.com/mikey/subscription-sentry/internal/utils"
)

// OpenAIClient is an implementation of the ModelClient interface using OpenAI
type OpenAIClient struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
	promptFormat  string
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *OpenAIClient {
	return &OpenAIClient{
		client:        client,
		modelName:     modelName,
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

// ExtractSubscription asks OpenAI for the structured subscription fields
func (c *OpenAIClient) ExtractSubscription(ctx context.Context, msg *core.EmailMessage) (*core.ModelReply, error) {
	body := c.textProcessor.ProcessText(msg.Body, c.maxBodySize)
	prompt := fmt.Sprintf(c.promptFormat, msg.SenderAddress, msg.Subject, msg.ReceivedAt.Format(time.RFC1123), body)

	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a subscription detection system. Respond only with JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	reply, err := parseModelReply(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("OpenAI extraction complete",
		zap.String("message_id", msg.ID),
		zap.Bool("is_subscription", reply.IsSubscription),
		zap.String("processing_id", resp.ID))
	return reply, nil
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
