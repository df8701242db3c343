package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"confirmit/internal/scan/models"
)

const (
	defaultModel = "gpt-4o-mini"
	maxTokens    = 1024
)

const systemPrompt = `You inspect photographs and scans of payment receipts and bank transfer
confirmations for signs of tampering. Reply with a single JSON object:
{"trust_score": 0-100, "verdict": "authentic"|"suspicious"|"fraudulent"|"unclear",
 "issues": [short strings], "summary": short string,
 "merchant": {"name": string, "account_number": string, "bank_code": string}}.
Omit merchant fields you cannot read. Never invent an account number.`

// OpenAIAnalyzer uses a vision capable chat model as the analysis oracle.
type OpenAIAnalyzer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

type OpenAIOption func(*OpenAIAnalyzer)

func WithOpenAILogger(logger *slog.Logger) OpenAIOption {
	return func(a *OpenAIAnalyzer) {
		a.logger = logger
	}
}

// WithOpenAIClient replaces the API client, e.g. to point at a proxy.
func WithOpenAIClient(c *openai.Client) OpenAIOption {
	return func(a *OpenAIAnalyzer) {
		a.client = c
	}
}

func NewOpenAI(apiKey, model string, timeout time.Duration, opts ...OpenAIOption) *OpenAIAnalyzer {
	if model == "" {
		model = defaultModel
	}
	a := &OpenAIAnalyzer{
		client:  openai.NewClient(apiKey),
		model:   model,
		timeout: timeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, req Request) (*models.Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	instructions := "Analyze this receipt."
	if req.IncludeForensics {
		instructions += " Look closely for edited digits, mismatched fonts and inconsistent timestamps."
	}
	if req.CheckReputation {
		instructions += " Extract the payee account details."
	}

	chatReq := openai.ChatCompletionRequest{
		Model: a.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: instructions},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    req.ImageURL,
					Detail: openai.ImageURLDetailHigh,
				}},
			}},
		},
	}
	// reasoning models reject max_tokens
	if strings.HasPrefix(a.model, "o1") || strings.HasPrefix(a.model, "o3") || strings.HasPrefix(a.model, "o4") || strings.HasPrefix(a.model, "gpt-5") {
		chatReq.MaxCompletionTokens = maxTokens
	} else {
		chatReq.MaxTokens = maxTokens
	}

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrBadResponse)
	}

	var r result
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	analysis, err := r.normalize()
	if err != nil {
		return nil, err
	}
	analysis.ProcessingTimeMS = time.Since(start).Milliseconds()
	a.logger.DebugContext(ctx, "openai analysis finished",
		"model", a.model,
		"total_tokens", resp.Usage.TotalTokens,
		"verdict", analysis.Verdict,
	)
	return analysis, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 && reqErr.HTTPStatusCode < 500 {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
