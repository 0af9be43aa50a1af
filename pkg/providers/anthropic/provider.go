package anthropicprovider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tinyland-inc/lupos/pkg/providers"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultMaxTokens = 1024
	backendName      = "anthropic"
)

type Provider struct {
	client  *anthropic.Client
	baseURL string
}

type Config struct {
	APIKey  string
	APIBase string
	Timeout time.Duration
}

func NewProvider(cfg Config) *Provider {
	baseURL := normalizeBaseURL(cfg.APIBase)
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(1),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	client := anthropic.NewClient(opts...)
	return &Provider{
		client:  &client,
		baseURL: baseURL,
	}
}

func NewProviderWithClient(client *anthropic.Client) *Provider {
	return &Provider{
		client:  client,
		baseURL: defaultBaseURL,
	}
}

func (p *Provider) BaseURL() string {
	return p.baseURL
}

func (p *Provider) Generate(ctx context.Context, req providers.TextRequest) (string, error) {
	resp, err := p.client.Messages.New(ctx, buildParams(req))
	if err != nil {
		return "", mapError(err)
	}
	return parseResponse(resp), nil
}

// Describe sends the image by URL alongside the instruction.
func (p *Provider) Describe(ctx context.Context, imageURL, instruction, model string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: imageURL}),
				anthropic.NewTextBlock(instruction),
			),
		},
	}
	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", mapError(err)
	}
	return parseResponse(resp), nil
}

// buildParams moves system entries into the system blocks and sends the
// rest as alternating turns. Anthropic has no per-message name, so the
// conversation is flattened first.
func buildParams(req providers.TextRequest) anthropic.MessageNewParams {
	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam

	for _, msg := range providers.Flatten(req.Messages) {
		switch msg.Role {
		case providers.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case providers.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case providers.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	maxTokens := int64(defaultMaxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	return params
}

func parseResponse(resp *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return sb.String()
}

func mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return providers.MapStatus(backendName, apiErr.StatusCode, apiErr.Error())
	}
	return providers.MapConnectionError(backendName, err)
}

func normalizeBaseURL(apiBase string) string {
	base := strings.TrimSpace(apiBase)
	if base == "" {
		return defaultBaseURL
	}

	base = strings.TrimRight(base, "/")
	if b, ok := strings.CutSuffix(base, "/v1"); ok {
		base = b
	}
	if base == "" {
		return defaultBaseURL
	}

	return base
}
