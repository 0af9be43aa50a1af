// Package localprovider talks to a self-hosted OpenAI-compatible server
// (llama.cpp, Ollama, vLLM).
package localprovider

import (
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go/v3/option"

	"github.com/tinyland-inc/lupos/pkg/providers"
	openaiprovider "github.com/tinyland-inc/lupos/pkg/providers/openai"
)

type Config struct {
	APIBase     string
	Temperature float64
	Timeout     time.Duration
}

type Provider struct {
	inner       *openaiprovider.Provider
	temperature float64
}

func NewProvider(cfg Config, extra ...option.RequestOption) *Provider {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return &Provider{
		inner: openaiprovider.NewProvider(openaiprovider.Config{
			APIBase: base,
			Timeout: cfg.Timeout,
			Name:    "local",
		}, extra...),
		temperature: cfg.Temperature,
	}
}

// Generate flattens the conversation since local chat templates reject
// names and repeated roles.
func (p *Provider) Generate(ctx context.Context, req providers.TextRequest) (string, error) {
	req.Messages = providers.Flatten(req.Messages)
	if req.Temperature == nil && p.temperature > 0 {
		t := p.temperature
		req.Temperature = &t
	}
	text, err := p.inner.Generate(ctx, req)
	return strings.TrimSpace(text), err
}
