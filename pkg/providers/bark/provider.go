// Package barkprovider synthesizes speech through a self-hosted Bark server.
// The server writes the audio next to itself and answers with the file name.
package barkprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tinyland-inc/lupos/pkg/providers"
)

const backendName = "bark"

type Config struct {
	APIBase string
	Voice   string
	Timeout time.Duration
}

type Provider struct {
	base   string
	voice  string
	client *http.Client
}

type generateRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

type generateResponse struct {
	FileName string `json:"file_name"`
}

func NewProvider(cfg Config) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Provider{
		base:   strings.TrimRight(cfg.APIBase, "/"),
		voice:  cfg.Voice,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Synthesize(ctx context.Context, text string) (providers.Voice, error) {
	body, err := json.Marshal(generateRequest{Text: text, Voice: p.voice})
	if err != nil {
		return providers.Voice{}, fmt.Errorf("marshal bark request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+"/generate", bytes.NewReader(body))
	if err != nil {
		return providers.Voice{}, fmt.Errorf("%s: %w: %w", backendName, providers.ErrBackend, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return providers.Voice{}, providers.MapConnectionError(backendName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return providers.Voice{}, providers.MapConnectionError(backendName, err)
	}
	if err := providers.MapStatus(backendName, resp.StatusCode, string(raw)); err != nil {
		return providers.Voice{}, err
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return providers.Voice{}, fmt.Errorf("%s: %w: decode response: %w", backendName, providers.ErrBackend, err)
	}
	if out.FileName == "" {
		return providers.Voice{}, fmt.Errorf("%s: %w", backendName, providers.ErrEmptyResponse)
	}
	return providers.Voice{Filename: out.FileName}, nil
}
