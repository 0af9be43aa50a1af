package geminiprovider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/tinyland-inc/lupos/pkg/providers"
)

const (
	backendName   = "gemini"
	maxImageBytes = 20 << 20
)

type Config struct {
	APIKey  string
	APIBase string
	Timeout time.Duration
	// HTTPClient fetches images for Describe and carries API calls.
	HTTPClient *http.Client
}

type Provider struct {
	client *genai.Client
	http   *http.Client
}

func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	}
	if cfg.APIBase != "" {
		cc.HTTPOptions.BaseURL = cfg.APIBase
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{client: client, http: hc}, nil
}

func (p *Provider) Generate(ctx context.Context, req providers.TextRequest) (string, error) {
	contents, config := buildRequest(req)
	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return "", mapError(err)
	}
	return resp.Text(), nil
}

// Describe downloads the image and sends it inline; the Gemini API does
// not fetch arbitrary URLs.
func (p *Provider) Describe(ctx context.Context, imageURL, instruction, model string) (string, error) {
	data, mime, err := p.fetchImage(ctx, imageURL)
	if err != nil {
		return "", err
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(instruction),
			genai.NewPartFromBytes(data, mime),
		}, genai.RoleUser),
	}
	resp, err := p.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return "", mapError(err)
	}
	return resp.Text(), nil
}

func (p *Provider) fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w: %w", backendName, providers.ErrBackend, err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, "", providers.MapConnectionError(backendName, err)
	}
	defer resp.Body.Close()
	if err := providers.MapStatus(backendName, resp.StatusCode, "fetch image "+url); err != nil {
		return nil, "", err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", providers.MapConnectionError(backendName, err)
	}
	mime := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return data, mime, nil
}

func buildRequest(req providers.TextRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		config.Temperature = &t
	}

	var system []string
	var contents []*genai.Content
	for _, msg := range providers.Flatten(req.Messages) {
		switch msg.Role {
		case providers.RoleSystem:
			system = append(system, msg.Content)
		case providers.RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case providers.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, config
}

func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return providers.MapStatus(backendName, apiErr.Code, apiErr.Message)
	}
	return providers.MapConnectionError(backendName, err)
}
