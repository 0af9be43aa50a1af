package geminiprovider

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/tinyland-inc/lupos/pkg/providers"
)

func TestBuildRequest(t *testing.T) {
	temp := 0.5
	contents, config := buildRequest(providers.TextRequest{
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: "sys"},
			{Role: providers.RoleUser, Name: "ana", Content: "hi"},
			{Role: providers.RoleAssistant, Content: "awoo"},
			{Role: providers.RoleUser, Content: "again"},
		},
		MaxTokens:   200,
		Temperature: &temp,
	})

	if len(contents) != 3 {
		t.Fatalf("len(contents) = %d, want 3", len(contents))
	}
	if contents[1].Role != genai.RoleModel {
		t.Errorf("contents[1].Role = %q, want model", contents[1].Role)
	}
	if config.SystemInstruction == nil || config.SystemInstruction.Parts[0].Text != "sys" {
		t.Errorf("SystemInstruction = %+v", config.SystemInstruction)
	}
	if config.MaxOutputTokens != 200 {
		t.Errorf("MaxOutputTokens = %d, want 200", config.MaxOutputTokens)
	}
	if config.Temperature == nil || *config.Temperature != 0.5 {
		t.Errorf("Temperature = %v", config.Temperature)
	}
}

type geminiServer struct {
	status int
	seen   map[string]any
}

func (g *geminiServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/wolf.png":
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	case strings.HasSuffix(r.URL.Path, ":generateContent"):
		if g.status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(g.status)
			w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
			return
		}
		json.NewDecoder(r.Body).Decode(&g.seen)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"awoo"}]}}]}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestProvider(t *testing.T, g *geminiServer) (*Provider, string) {
	t.Helper()
	server := httptest.NewServer(g)
	t.Cleanup(server.Close)
	p, err := NewProvider(t.Context(), Config{APIKey: "test-key", APIBase: server.URL})
	if err != nil {
		t.Fatalf("NewProvider() error: %v", err)
	}
	return p, server.URL
}

func TestProvider_Generate(t *testing.T) {
	g := &geminiServer{}
	p, _ := newTestProvider(t, g)

	got, err := p.Generate(t.Context(), providers.TextRequest{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
		Model:    "gemini-2.5-flash",
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if got != "awoo" {
		t.Errorf("Generate() = %q, want %q", got, "awoo")
	}
}

func TestProvider_DescribeInlinesImage(t *testing.T) {
	g := &geminiServer{}
	p, base := newTestProvider(t, g)

	got, err := p.Describe(t.Context(), base+"/wolf.png", "Describe this image", "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("Describe() error: %v", err)
	}
	if got != "awoo" {
		t.Errorf("Describe() = %q", got)
	}
	raw, _ := json.Marshal(g.seen)
	if !strings.Contains(string(raw), `"mimeType":"image/png"`) {
		t.Errorf("request did not inline the image: %s", raw)
	}
}

func TestProvider_DescribeMissingImage(t *testing.T) {
	p, base := newTestProvider(t, &geminiServer{})
	_, err := p.Describe(t.Context(), base+"/missing.png", "x", "m")
	if !errors.Is(err, providers.ErrBackend) {
		t.Errorf("err = %v, want ErrBackend", err)
	}
}

func TestProvider_ErrorMapping(t *testing.T) {
	p, _ := newTestProvider(t, &geminiServer{status: http.StatusServiceUnavailable})
	_, err := p.Generate(t.Context(), providers.TextRequest{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
		Model:    "m",
	})
	if !errors.Is(err, providers.ErrProviderDown) {
		t.Errorf("err = %v, want ErrProviderDown", err)
	}
}
