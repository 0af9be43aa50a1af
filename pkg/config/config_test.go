package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinyland-inc/lupos/pkg/providers"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Generation.MaxTokens != 360 {
		t.Errorf("MaxTokens = %d, want 360", cfg.Generation.MaxTokens)
	}
	if cfg.Image.PromptNode != "6" {
		t.Errorf("PromptNode = %q, want %q", cfg.Image.PromptNode, "6")
	}
}

func TestLoadConfigFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"generation": {"backend": "LOCAL", "recent_messages": 50},
		"providers": {"local": {"api_base": "http://127.0.0.1:11434/v1"}},
		"discord": {"allow_from": [123, "456"]}
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Generation.Backend != "LOCAL" {
		t.Errorf("Backend = %q, want LOCAL", cfg.Generation.Backend)
	}
	if cfg.Generation.RecentMessages != 50 {
		t.Errorf("RecentMessages = %d, want 50", cfg.Generation.RecentMessages)
	}
	// untouched keys keep their defaults
	if cfg.Generation.MaxTokens != 360 {
		t.Errorf("MaxTokens = %d, want 360", cfg.Generation.MaxTokens)
	}
	if cfg.Providers.Local.FastModel != "llama3.1:8b" {
		t.Errorf("Local.FastModel = %q, want llama3.1:8b", cfg.Providers.Local.FastModel)
	}
	want := []string{"123", "456"}
	if strings.Join(cfg.Discord.AllowFrom, ",") != strings.Join(want, ",") {
		t.Errorf("AllowFrom = %v, want %v", cfg.Discord.AllowFrom, want)
	}
}

func TestLoadConfigEnvOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"generation": {"backend": "LOCAL"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LUPOS_GENERATION_BACKEND", "ANTHROPIC")
	t.Setenv("LUPOS_PROVIDERS_ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("LUPOS_DISCORD_ALLOW_FROM", "1,2,3")
	t.Setenv("LUPOS_PERSONA_FILE", "~/lupos/persona.yaml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Generation.Backend != "ANTHROPIC" {
		t.Errorf("Backend = %q, want ANTHROPIC", cfg.Generation.Backend)
	}
	if cfg.Providers.Anthropic.APIKey != "sk-ant-test" {
		t.Errorf("Anthropic.APIKey = %q, want sk-ant-test", cfg.Providers.Anthropic.APIKey)
	}
	if len(cfg.Discord.AllowFrom) != 3 {
		t.Errorf("AllowFrom = %v, want 3 entries", cfg.Discord.AllowFrom)
	}
	if strings.HasPrefix(cfg.Persona.File, "~") {
		t.Errorf("Persona.File = %q, want home expanded", cfg.Persona.File)
	}
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"generation":`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig accepted truncated JSON")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Generation.Backend = "MARS" },
			want:   "generation.backend",
		},
		{
			name:   "backend without credentials",
			mutate: func(c *Config) { c.Generation.Backend = "GEMINI" },
			want:   "has no api_key or api_base",
		},
		{
			name:   "bad tier",
			mutate: func(c *Config) { c.Generation.Tier = "MEDIUM" },
			want:   "generation.tier",
		},
		{
			name:   "recent messages over limit",
			mutate: func(c *Config) { c.Generation.RecentMessages = 101 },
			want:   "recent_messages",
		},
		{
			name:   "bad voice backend",
			mutate: func(c *Config) { c.Voice.Backend = "X" },
			want:   "voice.backend",
		},
		{
			name:   "bad timezone",
			mutate: func(c *Config) { c.Persona.Timezone = "Mars/Base" },
			want:   "persona.timezone",
		},
		{
			name: "bad cron",
			mutate: func(c *Config) {
				c.News.Enabled = true
				c.News.Cron = "bad"
				c.News.ChannelID = "42"
			},
			want: "news.cron",
		},
		{
			name:   "news without channel",
			mutate: func(c *Config) { c.News.Enabled = true },
			want:   "news.channel_id",
		},
		{
			name:   "discord without token",
			mutate: func(c *Config) { c.Discord.Enabled = true },
			want:   "discord.token",
		},
		{
			name:   "zero workers",
			mutate: func(c *Config) { c.Pipeline.Workers = 0 },
			want:   "pipeline.workers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Generation.MaxTokens = 0
	cfg.Pipeline.FanOut = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"max_tokens", "fan_out"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() = %q, missing %q", err, want)
		}
	}
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Generation.Backend = string(providers.BackendLocal)
	cfg.Providers.Local.APIBase = "http://127.0.0.1:11434/v1"

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("mode = %o, want 600", perm)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Providers.Local.APIBase != cfg.Providers.Local.APIBase {
		t.Errorf("Local.APIBase = %q, want %q", loaded.Providers.Local.APIBase, cfg.Providers.Local.APIBase)
	}
}

func TestFlexibleStringSlice(t *testing.T) {
	var f FlexibleStringSlice
	if err := json.Unmarshal([]byte(`[123, "456", 7.0]`), &f); err != nil {
		t.Fatal(err)
	}
	want := []string{"123", "456", "7"}
	if len(f) != len(want) {
		t.Fatalf("got %v, want %v", f, want)
	}
	for i := range want {
		if f[i] != want[i] {
			t.Errorf("f[%d] = %q, want %q", i, f[i], want[i])
		}
	}
}

func TestCallTimeout(t *testing.T) {
	p := PipelineConfig{CallTimeoutSeconds: 3}
	if got := p.CallTimeout().Seconds(); got != 3 {
		t.Errorf("CallTimeout() = %vs, want 3s", got)
	}
}

func TestProvidersFor(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.Providers.For(providers.BackendGemini).FastModel; got != "gemini-2.5-flash" {
		t.Errorf("For(GEMINI).FastModel = %q, want gemini-2.5-flash", got)
	}
	if got := cfg.Providers.For("NOPE"); got.Configured() {
		t.Errorf("For(NOPE) = %+v, want zero", got)
	}
}
