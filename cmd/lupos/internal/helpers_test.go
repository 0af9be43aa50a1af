package internal

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinyland-inc/lupos/pkg/chat"
)

func TestConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LUPOS_HOME", dir)

	if got, want := ConfigPath(), filepath.Join(dir, "config.json"); got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestBuildPrefersLinkerCommit(t *testing.T) {
	old := gitCommit
	t.Cleanup(func() { gitCommit = old })

	gitCommit = "abc123"
	b := Build()
	if got := b.String(); !strings.HasSuffix(got, "(git: abc123)") {
		t.Errorf("Build().String() = %q", got)
	}
	if b.Go == "" {
		t.Error("Build().Go is empty")
	}
}

func TestBuildInfoString(t *testing.T) {
	if got := (BuildInfo{Version: "1.0.0"}).String(); got != "1.0.0" {
		t.Errorf("String() = %q, want 1.0.0", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LUPOS_HOME", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Gateway.Port != 18790 {
		t.Errorf("Gateway.Port = %d, want 18790", cfg.Gateway.Port)
	}
}

func TestNewRuntimeRegistersConfiguredBackends(t *testing.T) {
	t.Setenv("LUPOS_HOME", t.TempDir())
	t.Setenv("LUPOS_PROVIDERS_LOCAL_API_BASE", "http://127.0.0.1:11434")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	rt, err := NewRuntime(t.Context(), cfg, nil)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}

	got := rt.Dispatcher.Backends()
	if len(got) != 2 || got[0] != "OPENAI" || got[1] != "LOCAL" {
		t.Errorf("Backends() = %v, want [OPENAI LOCAL]", got)
	}
	if rt.Dispatcher.HasImage() || rt.Dispatcher.HasVoice() {
		t.Error("side outputs registered while disabled")
	}
	if rt.Persona.Name != "Lupos" {
		t.Errorf("Persona.Name = %q, want built-in persona", rt.Persona.Name)
	}
	if rt.NewResponder(chat.User{ID: "1", Username: "Lupos", Bot: true}, chat.NewStaticDirectory()) == nil {
		t.Error("NewResponder() = nil")
	}
}
