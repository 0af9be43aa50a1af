// Package providers defines the backend contracts the dispatcher routes to.
package providers

import (
	"context"
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged conversation entry.
type Message struct {
	Role    Role   `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// Backend names a text provider.
type Backend string

const (
	BackendOpenAI    Backend = "OPENAI"
	BackendAnthropic Backend = "ANTHROPIC"
	BackendLocal     Backend = "LOCAL"
	BackendGemini    Backend = "GEMINI"
)

var Backends = []Backend{BackendOpenAI, BackendAnthropic, BackendLocal, BackendGemini}

func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Backends {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}

// Tier selects the model profile inside a backend.
type Tier string

const (
	TierFast     Tier = "FAST"
	TierPowerful Tier = "POWERFUL"
)

func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToUpper(strings.TrimSpace(s))); t {
	case TierFast, TierPowerful:
		return t, nil
	default:
		return "", fmt.Errorf("unknown tier %q", s)
	}
}

type TextRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature *float64
}

type TextBackend interface {
	Generate(ctx context.Context, req TextRequest) (string, error)
}

type VisionBackend interface {
	Describe(ctx context.Context, imageURL, instruction, model string) (string, error)
}

// Voice is either a file name on the voice server or raw audio bytes.
type Voice struct {
	Filename string
	Data     []byte
}

type VoiceBackend interface {
	Synthesize(ctx context.Context, text string) (Voice, error)
}

type ImageBackend interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// Models maps tiers to model ids for one backend.
type Models struct {
	Fast     string
	Powerful string
	Vision   string
}

func (m Models) For(t Tier) string {
	if t == TierPowerful && m.Powerful != "" {
		return m.Powerful
	}
	if m.Fast != "" {
		return m.Fast
	}
	return m.Powerful
}
