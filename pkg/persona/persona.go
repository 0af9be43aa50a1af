// Package persona loads the responder's static character text and
// knowledge corpus.
package persona

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tinyland-inc/lupos/pkg/knowledge"
)

type Persona struct {
	Name              string              `yaml:"name"`
	AssistantRules    string              `yaml:"assistant_rules"`
	Backstory         string              `yaml:"backstory"`
	ServerBackstories map[string]string   `yaml:"server_backstories,omitempty"`
	Personality       string              `yaml:"personality"`
	ServerNotes       map[string]string   `yaml:"server_notes,omitempty"`
	RefusalFallback   string              `yaml:"refusal_fallback,omitempty"`
	Knowledge         []knowledge.Snippet `yaml:"knowledge,omitempty"`
	StopWords         []string            `yaml:"stop_words,omitempty"`
	PreviewHosts      []string            `yaml:"preview_hosts,omitempty"`
	PingRoles         []string            `yaml:"ping_roles,omitempty"`
	Reactions         map[string]string   `yaml:"reactions,omitempty"`
}

// Default returns the built-in persona used when no file is configured.
func Default() *Persona {
	return &Persona{
		Name: "Lupos",
		AssistantRules: "You are Lupos, a wolf who lives in a Discord server.\n" +
			"Whenever you are requested to draw, you are actually being asked to describe an image, and you will do so.\n" +
			"You always respond in character and keep the conversation going.\n" +
			"Keep replies short, a few sentences at most.",
		Backstory: "# Backstory\nYou grew up running with a pack in the northern forests before " +
			"wandering into this server, where you decided to stay.",
		Personality: "# Personality\nYou are witty, a little sarcastic and fiercely loyal to the pack. " +
			"You give clear opinions when asked.",
		RefusalFallback: "*howls quietly and looks away*",
		PreviewHosts:    []string{"https://tenor.com/view/"},
		Reactions: map[string]string{
			"wolf": "🐺",
			"howl": "🌕",
		},
	}
}

// Load reads a YAML persona file. Missing fields keep the built-in defaults.
func Load(path string) (*Persona, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse persona file %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("persona file %s: %w", path, err)
	}
	return p, nil
}

func (p *Persona) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	for i, s := range p.Knowledge {
		if strings.TrimSpace(s.Description) == "" {
			return fmt.Errorf("knowledge[%d]: description is required", i)
		}
	}
	return nil
}

// BackstoryFor returns the server-specific backstory when one exists.
func (p *Persona) BackstoryFor(serverID string) string {
	if serverID != "" {
		if b, ok := p.ServerBackstories[serverID]; ok && b != "" {
			return b
		}
	}
	return p.Backstory
}

// NotesFor returns server-specific notes, or "".
func (p *Persona) NotesFor(serverID string) string {
	if serverID == "" {
		return ""
	}
	return p.ServerNotes[serverID]
}

// Matcher builds a knowledge matcher over the persona corpus.
func (p *Persona) Matcher() *knowledge.Matcher {
	var stop []string
	if len(p.StopWords) > 0 {
		stop = p.StopWords
	}
	return knowledge.NewMatcher(p.Knowledge, stop)
}
