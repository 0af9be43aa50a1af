package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"

	"github.com/tinyland-inc/lupos/pkg/providers"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so Discord ids can be written either as "123" or 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Discord    DiscordConfig    `json:"discord"`
	Persona    PersonaConfig    `json:"persona"`
	Generation GenerationConfig `json:"generation"`
	Pipeline   PipelineConfig   `json:"pipeline"`
	Providers  ProvidersConfig  `json:"providers"`
	Vision     VisionConfig     `json:"vision"`
	Voice      VoiceConfig      `json:"voice"`
	Image      ImageConfig      `json:"image"`
	News       NewsConfig       `json:"news"`
	Gateway    GatewayConfig    `json:"gateway"`
}

// DiscordConfig.AllowFrom limits the channels the bot answers in; empty
// means all.
type DiscordConfig struct {
	Enabled        bool                `env:"LUPOS_DISCORD_ENABLED"         json:"enabled"`
	Token          string              `env:"LUPOS_DISCORD_TOKEN"           json:"token"`
	AllowFrom      FlexibleStringSlice `env:"LUPOS_DISCORD_ALLOW_FROM"      json:"allow_from"`
	DirectMessages bool                `env:"LUPOS_DISCORD_DIRECT_MESSAGES" json:"direct_messages"`
	Status         string              `env:"LUPOS_DISCORD_STATUS"          json:"status"`
}

type PersonaConfig struct {
	File     string `env:"LUPOS_PERSONA_FILE"     json:"file"`
	Timezone string `env:"LUPOS_PERSONA_TIMEZONE" json:"timezone"`
}

type GenerationConfig struct {
	Backend              string `env:"LUPOS_GENERATION_BACKEND"                 json:"backend"`
	Tier                 string `env:"LUPOS_GENERATION_TIER"                    json:"tier"`
	MaxTokens            int    `env:"LUPOS_GENERATION_MAX_TOKENS"              json:"max_tokens"`
	RecentMessages       int    `env:"LUPOS_GENERATION_RECENT_MESSAGES"         json:"recent_messages"`
	Debug                bool   `env:"LUPOS_GENERATION_DEBUG"                   json:"debug"`
	RefusalCheck         bool   `env:"LUPOS_GENERATION_REFUSAL_CHECK"           json:"refusal_check"`
	Images               bool   `env:"LUPOS_GENERATION_IMAGES"                  json:"images"`
	Voice                bool   `env:"LUPOS_GENERATION_VOICE"                   json:"voice"`
	ImagePromptBackend   string `env:"LUPOS_GENERATION_IMAGE_PROMPT_BACKEND"    json:"image_prompt_backend"`
	ImagePromptTier      string `env:"LUPOS_GENERATION_IMAGE_PROMPT_TIER"       json:"image_prompt_tier"`
	ImagePromptMaxTokens int    `env:"LUPOS_GENERATION_IMAGE_PROMPT_MAX_TOKENS" json:"image_prompt_max_tokens"`
}

type PipelineConfig struct {
	FanOut             int `env:"LUPOS_PIPELINE_FAN_OUT"              json:"fan_out"`
	CallTimeoutSeconds int `env:"LUPOS_PIPELINE_CALL_TIMEOUT_SECONDS" json:"call_timeout_seconds"`
	Workers            int `env:"LUPOS_PIPELINE_WORKERS"              json:"workers"`
}

// CallTimeout is zero when backend calls are not bounded.
func (p PipelineConfig) CallTimeout() time.Duration {
	return time.Duration(p.CallTimeoutSeconds) * time.Second
}

type ProviderConfig struct {
	APIKey        string  `env:"API_KEY"        json:"api_key"`
	APIBase       string  `env:"API_BASE"       json:"api_base"`
	FastModel     string  `env:"FAST_MODEL"     json:"fast_model"`
	PowerfulModel string  `env:"POWERFUL_MODEL" json:"powerful_model"`
	VisionModel   string  `env:"VISION_MODEL"   json:"vision_model,omitempty"`
	Temperature   float64 `env:"TEMPERATURE"    json:"temperature,omitempty"`
}

// Configured reports whether the provider can be used at all.
func (p ProviderConfig) Configured() bool {
	return p.APIKey != "" || p.APIBase != ""
}

func (p ProviderConfig) Models() providers.Models {
	return providers.Models{Fast: p.FastModel, Powerful: p.PowerfulModel, Vision: p.VisionModel}
}

type ProvidersConfig struct {
	OpenAI    ProviderConfig `envPrefix:"LUPOS_PROVIDERS_OPENAI_"    json:"openai"`
	Anthropic ProviderConfig `envPrefix:"LUPOS_PROVIDERS_ANTHROPIC_" json:"anthropic"`
	Gemini    ProviderConfig `envPrefix:"LUPOS_PROVIDERS_GEMINI_"    json:"gemini"`
	Local     ProviderConfig `envPrefix:"LUPOS_PROVIDERS_LOCAL_"     json:"local"`
}

// For returns the settings of backend b.
func (p ProvidersConfig) For(b providers.Backend) ProviderConfig {
	switch b {
	case providers.BackendOpenAI:
		return p.OpenAI
	case providers.BackendAnthropic:
		return p.Anthropic
	case providers.BackendGemini:
		return p.Gemini
	case providers.BackendLocal:
		return p.Local
	}
	return ProviderConfig{}
}

type VisionConfig struct {
	Backend string `env:"LUPOS_VISION_BACKEND" json:"backend"`
}

const (
	VoiceOpenAI = "OPENAI"
	VoiceBark   = "BARKAI"
)

type VoiceConfig struct {
	Backend string `env:"LUPOS_VOICE_BACKEND"  json:"backend"`
	BarkURL string `env:"LUPOS_VOICE_BARK_URL" json:"bark_url"`
	Voice   string `env:"LUPOS_VOICE_VOICE"    json:"voice"`
	Model   string `env:"LUPOS_VOICE_MODEL"    json:"model"`
}

type ImageConfig struct {
	Address        string `env:"LUPOS_IMAGE_ADDRESS"         json:"address"`
	WorkflowFile   string `env:"LUPOS_IMAGE_WORKFLOW_FILE"   json:"workflow_file"`
	PromptNode     string `env:"LUPOS_IMAGE_PROMPT_NODE"     json:"prompt_node"`
	OutputNode     string `env:"LUPOS_IMAGE_OUTPUT_NODE"     json:"output_node"`
	TimeoutSeconds int    `env:"LUPOS_IMAGE_TIMEOUT_SECONDS" json:"timeout_seconds"`
}

type NewsConfig struct {
	Enabled   bool   `env:"LUPOS_NEWS_ENABLED"    json:"enabled"`
	FeedURL   string `env:"LUPOS_NEWS_FEED_URL"   json:"feed_url"`
	Cron      string `env:"LUPOS_NEWS_CRON"       json:"cron"`
	ChannelID string `env:"LUPOS_NEWS_CHANNEL_ID" json:"channel_id"`
}

type GatewayConfig struct {
	Host string `env:"LUPOS_GATEWAY_HOST" json:"host"`
	Port int    `env:"LUPOS_GATEWAY_PORT" json:"port"`
}

func DefaultConfig() *Config {
	return &Config{
		Persona: PersonaConfig{Timezone: "UTC"},
		Generation: GenerationConfig{
			Backend:              string(providers.BackendOpenAI),
			Tier:                 string(providers.TierFast),
			MaxTokens:            360,
			RecentMessages:       20,
			ImagePromptTier:      string(providers.TierFast),
			ImagePromptMaxTokens: 720,
		},
		Pipeline: PipelineConfig{FanOut: 4, CallTimeoutSeconds: 120, Workers: 1},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				APIBase:       "https://api.openai.com/v1",
				FastModel:     "gpt-4o-mini",
				PowerfulModel: "gpt-4o",
				VisionModel:   "gpt-4o",
			},
			Anthropic: ProviderConfig{
				FastModel:     "claude-3-5-haiku-latest",
				PowerfulModel: "claude-sonnet-4-5",
				VisionModel:   "claude-sonnet-4-5",
			},
			Gemini: ProviderConfig{
				FastModel:     "gemini-2.5-flash",
				PowerfulModel: "gemini-2.5-pro",
				VisionModel:   "gemini-2.5-flash",
			},
			Local: ProviderConfig{
				FastModel:     "llama3.1:8b",
				PowerfulModel: "llama3.1:70b",
				Temperature:   0.8,
			},
		},
		Vision: VisionConfig{Backend: string(providers.BackendOpenAI)},
		Voice: VoiceConfig{
			BarkURL: "http://127.0.0.1:5000",
			Voice:   "alloy",
			Model:   "tts-1",
		},
		Image: ImageConfig{
			Address:        "127.0.0.1:8188",
			PromptNode:     "6",
			OutputNode:     "9",
			TimeoutSeconds: 300,
		},
		News: NewsConfig{Cron: "0 9 * * *"},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 18790,
		},
	}
}

// LoadConfig layers the JSON file at path over DefaultConfig, then the
// LUPOS_* environment, then validates. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	cfg.Persona.File = expandHome(cfg.Persona.File)
	cfg.Image.WorkflowFile = expandHome(cfg.Image.WorkflowFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) Validate() error {
	var errs []error

	backend, err := providers.ParseBackend(c.Generation.Backend)
	if err != nil {
		errs = append(errs, fmt.Errorf("generation.backend: %w", err))
	} else if !c.Providers.For(backend).Configured() {
		errs = append(errs, fmt.Errorf("generation.backend %s has no api_key or api_base", backend))
	}
	if _, err := providers.ParseTier(c.Generation.Tier); err != nil {
		errs = append(errs, fmt.Errorf("generation.tier: %w", err))
	}
	if c.Generation.ImagePromptBackend != "" {
		if _, err := providers.ParseBackend(c.Generation.ImagePromptBackend); err != nil {
			errs = append(errs, fmt.Errorf("generation.image_prompt_backend: %w", err))
		}
	}
	if c.Generation.ImagePromptTier != "" {
		if _, err := providers.ParseTier(c.Generation.ImagePromptTier); err != nil {
			errs = append(errs, fmt.Errorf("generation.image_prompt_tier: %w", err))
		}
	}
	if c.Generation.MaxTokens <= 0 {
		errs = append(errs, errors.New("generation.max_tokens must be positive"))
	}
	if c.Generation.RecentMessages < 1 || c.Generation.RecentMessages > 100 {
		errs = append(errs, errors.New("generation.recent_messages must be between 1 and 100"))
	}

	if c.Vision.Backend != "" {
		if _, err := providers.ParseBackend(c.Vision.Backend); err != nil {
			errs = append(errs, fmt.Errorf("vision.backend: %w", err))
		}
	}
	switch strings.ToUpper(c.Voice.Backend) {
	case "", VoiceOpenAI, VoiceBark:
	default:
		errs = append(errs, fmt.Errorf("voice.backend %q: want %s or %s", c.Voice.Backend, VoiceOpenAI, VoiceBark))
	}

	if c.Pipeline.FanOut < 1 {
		errs = append(errs, errors.New("pipeline.fan_out must be at least 1"))
	}
	if c.Pipeline.Workers < 1 {
		errs = append(errs, errors.New("pipeline.workers must be at least 1"))
	}
	if c.Pipeline.CallTimeoutSeconds < 0 {
		errs = append(errs, errors.New("pipeline.call_timeout_seconds must not be negative"))
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("persona.timezone: %w", err))
	}
	if c.News.Enabled {
		if !gronx.IsValid(c.News.Cron) {
			errs = append(errs, fmt.Errorf("news.cron %q is not a valid cron expression", c.News.Cron))
		}
		if c.News.ChannelID == "" {
			errs = append(errs, errors.New("news.channel_id is required when news is enabled"))
		}
	}
	if c.Discord.Enabled && c.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required when discord is enabled"))
	}
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port %d out of range", c.Gateway.Port))
	}

	return errors.Join(errs...)
}

// Location resolves persona.timezone; empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Persona.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Persona.Timezone)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
