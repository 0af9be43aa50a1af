package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinyland-inc/lupos/pkg/chat"
	"github.com/tinyland-inc/lupos/pkg/config"
	"github.com/tinyland-inc/lupos/pkg/conversation"
	"github.com/tinyland-inc/lupos/pkg/dispatch"
	"github.com/tinyland-inc/lupos/pkg/enrich"
	"github.com/tinyland-inc/lupos/pkg/logger"
	"github.com/tinyland-inc/lupos/pkg/metering"
	"github.com/tinyland-inc/lupos/pkg/persona"
	"github.com/tinyland-inc/lupos/pkg/providers"
	anthropicprovider "github.com/tinyland-inc/lupos/pkg/providers/anthropic"
	barkprovider "github.com/tinyland-inc/lupos/pkg/providers/bark"
	"github.com/tinyland-inc/lupos/pkg/providers/comfyui"
	geminiprovider "github.com/tinyland-inc/lupos/pkg/providers/gemini"
	localprovider "github.com/tinyland-inc/lupos/pkg/providers/local"
	openaiprovider "github.com/tinyland-inc/lupos/pkg/providers/openai"
	"github.com/tinyland-inc/lupos/pkg/references"
	"github.com/tinyland-inc/lupos/pkg/responder"
	"github.com/tinyland-inc/lupos/pkg/scrape"
)

// Runtime holds the collaborators shared by the gateway and the console.
type Runtime struct {
	Config     *config.Config
	Persona    *persona.Persona
	Dispatcher *dispatch.Dispatcher
	Meter      *metering.Store
	Scraper    *scrape.Client
	Location   *time.Location
}

// NewRuntime loads the persona and registers every configured backend.
// A nil registerer keeps metrics in process only.
func NewRuntime(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*Runtime, error) {
	p, err := persona.Load(cfg.Persona.File)
	if err != nil {
		return nil, fmt.Errorf("load persona: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	backend, err := providers.ParseBackend(cfg.Generation.Backend)
	if err != nil {
		return nil, err
	}
	tier, err := providers.ParseTier(cfg.Generation.Tier)
	if err != nil {
		return nil, err
	}

	meter := metering.NewStore(reg)
	d := dispatch.New(dispatch.Defaults{
		Backend:   backend,
		Tier:      tier,
		MaxTokens: cfg.Generation.MaxTokens,
	}, dispatch.WithTimeout(cfg.Pipeline.CallTimeout()), dispatch.WithMeter(meter))

	if err := registerBackends(ctx, cfg, d); err != nil {
		return nil, err
	}

	return &Runtime{
		Config:     cfg,
		Persona:    p,
		Dispatcher: d,
		Meter:      meter,
		Scraper:    scrape.New(),
		Location:   loc,
	}, nil
}

func registerBackends(ctx context.Context, cfg *config.Config, d *dispatch.Dispatcher) error {
	timeout := cfg.Pipeline.CallTimeout()
	pc := cfg.Providers

	var (
		openai    *openaiprovider.Provider
		anthropic *anthropicprovider.Provider
		gemini    *geminiprovider.Provider
	)
	if pc.OpenAI.Configured() {
		openai = openaiprovider.NewProvider(openaiprovider.Config{
			APIKey:      pc.OpenAI.APIKey,
			APIBase:     pc.OpenAI.APIBase,
			Timeout:     timeout,
			SpeechModel: cfg.Voice.Model,
			SpeechVoice: cfg.Voice.Voice,
		})
		d.RegisterText(providers.BackendOpenAI, openai, pc.OpenAI.Models())
	}
	if pc.Anthropic.Configured() {
		anthropic = anthropicprovider.NewProvider(anthropicprovider.Config{
			APIKey:  pc.Anthropic.APIKey,
			APIBase: pc.Anthropic.APIBase,
			Timeout: timeout,
		})
		d.RegisterText(providers.BackendAnthropic, anthropic, pc.Anthropic.Models())
	}
	if pc.Gemini.Configured() {
		var err error
		gemini, err = geminiprovider.NewProvider(ctx, geminiprovider.Config{
			APIKey:  pc.Gemini.APIKey,
			APIBase: pc.Gemini.APIBase,
			Timeout: timeout,
		})
		if err != nil {
			return err
		}
		d.RegisterText(providers.BackendGemini, gemini, pc.Gemini.Models())
	}
	if pc.Local.Configured() {
		d.RegisterText(providers.BackendLocal, localprovider.NewProvider(localprovider.Config{
			APIBase:     pc.Local.APIBase,
			Temperature: pc.Local.Temperature,
			Timeout:     timeout,
		}), pc.Local.Models())
	}

	if cfg.Vision.Backend != "" {
		vb, _ := providers.ParseBackend(cfg.Vision.Backend)
		model := pc.For(vb).VisionModel
		switch {
		case vb == providers.BackendOpenAI && openai != nil:
			d.SetVision(string(vb), openai, model)
		case vb == providers.BackendAnthropic && anthropic != nil:
			d.SetVision(string(vb), anthropic, model)
		case vb == providers.BackendGemini && gemini != nil:
			d.SetVision(string(vb), gemini, model)
		default:
			logger.WarnCF("runtime", "Vision backend unavailable, images will not be described", map[string]any{
				"backend": cfg.Vision.Backend,
			})
		}
	}

	if cfg.Generation.Voice {
		switch cfg.Voice.Backend {
		case config.VoiceBark:
			d.SetVoice("bark", barkprovider.NewProvider(barkprovider.Config{
				APIBase: cfg.Voice.BarkURL,
				Voice:   cfg.Voice.Voice,
			}))
		case config.VoiceOpenAI, "":
			if openai == nil {
				return errors.New("voice: openai provider is not configured")
			}
			d.SetVoice(string(providers.BackendOpenAI), openai)
		}
	}

	if cfg.Generation.Images {
		img, err := comfyui.NewClient(comfyui.Config{
			Address:      cfg.Image.Address,
			WorkflowFile: cfg.Image.WorkflowFile,
			PromptNode:   cfg.Image.PromptNode,
			OutputNode:   cfg.Image.OutputNode,
			Timeout:      time.Duration(cfg.Image.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("comfyui: %w", err)
		}
		d.SetImage("comfyui", img)
	}

	logger.InfoCF("runtime", "Backends registered", map[string]any{
		"text":    fmt.Sprint(d.Backends()),
		"default": cfg.Generation.Backend,
		"images":  d.HasImage(),
		"voice":   d.HasVoice(),
	})
	return nil
}

// NewResponder builds the pipeline for self against directory.
func (rt *Runtime) NewResponder(self chat.User, directory chat.Directory) *responder.Responder {
	cfg := rt.Config
	opts := []responder.Option{
		responder.WithResolver(references.NewResolver(self,
			references.WithProber(rt.Scraper),
			references.WithPreviewer(rt.Scraper),
			references.WithPreviewHosts(rt.Persona.PreviewHosts...),
		)),
		responder.WithEngine(enrich.NewEngine(directory, rt.Dispatcher, rt.Persona.Matcher(), self.ID,
			enrich.WithFanOut(cfg.Pipeline.FanOut),
		)),
		responder.WithSummarizer(conversation.NewSummarizer(rt.Dispatcher, directory,
			conversation.WithBackend(providers.Backend(cfg.Generation.Backend), providers.TierFast),
			conversation.WithFanOut(cfg.Pipeline.FanOut),
		)),
		responder.WithRefusalCheck(cfg.Generation.RefusalCheck),
		responder.WithDebug(cfg.Generation.Debug),
		responder.WithLocation(rt.Location),
		responder.WithNews(rt.Scraper, cfg.News.FeedURL),
	}
	if cfg.Generation.ImagePromptBackend != "" {
		b, _ := providers.ParseBackend(cfg.Generation.ImagePromptBackend)
		t, _ := providers.ParseTier(cfg.Generation.ImagePromptTier)
		opts = append(opts, responder.WithImagePromptBackend(b, t, cfg.Generation.ImagePromptMaxTokens))
	}
	return responder.New(self, rt.Persona, rt.Dispatcher, directory, opts...)
}
