// Package dispatch routes generation requests to the configured backends
// and instruments every call.
package dispatch

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tinyland-inc/lupos/pkg/logger"
	"github.com/tinyland-inc/lupos/pkg/metering"
	"github.com/tinyland-inc/lupos/pkg/providers"
)

// Request is one text generation call. Zero fields take the dispatcher
// defaults.
type Request struct {
	Conversation []providers.Message
	Backend      providers.Backend
	Tier         providers.Tier
	MaxTokens    int
	Temperature  *float64
}

type Defaults struct {
	Backend   providers.Backend
	Tier      providers.Tier
	MaxTokens int
}

type textEntry struct {
	backend providers.TextBackend
	models  providers.Models
}

type Dispatcher struct {
	mu       sync.RWMutex
	text     map[providers.Backend]textEntry
	defaults Defaults
	timeout  time.Duration
	meter    *metering.Store

	visionName  string
	vision      providers.VisionBackend
	visionModel string
	voiceName   string
	voice       providers.VoiceBackend
	imageName   string
	image       providers.ImageBackend
}

type Option func(*Dispatcher)

// WithTimeout bounds each backend call. Zero leaves the caller's context
// untouched.
func WithTimeout(d time.Duration) Option {
	return func(ds *Dispatcher) { ds.timeout = d }
}

func WithMeter(m *metering.Store) Option {
	return func(ds *Dispatcher) { ds.meter = m }
}

func New(defaults Defaults, opts ...Option) *Dispatcher {
	if defaults.Tier == "" {
		defaults.Tier = providers.TierFast
	}
	if defaults.MaxTokens <= 0 {
		defaults.MaxTokens = 1024
	}
	d := &Dispatcher{
		text:     make(map[providers.Backend]textEntry),
		defaults: defaults,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterText registers a text backend with its per-tier models.
func (d *Dispatcher) RegisterText(b providers.Backend, backend providers.TextBackend, models providers.Models) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.text[b] = textEntry{backend: backend, models: models}
}

func (d *Dispatcher) SetVision(name string, backend providers.VisionBackend, model string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visionName, d.vision, d.visionModel = name, backend, model
}

func (d *Dispatcher) SetVoice(name string, backend providers.VoiceBackend) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.voiceName, d.voice = name, backend
}

func (d *Dispatcher) SetImage(name string, backend providers.ImageBackend) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.imageName, d.image = name, backend
}

// Backends lists the registered text backends.
func (d *Dispatcher) Backends() []providers.Backend {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]providers.Backend, 0, len(d.text))
	for _, b := range providers.Backends {
		if _, ok := d.text[b]; ok {
			out = append(out, b)
		}
	}
	return out
}

func (d *Dispatcher) Defaults() Defaults { return d.defaults }

func (d *Dispatcher) HasImage() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.image != nil
}

func (d *Dispatcher) HasVoice() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.voice != nil
}

func (d *Dispatcher) GenerateText(ctx context.Context, req Request) (string, error) {
	if req.Backend == "" {
		req.Backend = d.defaults.Backend
	}
	if req.Tier == "" {
		req.Tier = d.defaults.Tier
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = d.defaults.MaxTokens
	}

	d.mu.RLock()
	entry, ok := d.text[req.Backend]
	d.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", providers.ErrUnknownBackend, req.Backend)
	}

	model := entry.models.For(req.Tier)
	ctx, cancel := d.callContext(ctx)
	defer cancel()

	start := time.Now()
	text, err := entry.backend.Generate(ctx, providers.TextRequest{
		Messages:    slices.Clone(req.Conversation),
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = providers.ErrEmptyResponse
	}
	elapsed := time.Since(start)
	d.observe(string(req.Backend), "text", model, elapsed, err)

	logger.InfoCF("dispatch", "generateText", map[string]any{
		"backend":     req.Backend,
		"performance": req.Tier,
		"model":       model,
		"seconds":     elapsed.Seconds(),
		"ok":          err == nil,
	})
	if err != nil {
		return "", fmt.Errorf("generate text (%s/%s): %w", req.Backend, req.Tier, err)
	}
	return text, nil
}

// Describe asks the vision backend about an image.
func (d *Dispatcher) Describe(ctx context.Context, imageURL, instruction string) (string, error) {
	d.mu.RLock()
	name, vision, model := d.visionName, d.vision, d.visionModel
	d.mu.RUnlock()
	if vision == nil {
		return "", fmt.Errorf("vision: %w", providers.ErrNotConfigured)
	}

	ctx, cancel := d.callContext(ctx)
	defer cancel()

	start := time.Now()
	desc, err := vision.Describe(ctx, imageURL, instruction, model)
	if err == nil && strings.TrimSpace(desc) == "" {
		err = providers.ErrEmptyResponse
	}
	elapsed := time.Since(start)
	d.observe(name, "vision", model, elapsed, err)

	logger.DebugCF("dispatch", "generateVision", map[string]any{
		"backend": name,
		"url":     imageURL,
		"seconds": elapsed.Seconds(),
		"ok":      err == nil,
	})
	if err != nil {
		return "", fmt.Errorf("describe image: %w", err)
	}
	return desc, nil
}

func (d *Dispatcher) GenerateVoice(ctx context.Context, text string) (providers.Voice, error) {
	d.mu.RLock()
	name, voice := d.voiceName, d.voice
	d.mu.RUnlock()
	if voice == nil {
		return providers.Voice{}, fmt.Errorf("voice: %w", providers.ErrNotConfigured)
	}
	if strings.TrimSpace(text) == "" {
		return providers.Voice{}, nil
	}

	ctx, cancel := d.callContext(ctx)
	defer cancel()

	start := time.Now()
	v, err := voice.Synthesize(ctx, text)
	elapsed := time.Since(start)
	d.observe(name, "voice", "", elapsed, err)

	logger.InfoCF("dispatch", "generateVoice", map[string]any{
		"backend": name,
		"seconds": elapsed.Seconds(),
		"ok":      err == nil,
	})
	if err != nil {
		return providers.Voice{}, fmt.Errorf("generate voice: %w", err)
	}
	return v, nil
}

// GenerateImage runs the image backend. Image jobs can outlast the text
// timeout, so only the caller's context applies.
func (d *Dispatcher) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	d.mu.RLock()
	name, image := d.imageName, d.image
	d.mu.RUnlock()
	if image == nil {
		return nil, fmt.Errorf("image: %w", providers.ErrNotConfigured)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, nil
	}

	start := time.Now()
	data, err := image.GenerateImage(ctx, prompt)
	if err == nil && len(data) == 0 {
		err = providers.ErrEmptyResponse
	}
	elapsed := time.Since(start)
	d.observe(name, "image", "", elapsed, err)

	logger.InfoCF("dispatch", "generateImage", map[string]any{
		"backend": name,
		"seconds": elapsed.Seconds(),
		"ok":      err == nil,
	})
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	return data, nil
}

func (d *Dispatcher) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout > 0 {
		return context.WithTimeout(ctx, d.timeout)
	}
	return ctx, func() {}
}

func (d *Dispatcher) observe(backend, kind, model string, elapsed time.Duration, err error) {
	if d.meter == nil {
		return
	}
	d.meter.Record(metering.Event{
		Backend:  backend,
		Kind:     kind,
		Model:    model,
		Duration: elapsed,
		Err:      err,
	})
}
