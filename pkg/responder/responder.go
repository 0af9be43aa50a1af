// Package responder runs one triggering message through reference
// resolution, enrichment, prompt assembly and generation.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tinyland-inc/lupos/pkg/chat"
	"github.com/tinyland-inc/lupos/pkg/conversation"
	"github.com/tinyland-inc/lupos/pkg/dispatch"
	"github.com/tinyland-inc/lupos/pkg/enrich"
	"github.com/tinyland-inc/lupos/pkg/logger"
	"github.com/tinyland-inc/lupos/pkg/persona"
	"github.com/tinyland-inc/lupos/pkg/prompt"
	"github.com/tinyland-inc/lupos/pkg/providers"
	"github.com/tinyland-inc/lupos/pkg/references"
)

// ErrGeneration wraps failures of the final text generation call.
var ErrGeneration = errors.New("response generation failed")

// Generator is the part of the dispatcher the responder drives.
type Generator interface {
	GenerateText(ctx context.Context, req dispatch.Request) (string, error)
	Describe(ctx context.Context, imageURL, instruction string) (string, error)
	IsRefusal(ctx context.Context, backend providers.Backend, speaker, candidate string) (dispatch.Verdict, error)
}

type Request struct {
	Message chat.Message
	Replied *chat.Message
	// Window is the recent channel history, oldest first. The triggering
	// message is appended when it is not already the last entry.
	Window []chat.Message
}

// Result carries the reply text and the image prompt built alongside it.
// Text is empty and Err set when generation failed.
type Result struct {
	Text        string
	ImagePrompt string
	Err         error
}

type Responder struct {
	self      chat.User
	persona   *persona.Persona
	gen       Generator
	resolver  *references.Resolver
	engine    *enrich.Engine
	summaries *conversation.Summarizer
	assembler *prompt.Assembler

	backend      providers.Backend
	imageBackend providers.Backend
	imageTier    providers.Tier
	imageTokens  int
	refusalCheck bool
	debug        bool
	now          func() time.Time
	loc          *time.Location

	feeds   FeedReader
	feedURL string
}

type Option func(*Responder)

// WithBackend overrides the dispatcher's default backend for the reply.
func WithBackend(b providers.Backend) Option { return func(r *Responder) { r.backend = b } }

// WithImagePromptBackend selects the backend that merges image and text prompts.
func WithImagePromptBackend(b providers.Backend, tier providers.Tier, maxTokens int) Option {
	return func(r *Responder) { r.imageBackend, r.imageTier, r.imageTokens = b, tier, maxTokens }
}

// WithRefusalCheck replaces replies classified as refusals with the
// persona's fallback line.
func WithRefusalCheck(enabled bool) Option { return func(r *Responder) { r.refusalCheck = enabled } }

func WithDebug(enabled bool) Option { return func(r *Responder) { r.debug = enabled } }

func WithClock(now func() time.Time) Option { return func(r *Responder) { r.now = now } }

func WithResolver(res *references.Resolver) Option { return func(r *Responder) { r.resolver = res } }

func WithEngine(e *enrich.Engine) Option { return func(r *Responder) { r.engine = e } }

func WithSummarizer(s *conversation.Summarizer) Option { return func(r *Responder) { r.summaries = s } }

func WithLocation(loc *time.Location) Option {
	return func(r *Responder) {
		if loc != nil {
			r.loc = loc
			r.assembler = prompt.NewAssembler(r.persona, loc)
		}
	}
}

// New wires a responder with default collaborators built from the
// directory and persona. Options replace individual stages.
func New(self chat.User, p *persona.Persona, gen Generator, directory chat.Directory, opts ...Option) *Responder {
	if p == nil {
		p = persona.Default()
	}
	r := &Responder{
		self:        self,
		persona:     p,
		gen:         gen,
		resolver:    references.NewResolver(self, references.WithPreviewHosts(p.PreviewHosts...)),
		engine:      enrich.NewEngine(directory, gen, p.Matcher(), self.ID),
		summaries:   conversation.NewSummarizer(gen, directory),
		assembler:   prompt.NewAssembler(p, nil),
		imageTier:   providers.TierFast,
		imageTokens: 720,
		now:         time.Now,
		loc:         time.UTC,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Respond never panics and never returns a partial reply: on failure Text
// is empty and Err wraps ErrGeneration.
func (r *Responder) Respond(ctx context.Context, req Request) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{ImagePrompt: res.ImagePrompt, Err: fmt.Errorf("%w: panic: %v", ErrGeneration, p)}
			logger.ErrorCF("responder", "Pipeline panicked", map[string]any{
				"message_id": req.Message.ID,
				"panic":      fmt.Sprint(p),
			})
		}
	}()

	msg := req.Message
	window := req.Window
	if len(window) == 0 || window[len(window)-1].ID != msg.ID {
		window = append(window[:len(window):len(window)], msg)
	}

	refs := r.resolver.Resolve(ctx, msg, req.Replied)
	enrichment := r.engine.Enrich(ctx, msg, refs)
	participants := r.summaries.Participants(ctx, msg, window, r.self.ID)

	assembled := r.assembler.Assemble(prompt.Input{
		Message:      msg,
		Replied:      req.Replied,
		Self:         r.self,
		Enrichment:   enrichment,
		Participants: participants,
		Now:          r.now(),
	})
	res.ImagePrompt = assembled.ImagePrompt

	if r.debug {
		logger.DebugCF("responder", "System prompt", map[string]any{"prompt": assembled.System})
		logger.DebugCF("responder", "Image prompt", map[string]any{"prompt": assembled.ImagePrompt})
		logger.DebugCF("responder", "Modified message", map[string]any{"message": assembled.Message})
	}

	convo := conversation.Build(assembled.System, window, r.self.ID, assembled.Message)

	text, err := r.gen.GenerateText(ctx, dispatch.Request{Conversation: convo, Backend: r.backend})
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrGeneration, err)
		logger.ErrorCF("responder", "Text generation failed", map[string]any{
			"message_id": msg.ID,
			"error":      err.Error(),
		})
		return res
	}

	if r.refusalCheck {
		text = r.checkRefusal(ctx, msg.Author, text)
	}
	res.Text = Sanitize(text, r.persona.PingRoles)

	if r.debug {
		logger.DebugCF("responder", "Generated text", map[string]any{"text": res.Text})
	}
	return res
}

func (r *Responder) checkRefusal(ctx context.Context, speaker chat.User, text string) string {
	fallback := strings.TrimSpace(r.persona.RefusalFallback)
	if fallback == "" {
		return text
	}
	verdict, err := r.gen.IsRefusal(ctx, r.backend, speaker.NameNoSpaces(), text)
	if err != nil {
		logger.WarnCF("responder", "Refusal check failed", map[string]any{"error": err.Error()})
		return text
	}
	if verdict == dispatch.VerdictYes {
		logger.InfoCF("responder", "Reply classified as refusal, using fallback", map[string]any{"reply": text})
		return fallback
	}
	return text
}
