package conversation

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinyland-inc/lupos/pkg/chat"
	"github.com/tinyland-inc/lupos/pkg/dispatch"
	"github.com/tinyland-inc/lupos/pkg/logger"
	"github.com/tinyland-inc/lupos/pkg/providers"
)

const (
	summaryInstructionFormat = `You are an expert at giving detailed summaries of what is said to you.
You will go through the messages that are sent to you, and give a detailed summary of what is said to you.
You will describe the messages that are sent to you as detailed and creative as possible.
The messages that are sent are what %s has been talking about.`

	summaryRequestFormat = "Here are the last recent messages by %s in this channel, and is what they have been talking about:\n%s"
)

// TextGenerator is the slice of the dispatcher the summarizer needs.
type TextGenerator interface {
	GenerateText(ctx context.Context, req dispatch.Request) (string, error)
}

// Participant is one distinct author from the window.
type Participant struct {
	ID           string
	Name         string
	Roles        []string
	Conversation string
	LastActive   time.Time
}

type Summarizer struct {
	gen       TextGenerator
	directory chat.Directory
	backend   providers.Backend
	tier      providers.Tier
	fanOut    int
}

type SummarizerOption func(*Summarizer)

// WithBackend pins summaries to one backend and tier instead of the
// dispatcher defaults.
func WithBackend(b providers.Backend, tier providers.Tier) SummarizerOption {
	return func(s *Summarizer) { s.backend, s.tier = b, tier }
}

func WithFanOut(n int) SummarizerOption {
	return func(s *Summarizer) {
		if n > 0 {
			s.fanOut = n
		}
	}
}

func NewSummarizer(gen TextGenerator, directory chat.Directory, opts ...SummarizerOption) *Summarizer {
	s := &Summarizer{
		gen:       gen,
		directory: directory,
		tier:      providers.TierFast,
		fanOut:    4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Participants summarizes every distinct non-responder author in window,
// in order of first appearance. Direct messages have no participants.
// Each author is summarized exactly once; a failed summary leaves that
// participant's Conversation empty.
func (s *Summarizer) Participants(ctx context.Context, trigger chat.Message, window []chat.Message, selfID string) []Participant {
	if trigger.Server == nil {
		return nil
	}

	var out []Participant
	index := make(map[string]int)
	byAuthor := make(map[string][]string)
	for _, msg := range window {
		id := msg.Author.ID
		if id == "" || id == selfID {
			continue
		}
		byAuthor[id] = append(byAuthor[id], msg.Content)
		if i, ok := index[id]; ok {
			if msg.Timestamp.After(out[i].LastActive) {
				out[i].LastActive = msg.Timestamp
			}
			continue
		}
		index[id] = len(out)
		out = append(out, Participant{
			ID:         id,
			Name:       msg.Author.DisplayName(),
			LastActive: msg.Timestamp,
		})
	}

	g := &errgroup.Group{}
	g.SetLimit(s.fanOut)
	for i := range out {
		p := &out[i]
		g.Go(func() error {
			p.Roles = guard(p.ID, func() []string { return s.roles(ctx, trigger.Server.ID, p.ID) })
			p.Conversation = guard(p.ID, func() string {
				return s.summarize(ctx, trigger.Author, p.Name, byAuthor[p.ID])
			})
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Summarizer) roles(ctx context.Context, serverID, userID string) []string {
	if s.directory == nil {
		return nil
	}
	roles, err := s.directory.Roles(ctx, serverID, userID)
	if err != nil {
		logger.WarnCF("conversation", "Role lookup failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		return nil
	}
	return slices.DeleteFunc(roles, func(r string) bool { return r == "@everyone" })
}

func (s *Summarizer) summarize(ctx context.Context, requester chat.User, name string, messages []string) string {
	text, err := s.gen.GenerateText(ctx, dispatch.Request{
		Conversation: []providers.Message{
			{Role: providers.RoleSystem, Content: fmt.Sprintf(summaryInstructionFormat, name)},
			{
				Role:    providers.RoleUser,
				Name:    requester.NameNoSpaces(),
				Content: fmt.Sprintf(summaryRequestFormat, name, strings.Join(messages, "\n\n")),
			},
		},
		Backend: s.backend,
		Tier:    s.tier,
	})
	if err != nil {
		logger.WarnCF("conversation", "Participant summary failed", map[string]any{
			"participant": name,
			"error":       err.Error(),
		})
		return ""
	}
	return text
}

// guard keeps a panicking lookup or summary from escaping the errgroup
// goroutine; the participant keeps the zero value.
func guard[T any](participant string, fn func() T) (out T) {
	defer func() {
		if p := recover(); p != nil {
			logger.ErrorCF("conversation", "Participant lookup panicked", map[string]any{
				"participant": participant,
				"panic":       fmt.Sprint(p),
			})
			var zero T
			out = zero
		}
	}()
	return fn()
}
