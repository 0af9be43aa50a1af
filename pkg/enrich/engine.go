// Package enrich attaches natural-language descriptions to the references
// found in a message.
package enrich

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/tinyland-inc/lupos/pkg/chat"
	"github.com/tinyland-inc/lupos/pkg/knowledge"
	"github.com/tinyland-inc/lupos/pkg/logger"
	"github.com/tinyland-inc/lupos/pkg/references"
)

const (
	DescribeImageInstruction = "Describe this image"
	emojiInstructionFormat   = "Describe this image named %s. Do not mention that it is low quality, resolution, or pixelated."

	defaultFanOut = 4
)

// Describer turns an image URL into text.
type Describer interface {
	Describe(ctx context.Context, imageURL, instruction string) (string, error)
}

type UserRef struct {
	ID                   string
	DisplayName          string
	Roles                []string
	KnowledgeDescription string
	AvatarDescription    string
	BannerDescription    string
}

func (u UserRef) Tag() string { return "<@" + u.ID + ">" }

type ImageRef struct {
	SourceURL   string
	Description string
	Owner       chat.User
}

type EmojiRef struct {
	references.Emoji
	Description string
}

type Result struct {
	Users     []UserRef
	Images    []ImageRef
	Emoji     []EmojiRef
	Knowledge []knowledge.Match
}

// User returns the enriched user with id, if present.
func (r Result) User(id string) (UserRef, bool) {
	i := slices.IndexFunc(r.Users, func(u UserRef) bool { return u.ID == id })
	if i < 0 {
		return UserRef{}, false
	}
	return r.Users[i], true
}

type Engine struct {
	directory chat.Directory
	vision    Describer
	matcher   *knowledge.Matcher
	selfID    string
	fanOut    int
}

type Option func(*Engine)

// WithFanOut bounds concurrent backend calls per reference category.
func WithFanOut(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.fanOut = n
		}
	}
}

func NewEngine(directory chat.Directory, vision Describer, matcher *knowledge.Matcher, selfID string, opts ...Option) *Engine {
	if matcher == nil {
		matcher = knowledge.NewMatcher(nil, nil)
	}
	e := &Engine{
		directory: directory,
		vision:    vision,
		matcher:   matcher,
		selfID:    selfID,
		fanOut:    defaultFanOut,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich never fails: a reference whose lookup or description fails is
// dropped (users) or left without a description (images, emoji).
func (e *Engine) Enrich(ctx context.Context, msg chat.Message, refs references.Refs) Result {
	var res Result
	var users []*UserRef

	var g errgroup.Group
	g.Go(func() error {
		users = e.users(ctx, msg.ServerID(), refs.UserIDs)
		return nil
	})
	g.Go(func() error {
		res.Images = e.images(ctx, refs.Images)
		return nil
	})
	g.Go(func() error {
		res.Emoji = e.emoji(ctx, refs.Emoji)
		return nil
	})
	_ = g.Wait()

	names := make(map[string]string, len(users))
	for _, u := range users {
		if u == nil {
			continue
		}
		names[u.ID] = u.DisplayName
		u.KnowledgeDescription = e.matcher.Describe(u.DisplayName)
		res.Users = append(res.Users, *u)
	}
	res.Knowledge = e.matcher.Match(msg.Content, names, e.selfID)

	return res
}

func (e *Engine) users(ctx context.Context, serverID string, ids []string) []*UserRef {
	out := make([]*UserRef, len(ids))
	g := e.group()
	for i, id := range ids {
		g.Go(func() error {
			out[i] = guard("User lookup panicked", map[string]any{"user_id": id}, func() *UserRef {
				return e.user(ctx, serverID, id)
			})
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) user(ctx context.Context, serverID, id string) *UserRef {
	if e.directory == nil {
		return nil
	}
	u, err := e.directory.User(ctx, id)
	if err != nil {
		logger.WarnCF("enrich", "User lookup failed", map[string]any{
			"user_id": id,
			"error":   err.Error(),
		})
		return nil
	}

	ref := &UserRef{ID: u.ID, DisplayName: u.DisplayName()}
	if serverID != "" {
		roles, err := e.directory.Roles(ctx, serverID, id)
		if err != nil {
			logger.WarnCF("enrich", "Role lookup failed", map[string]any{
				"user_id": id,
				"error":   err.Error(),
			})
		}
		ref.Roles = slices.DeleteFunc(roles, func(r string) bool { return r == "@everyone" })
	}

	ref.AvatarDescription = e.describe(ctx, u.AvatarURL, DescribeImageInstruction)
	ref.BannerDescription = e.describe(ctx, u.BannerURL, DescribeImageInstruction)
	return ref
}

func (e *Engine) images(ctx context.Context, sources []references.ImageSource) []ImageRef {
	out := make([]ImageRef, len(sources))
	g := e.group()
	for i, src := range sources {
		g.Go(func() error {
			out[i] = ImageRef{
				SourceURL:   src.URL,
				Owner:       src.Owner,
				Description: e.describe(ctx, src.URL, DescribeImageInstruction),
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) emoji(ctx context.Context, emoji []references.Emoji) []EmojiRef {
	out := make([]EmojiRef, len(emoji))
	g := e.group()
	for i, em := range emoji {
		g.Go(func() error {
			out[i] = EmojiRef{
				Emoji:       em,
				Description: e.describe(ctx, em.URL, fmt.Sprintf(emojiInstructionFormat, em.Name)),
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) describe(ctx context.Context, url, instruction string) string {
	if url == "" || e.vision == nil {
		return ""
	}
	var err error
	desc := guard("Vision description panicked", map[string]any{"url": url}, func() string {
		var d string
		d, err = e.vision.Describe(ctx, url, instruction)
		return d
	})
	if err != nil {
		logger.WarnCF("enrich", "Vision description failed", map[string]any{
			"url":   url,
			"error": err.Error(),
		})
		return ""
	}
	return desc
}

func (e *Engine) group() *errgroup.Group {
	g := &errgroup.Group{}
	g.SetLimit(e.fanOut)
	return g
}

// guard runs fn on an errgroup goroutine, where a panic would otherwise
// bypass the caller's recover. A panic is logged and yields the zero value.
func guard[T any](msg string, fields map[string]any, fn func() T) (out T) {
	defer func() {
		if p := recover(); p != nil {
			fields["panic"] = fmt.Sprint(p)
			logger.ErrorCF("enrich", msg, fields)
			var zero T
			out = zero
		}
	}()
	return fn()
}
