// Package channels connects chat platforms to the message bus.
package channels

import (
	"context"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/tinyland-inc/lupos/pkg/bus"
	"github.com/tinyland-inc/lupos/pkg/chat"
	"github.com/tinyland-inc/lupos/pkg/logger"
)

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
	IsAllowed(msg chat.Message) bool
}

// TypingIndicator is implemented by channels that can show the bot typing.
// The returned func stops the indicator.
type TypingIndicator interface {
	StartTyping(ctx context.Context, channelID string) (stop func())
}

// BaseChannelOption is a functional option for configuring a BaseChannel.
type BaseChannelOption func(*BaseChannel)

// WithMaxMessageLength sets the maximum message length (in runes) for a channel.
// Longer outbound messages are split. A value of 0 means no limit.
func WithMaxMessageLength(n int) BaseChannelOption {
	return func(c *BaseChannel) { c.maxMessageLength = n }
}

type BaseChannel struct {
	bus              *bus.MessageBus
	running          atomic.Bool
	name             string
	allowList        []string
	maxMessageLength int
}

func NewBaseChannel(name string, mb *bus.MessageBus, allowList []string, opts ...BaseChannelOption) *BaseChannel {
	bc := &BaseChannel{
		bus:       mb,
		name:      name,
		allowList: allowList,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// MaxMessageLength returns the maximum message length (in runes) for this channel.
// A value of 0 means no limit.
func (c *BaseChannel) MaxMessageLength() int {
	return c.maxMessageLength
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) SetRunning(running bool) {
	c.running.Store(running)
}

// IsAllowed matches the allow list against the message's channel, server
// and author ids. An empty list allows everything.
func (c *BaseChannel) IsAllowed(msg chat.Message) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if allowed == msg.Channel.ID || allowed == msg.Author.ID || allowed == msg.ServerID() {
			return true
		}
	}
	return false
}

// HandleMessage publishes an addressed message with its context.
func (c *BaseChannel) HandleMessage(ctx context.Context, msg chat.Message, replied *chat.Message, window []chat.Message) {
	if !c.IsAllowed(msg) {
		logger.DebugCF(c.name, "Message outside allow list", map[string]any{
			"channel_id": msg.Channel.ID,
			"author_id":  msg.Author.ID,
		})
		return
	}

	in := bus.NewInbound(c.name, msg, replied, window)
	if err := c.bus.PublishInbound(ctx, in); err != nil {
		logger.WarnCF(c.name, "Failed to publish inbound message", map[string]any{
			"message_id": msg.ID,
			"error":      err.Error(),
		})
	}
}

// SplitMessage cuts content into chunks of at most limit runes, preferring
// line breaks, then spaces. limit <= 0 returns content whole.
func SplitMessage(content string, limit int) []string {
	runes := []rune(content)
	if limit <= 0 || len(runes) <= limit {
		return []string{content}
	}

	var parts []string
	for len(runes) > limit {
		cut := limit
		if i := lastIndex(runes[:limit], '\n'); i > limit/2 {
			cut = i + 1
		} else if i := lastIndex(runes[:limit], ' '); i > limit/2 {
			cut = i + 1
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), " \n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return slices.DeleteFunc(parts, func(s string) bool { return s == "" })
}

func lastIndex(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
