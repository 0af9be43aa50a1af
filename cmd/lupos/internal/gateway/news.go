package gateway

import (
	"context"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/lupos/pkg/bus"
	"github.com/tinyland-inc/lupos/pkg/logger"
)

type digester interface {
	Digest(ctx context.Context) (string, error)
}

// newsScheduler posts the feed digest to one channel on a cron schedule.
type newsScheduler struct {
	cron      string
	channel   string
	channelID string
	digest    digester
	bus       *bus.MessageBus

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func newNewsScheduler(cron, channel, channelID string, d digester, mb *bus.MessageBus) *newsScheduler {
	return &newsScheduler{
		cron:      cron,
		channel:   channel,
		channelID: channelID,
		digest:    d,
		bus:       mb,
		now:       time.Now,
		after:     time.After,
	}
}

func (s *newsScheduler) run(ctx context.Context) {
	logger.InfoCF("news", "Digest scheduler started", map[string]any{"cron": s.cron, "channel_id": s.channelID})
	for {
		next, err := gronx.NextTickAfter(s.cron, s.now(), false)
		if err != nil {
			logger.ErrorCF("news", "Failed to compute next tick", map[string]any{"cron": s.cron, "error": err.Error()})
			next = s.now().Add(30 * time.Second)
		}

		select {
		case <-ctx.Done():
			logger.InfoC("news", "Digest scheduler stopping")
			return
		case <-s.after(time.Until(next)):
		}

		if err == nil {
			s.post(ctx)
		}
	}
}

func (s *newsScheduler) post(ctx context.Context) {
	content, err := s.digest.Digest(ctx)
	if err != nil {
		logger.WarnCF("news", "Digest failed", map[string]any{"error": err.Error()})
		return
	}
	if content == "" {
		logger.DebugC("news", "Feed empty, nothing to post")
		return
	}
	err = s.bus.PublishOutbound(ctx, bus.OutboundMessage{
		Channel:   s.channel,
		ChannelID: s.channelID,
		Content:   content,
	})
	if err != nil {
		logger.WarnCF("news", "Failed to queue digest", map[string]any{"error": err.Error()})
	}
}
