package gateway

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tinyland-inc/lupos/pkg/bus"
	"github.com/tinyland-inc/lupos/pkg/channels"
	"github.com/tinyland-inc/lupos/pkg/chat"
	"github.com/tinyland-inc/lupos/pkg/logger"
	"github.com/tinyland-inc/lupos/pkg/providers"
	"github.com/tinyland-inc/lupos/pkg/responder"
)

type pipeline interface {
	Respond(ctx context.Context, req responder.Request) responder.Result
	ImagePrompt(ctx context.Context, msg chat.Message, imagePrompt, textResponse string) (string, error)
}

type sideOutputs interface {
	HasImage() bool
	HasVoice() bool
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
	GenerateVoice(ctx context.Context, text string) (providers.Voice, error)
}

// worker turns inbound messages into replies with optional image and voice
// attachments.
type worker struct {
	pipeline pipeline
	media    sideOutputs
	typing   channels.TypingIndicator
	readFile func(string) ([]byte, error)
}

func newWorker(p pipeline, media sideOutputs, typing channels.TypingIndicator) *worker {
	return &worker{pipeline: p, media: media, typing: typing, readFile: os.ReadFile}
}

func (w *worker) run(ctx context.Context, id int, mb *bus.MessageBus) {
	logger.DebugCF("gateway", "Worker started", map[string]any{"worker": id})
	for {
		in, ok := mb.ConsumeInbound(ctx)
		if !ok {
			return
		}
		out, ok := w.handle(ctx, in)
		if !ok {
			continue
		}
		if err := mb.PublishOutbound(ctx, out); err != nil {
			logger.WarnCF("gateway", "Failed to queue reply", map[string]any{
				"correlation_id": in.ID.String(),
				"error":          err.Error(),
			})
		}
	}
}

// handle reports false when nothing should be sent.
func (w *worker) handle(ctx context.Context, in bus.InboundMessage) (bus.OutboundMessage, bool) {
	if w.typing != nil {
		stop := w.typing.StartTyping(ctx, in.Message.Channel.ID)
		defer stop()
	}

	res := w.pipeline.Respond(ctx, responder.Request{
		Message: in.Message,
		Replied: in.Replied,
		Window:  in.Window,
	})
	if res.Err != nil || res.Text == "" {
		return bus.OutboundMessage{}, false
	}

	files := w.attachments(ctx, in.Message, res)
	logger.InfoCF("gateway", "Reply ready", map[string]any{
		"correlation_id": in.ID.String(),
		"message_id":     in.Message.ID,
		"length":         len(res.Text),
		"files":          len(files),
	})
	return in.Reply(res.Text, files...), true
}

// attachments runs the image and voice side outputs concurrently. Failures
// only drop the attachment.
func (w *worker) attachments(ctx context.Context, msg chat.Message, res responder.Result) []bus.File {
	if w.media == nil {
		return nil
	}
	var (
		mu    sync.Mutex
		files []bus.File
		g     errgroup.Group
	)
	add := func(f bus.File) {
		mu.Lock()
		defer mu.Unlock()
		files = append(files, f)
	}

	if w.media.HasImage() {
		g.Go(func() error {
			f, err := w.image(ctx, msg, res)
			if err != nil {
				logger.WarnCF("gateway", "Image side output failed", map[string]any{"error": err.Error()})
				return nil
			}
			add(f)
			return nil
		})
	}
	if w.media.HasVoice() {
		g.Go(func() error {
			f, err := w.voice(ctx, res.Text)
			if err != nil {
				logger.WarnCF("gateway", "Voice side output failed", map[string]any{"error": err.Error()})
				return nil
			}
			add(f)
			return nil
		})
	}
	_ = g.Wait()

	// image first regardless of completion order
	if len(files) == 2 && files[0].ContentType != "image/png" {
		files[0], files[1] = files[1], files[0]
	}
	return files
}

func (w *worker) image(ctx context.Context, msg chat.Message, res responder.Result) (bus.File, error) {
	prompt, err := w.pipeline.ImagePrompt(ctx, msg, res.ImagePrompt, res.Text)
	if err != nil {
		return bus.File{}, err
	}
	data, err := w.media.GenerateImage(ctx, prompt)
	if err != nil {
		return bus.File{}, err
	}
	return bus.File{Name: "lupos.png", ContentType: "image/png", Data: data}, nil
}

// voice attaches synthesized speech. Backends that only return a file name
// wrote the audio to a path shared with this host.
func (w *worker) voice(ctx context.Context, text string) (bus.File, error) {
	v, err := w.media.GenerateVoice(ctx, text)
	if err != nil {
		return bus.File{}, err
	}
	data := v.Data
	if len(data) == 0 {
		if v.Filename == "" {
			return bus.File{}, fmt.Errorf("voice: %w", providers.ErrEmptyResponse)
		}
		if data, err = w.readFile(v.Filename); err != nil {
			return bus.File{}, fmt.Errorf("voice: %w", err)
		}
	}
	name := filepath.Base(v.Filename)
	if v.Filename == "" {
		name = "lupos.mp3"
	}
	return bus.File{Name: name, ContentType: audioType(name), Data: data}, nil
}

func audioType(name string) string {
	switch filepath.Ext(name) {
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}

// deliver sends queued replies until the bus closes.
func deliver(ctx context.Context, mb *bus.MessageBus, chans map[string]channels.Channel) {
	for {
		out, ok := mb.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		ch, found := chans[out.Channel]
		if !found {
			logger.WarnCF("gateway", "No channel for reply", map[string]any{"channel": out.Channel})
			continue
		}
		if err := ch.Send(ctx, out); err != nil {
			logger.ErrorCF("gateway", "Failed to send reply", map[string]any{
				"channel":    out.Channel,
				"channel_id": out.ChannelID,
				"error":      err.Error(),
			})
		}
	}
}
