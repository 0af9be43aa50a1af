package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tinyland-inc/lupos/pkg/chat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func trigger() chat.Message {
	return chat.Message{
		ID:      "m2",
		Author:  chat.User{ID: "123", Username: "rex"},
		Content: "hi <@900>",
		Channel: chat.Channel{ID: "c1", Name: "den"},
	}
}

func TestPublishConsumeInbound(t *testing.T) {
	mb := NewMessageBus(0)
	defer mb.Close()

	window := []chat.Message{{ID: "m1"}, trigger()}
	in := NewInbound("discord", trigger(), nil, window)
	require.NotEqual(t, uuid.Nil, in.ID)
	require.NoError(t, mb.PublishInbound(t.Context(), in))

	got, ok := mb.ConsumeInbound(t.Context())
	require.True(t, ok)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, "m2", got.Message.ID)
	assert.Len(t, got.Window, 2)
}

func TestReplyCarriesRouting(t *testing.T) {
	in := NewInbound("discord", trigger(), nil, nil)
	out := in.Reply("awoo", File{Name: "wolf.png", ContentType: "image/png", Data: []byte{1}})

	assert.Equal(t, in.ID, out.CorrelationID)
	assert.Equal(t, "discord", out.Channel)
	assert.Equal(t, "c1", out.ChannelID)
	assert.Equal(t, "m2", out.ReplyToID)
	assert.Equal(t, "awoo", out.Content)
	assert.Len(t, out.Files, 1)
}

func TestPublishAfterClose(t *testing.T) {
	mb := NewMessageBus(1)
	mb.Close()
	mb.Close()

	err := mb.PublishInbound(t.Context(), InboundMessage{})
	assert.True(t, errors.Is(err, ErrBusClosed))
	err = mb.PublishOutbound(t.Context(), OutboundMessage{})
	assert.True(t, errors.Is(err, ErrBusClosed))

	_, ok := mb.ConsumeInbound(t.Context())
	assert.False(t, ok)
}

func TestPublishBlocksUntilContextDone(t *testing.T) {
	mb := NewMessageBus(1)
	defer mb.Close()

	require.NoError(t, mb.PublishOutbound(t.Context(), OutboundMessage{Content: "first"}))

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	err := mb.PublishOutbound(ctx, OutboundMessage{Content: "second"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	in, out := mb.Pending()
	assert.Equal(t, 0, in)
	assert.Equal(t, 1, out)
}

func TestCloseWakesConsumers(t *testing.T) {
	mb := NewMessageBus(0)

	var wg sync.WaitGroup
	results := make(chan bool, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := mb.SubscribeOutbound(context.Background())
			results <- ok
		}()
	}

	mb.Close()
	wg.Wait()
	close(results)
	for ok := range results {
		assert.False(t, ok)
	}
}
