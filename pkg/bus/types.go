package bus

import (
	"github.com/google/uuid"

	"github.com/tinyland-inc/lupos/pkg/chat"
)

// InboundMessage is one message the bot was addressed by, with the context
// the channel gathered for it.
type InboundMessage struct {
	ID      uuid.UUID      `json:"id"`
	Channel string         `json:"channel"`
	Message chat.Message   `json:"message"`
	Replied *chat.Message  `json:"replied,omitempty"`
	Window  []chat.Message `json:"window,omitempty"` // oldest first
}

// File is an attachment sent with an outbound message.
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

type OutboundMessage struct {
	// CorrelationID echoes the InboundMessage.ID this answers, if any.
	CorrelationID uuid.UUID `json:"correlation_id"`
	Channel       string    `json:"channel"`
	ChannelID     string    `json:"channel_id"`
	ReplyToID     string    `json:"reply_to_id,omitempty"`
	Content       string    `json:"content"`
	Files         []File    `json:"files,omitempty"`
}

// NewInbound stamps msg with a fresh correlation id.
func NewInbound(channel string, msg chat.Message, replied *chat.Message, window []chat.Message) InboundMessage {
	return InboundMessage{
		ID:      uuid.New(),
		Channel: channel,
		Message: msg,
		Replied: replied,
		Window:  window,
	}
}

// Reply builds the outbound answer to in.
func (in InboundMessage) Reply(content string, files ...File) OutboundMessage {
	return OutboundMessage{
		CorrelationID: in.ID,
		Channel:       in.Channel,
		ChannelID:     in.Message.Channel.ID,
		ReplyToID:     in.Message.ID,
		Content:       content,
		Files:         files,
	}
}
