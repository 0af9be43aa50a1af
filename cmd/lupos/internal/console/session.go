package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tinyland-inc/lupos/pkg/chat"
	"github.com/tinyland-inc/lupos/pkg/metering"
	"github.com/tinyland-inc/lupos/pkg/responder"
)

const consoleChannelID = "console"

type assistant interface {
	Respond(ctx context.Context, req responder.Request) responder.Result
	Mood(ctx context.Context, msg chat.Message) (int, error)
	News(ctx context.Context, msg chat.Message) (string, error)
	Topic(ctx context.Context, text string) (string, error)
	Digest(ctx context.Context) (string, error)
}

type statsSource interface {
	Snapshot() []metering.BackendMeter
}

// session is the in-memory channel the console talks through.
type session struct {
	assistant assistant
	stats     statsSource
	user      chat.User
	self      chat.User
	recent    int
	now       func() time.Time

	seq    atomic.Int64
	window []chat.Message
}

func newSession(a assistant, stats statsSource, user, self chat.User, recent int) *session {
	return &session{
		assistant: a,
		stats:     stats,
		user:      user,
		self:      self,
		recent:    max(recent, 1),
		now:       time.Now,
	}
}

const helpText = `/stats          backend call statistics
/mood <text>    rate the tone of text
/news <text>    most related news item
/topic <text>   what text is about
/digest         summary of the current news feed
exit, quit      leave`

// handle answers one input line. An empty reply means nothing to print.
func (s *session) handle(ctx context.Context, line string) (string, error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "":
		return "", nil
	case "/help":
		return helpText, nil
	case "/stats":
		return formatStats(s.stats.Snapshot()), nil
	case "/mood":
		mood, err := s.assistant.Mood(ctx, s.message(s.user, arg))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("mood: %d", mood), nil
	case "/news":
		news, err := s.assistant.News(ctx, s.message(s.user, arg))
		if err != nil {
			return "", err
		}
		if news == "" {
			return "(no related news)", nil
		}
		return news, nil
	case "/topic":
		return s.assistant.Topic(ctx, arg)
	case "/digest":
		return s.assistant.Digest(ctx)
	}

	msg := s.message(s.user, strings.TrimSpace(line))
	res := s.assistant.Respond(ctx, responder.Request{Message: msg, Window: s.history(msg)})
	s.remember(msg)
	if res.Err != nil {
		return "", res.Err
	}
	s.remember(s.message(s.self, res.Text))
	return res.Text, nil
}

func (s *session) message(author chat.User, content string) chat.Message {
	return chat.Message{
		ID:        strconv.FormatInt(s.seq.Add(1), 10),
		Author:    author,
		Content:   content,
		Timestamp: s.now(),
		Channel:   chat.Channel{ID: consoleChannelID, Name: consoleChannelID},
	}
}

// history is the window the message is answered in, oldest first.
func (s *session) history(msg chat.Message) []chat.Message {
	window := make([]chat.Message, 0, len(s.window)+1)
	window = append(window, s.window...)
	return append(window, msg)
}

func (s *session) remember(msg chat.Message) {
	s.window = append(s.window, msg)
	if over := len(s.window) - s.recent; over > 0 {
		s.window = append(s.window[:0:0], s.window[over:]...)
	}
}

func formatStats(meters []metering.BackendMeter) string {
	if len(meters) == 0 {
		return "no backend calls yet"
	}
	var sb strings.Builder
	for _, m := range meters {
		fmt.Fprintf(&sb, "%s: %d calls, %d errors, avg %s\n",
			m.Backend, m.TotalCalls, m.Errors, m.AverageLatency().Round(time.Millisecond))
		for _, kind := range m.KindNames() {
			k := m.Kinds[kind]
			fmt.Fprintf(&sb, "  %-6s %d calls, %d errors, last model %s\n", kind, k.Calls, k.Errors, k.LastModel)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
