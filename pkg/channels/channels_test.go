package channels

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"

	"github.com/tinyland-inc/lupos/pkg/bus"
	"github.com/tinyland-inc/lupos/pkg/chat"
)

const selfID = "900"

func TestAddressed(t *testing.T) {
	rex := &discordgo.User{ID: "123", Username: "rex"}
	self := &discordgo.User{ID: selfID, Username: "lupos", Bot: true}

	tests := []struct {
		name string
		msg  *discordgo.Message
		dm   bool
		want bool
	}{
		{
			name: "mention",
			msg:  &discordgo.Message{GuildID: "g1", Author: rex, Content: "hey <@900>", Mentions: []*discordgo.User{self}},
			want: true,
		},
		{
			name: "nickname mention in content",
			msg:  &discordgo.Message{GuildID: "g1", Author: rex, Content: "hey <@!900>"},
			want: true,
		},
		{
			name: "reply to bot",
			msg: &discordgo.Message{
				GuildID:           "g1",
				Author:            rex,
				Content:           "and then?",
				ReferencedMessage: &discordgo.Message{ID: "m0", Author: self},
			},
			want: true,
		},
		{
			name: "reply to someone else",
			msg: &discordgo.Message{
				GuildID:           "g1",
				Author:            rex,
				Content:           "lol",
				ReferencedMessage: &discordgo.Message{ID: "m0", Author: &discordgo.User{ID: "456"}},
			},
			want: false,
		},
		{
			name: "unrelated guild message",
			msg:  &discordgo.Message{GuildID: "g1", Author: rex, Content: "<@456> hi"},
			want: false,
		},
		{
			name: "direct message enabled",
			msg:  &discordgo.Message{Author: rex, Content: "hi"},
			dm:   true,
			want: true,
		},
		{
			name: "direct message disabled",
			msg:  &discordgo.Message{Author: rex, Content: "hi"},
			want: false,
		},
		{
			name: "own message",
			msg:  &discordgo.Message{GuildID: "g1", Author: self, Content: "<@900>"},
			want: false,
		},
		{
			name: "no author",
			msg:  &discordgo.Message{GuildID: "g1", Content: "<@900>"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Addressed(tt.msg, selfID, tt.dm); got != tt.want {
				t.Errorf("Addressed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAddressedBeforeReady(t *testing.T) {
	msg := &discordgo.Message{Author: &discordgo.User{ID: "123"}, Content: "hi"}
	if Addressed(msg, "", true) {
		t.Error("Addressed() = true with unknown self id")
	}
}

func TestConvertMessage(t *testing.T) {
	ts := time.Date(2024, 3, 1, 15, 4, 0, 0, time.UTC)
	m := &discordgo.Message{
		ID:        "m2",
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   "look <@456>",
		Timestamp: ts,
		Author: &discordgo.User{
			ID:         "123",
			Username:   "rex",
			GlobalName: "Rex",
			Avatar:     "abc",
			Banner:     "def",
		},
		Attachments: []*discordgo.MessageAttachment{
			{URL: "https://cdn.example/wolf.png", ContentType: "image/png"},
			nil,
		},
		MessageReference: &discordgo.MessageReference{MessageID: "m1"},
	}
	member := &discordgo.Member{Nick: "Rexy"}
	server := &chat.Server{ID: "g1", Name: "Den"}

	got := ConvertMessage(m, member, chat.Channel{Name: "general"}, server)

	want := chat.Message{
		ID: "m2",
		Author: chat.User{
			ID:         "123",
			Username:   "rex",
			GlobalName: "Rex",
			Nick:       "Rexy",
			AvatarURL:  discordgo.EndpointUserAvatar("123", "abc"),
			BannerURL:  got.Author.BannerURL,
		},
		Content:     "look <@456>",
		Attachments: []chat.Attachment{{URL: "https://cdn.example/wolf.png", ContentType: "image/png"}},
		ReplyToID:   "m1",
		Timestamp:   ts,
		Channel:     chat.Channel{ID: "c1", Name: "general"},
		Server:      server,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ConvertMessage() mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(got.Author.BannerURL, "banners/123/def") {
		t.Errorf("BannerURL = %q, want banner endpoint", got.Author.BannerURL)
	}
	if got.Author.DisplayName() != "Rexy" {
		t.Errorf("DisplayName() = %q, want Rexy", got.Author.DisplayName())
	}
}

func TestConvertMessageDirect(t *testing.T) {
	m := &discordgo.Message{ID: "m1", ChannelID: "dm1", Author: &discordgo.User{ID: "123", Username: "rex"}}
	got := ConvertMessage(m, nil, chat.Channel{}, nil)
	if got.ServerID() != "" {
		t.Errorf("ServerID() = %q, want empty", got.ServerID())
	}
	if got.Channel.ID != "dm1" {
		t.Errorf("Channel.ID = %q, want dm1", got.Channel.ID)
	}
	if got.Author.BannerURL != "" {
		t.Errorf("BannerURL = %q, want empty", got.Author.BannerURL)
	}
}

func TestMatchReactions(t *testing.T) {
	reactions := map[string]string{
		"wolf":  "🐺",
		"howl":  "🌕",
		"moon":  "🌕",
		"":      "❓",
		"quiet": "",
	}
	tests := []struct {
		content string
		want    []string
	}{
		{"A WOLF howls at the Moon", []string{"🌕", "🐺"}},
		{"nothing here", nil},
		{"", nil},
		{"stay quiet", nil},
	}
	for _, tt := range tests {
		got := MatchReactions(tt.content, reactions)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("MatchReactions(%q) mismatch (-want +got):\n%s", tt.content, diff)
		}
	}
}

func TestHowl(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "Awo!"},
		{4, "Awooooo!"},
		{9, "Awoooooooooo!"},
	}
	for _, tt := range tests {
		got := Howl(func(int) int { return tt.n })
		if got != tt.want {
			t.Errorf("Howl(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}

	var bound int
	Howl(func(n int) int { bound = n; return 0 })
	if bound != 10 {
		t.Errorf("Howl asked for IntN(%d), want IntN(10)", bound)
	}
}

func TestIsAllowed(t *testing.T) {
	msg := chat.Message{
		Author:  chat.User{ID: "123"},
		Channel: chat.Channel{ID: "c1"},
		Server:  &chat.Server{ID: "g1"},
	}
	tests := []struct {
		name  string
		allow []string
		want  bool
	}{
		{"empty list", nil, true},
		{"channel", []string{"c1"}, true},
		{"author", []string{" 123 "}, true},
		{"server", []string{"g1"}, true},
		{"other", []string{"c2", ""}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewBaseChannel("test", nil, tt.allow)
			if got := c.IsAllowed(msg); got != tt.want {
				t.Errorf("IsAllowed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleMessagePublishes(t *testing.T) {
	mb := bus.NewMessageBus(1)
	defer mb.Close()
	c := NewBaseChannel("discord", mb, []string{"c1"})

	msg := chat.Message{ID: "m2", Channel: chat.Channel{ID: "c1"}}
	replied := &chat.Message{ID: "m1"}
	c.HandleMessage(t.Context(), msg, replied, []chat.Message{*replied, msg})

	in, ok := mb.ConsumeInbound(t.Context())
	if !ok {
		t.Fatal("no inbound message")
	}
	if in.Channel != "discord" || in.Message.ID != "m2" || in.Replied.ID != "m1" || len(in.Window) != 2 {
		t.Errorf("inbound = %+v", in)
	}

	c.HandleMessage(t.Context(), chat.Message{ID: "m3", Channel: chat.Channel{ID: "c9"}}, nil, nil)
	if in, out := mb.Pending(); in != 0 || out != 0 {
		t.Errorf("Pending() = %d, %d; want disallowed message dropped", in, out)
	}
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name    string
		content string
		limit   int
		want    []string
	}{
		{"short", "hello", 10, []string{"hello"}},
		{"no limit", "hello world", 0, []string{"hello world"}},
		{"on space", "aaaa bbbb cccc", 10, []string{"aaaa bbbb", "cccc"}},
		{"on newline", "aaaa\nbbbb cccc", 12, []string{"aaaa\nbbbb", "cccc"}},
		{"hard cut", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"runes", "ááááá", 2, []string{"áá", "áá", "á"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitMessage(tt.content, tt.limit)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("SplitMessage() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
