package references

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tinyland-inc/lupos/pkg/chat"
)

var (
	bot    = chat.User{ID: "900", Username: "lupos", Bot: true}
	author = chat.User{ID: "100", Username: "alice"}
	other  = chat.User{ID: "200", Username: "bob"}
)

type fakeProber struct {
	images map[string]bool
	calls  []string
}

func (f *fakeProber) IsImage(_ context.Context, url string) (bool, error) {
	f.calls = append(f.calls, url)
	if url == "https://broken.example/x" {
		return false, errors.New("connection refused")
	}
	return f.images[url], nil
}

type fakePreviewer struct {
	previews map[string]string
}

func (f *fakePreviewer) Preview(_ context.Context, url string) (string, error) {
	img, ok := f.previews[url]
	if !ok {
		return "", errors.New("no preview")
	}
	return img, nil
}

func msg(a chat.User, content string) chat.Message {
	return chat.Message{ID: "m-" + a.ID, Author: a, Content: content}
}

func TestResolve_NoReferences(t *testing.T) {
	r := NewResolver(bot)
	refs := r.Resolve(t.Context(), msg(author, "hello there"), nil)

	if len(refs.UserIDs) != 0 {
		t.Errorf("UserIDs = %v, want empty", refs.UserIDs)
	}
	if len(refs.Images) != 0 {
		t.Errorf("Images = %v, want empty", refs.Images)
	}
	if len(refs.Emoji) != 0 || len(refs.Stickers) != 0 {
		t.Errorf("Emoji = %v, Stickers = %v, want empty", refs.Emoji, refs.Stickers)
	}
}

func TestResolve_DuplicateMentionsDeduped(t *testing.T) {
	r := NewResolver(bot)
	refs := r.Resolve(t.Context(), msg(author, "<@200> look at <@!200>"), nil)

	if diff := cmp.Diff([]string{"200"}, refs.UserIDs); diff != "" {
		t.Errorf("UserIDs mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_SelfMentionExclusivity(t *testing.T) {
	r := NewResolver(bot)
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"mentioned once is dropped", "<@900> hello", []string{}},
		{"and you re-adds once", "<@900> tell <@200> and you", []string{"200", "900"}},
		{"with you", "<@900> can he come with you", []string{"900"}},
		{"yourself", "<@900> describe yourself", []string{"900"}},
		{"us adds responder and author", "<@900> draw us", []string{"900", "100"}},
		{"mentioned twice is kept", "<@900> <@900> hi", []string{"900"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := r.Resolve(t.Context(), msg(author, tt.content), nil)
			if diff := cmp.Diff(tt.want, refs.UserIDs); diff != "" {
				t.Errorf("UserIDs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolve_FirstPersonAddsAuthor(t *testing.T) {
	r := NewResolver(bot)

	refs := r.Resolve(t.Context(), msg(author, "<@900> what do I look like"), nil)
	if diff := cmp.Diff([]string{"100"}, refs.UserIDs); diff != "" {
		t.Errorf("UserIDs mismatch (-want +got):\n%s", diff)
	}

	// "Ice" must not count as "I".
	refs = r.Resolve(t.Context(), msg(author, "<@900> Ice cream"), nil)
	if len(refs.UserIDs) != 0 {
		t.Errorf("UserIDs = %v, want empty", refs.UserIDs)
	}
}

func TestResolve_ReplyContributions(t *testing.T) {
	r := NewResolver(bot)
	replied := msg(other, "tell me about <@300>")
	refs := r.Resolve(t.Context(), msg(author, "<@900> what about this"), &replied)

	if diff := cmp.Diff([]string{"300", "200"}, refs.UserIDs); diff != "" {
		t.Errorf("UserIDs mismatch (-want +got):\n%s", diff)
	}

	// Only lowercase "me" counts in the replied message.
	replied = msg(other, "I think so")
	refs = r.Resolve(t.Context(), msg(author, "<@900> thoughts?"), &replied)
	if len(refs.UserIDs) != 0 {
		t.Errorf("UserIDs = %v, want empty", refs.UserIDs)
	}
}

func TestResolve_Images(t *testing.T) {
	prober := &fakeProber{images: map[string]bool{"https://img.example/a.png": true}}
	previewer := &fakePreviewer{previews: map[string]string{
		"https://tenor.com/view/wolf-123": "https://media.tenor.com/wolf.gif",
	}}
	r := NewResolver(bot, WithProber(prober), WithPreviewer(previewer))

	m := msg(author, "look https://img.example/a.png https://example.com/page https://tenor.com/view/wolf-123 https://broken.example/x")
	m.Attachments = []chat.Attachment{
		{URL: "https://cdn.example/att.jpg", ContentType: "image/jpeg"},
		{URL: "https://cdn.example/doc.pdf", ContentType: "application/pdf"},
	}
	replied := msg(other, "mine https://img.example/a.png")
	replied.Attachments = []chat.Attachment{{URL: "https://cdn.example/r.png", ContentType: "image/png"}}

	refs := r.Resolve(t.Context(), m, &replied)

	want := []ImageSource{
		{URL: "https://cdn.example/att.jpg", Owner: author},
		{URL: "https://img.example/a.png", Owner: author},
		{URL: "https://media.tenor.com/wolf.gif", Owner: author},
		{URL: "https://cdn.example/r.png", Owner: other},
	}
	if diff := cmp.Diff(want, refs.Images); diff != "" {
		t.Errorf("Images mismatch (-want +got):\n%s", diff)
	}
	for _, c := range prober.calls {
		if c == "https://tenor.com/view/wolf-123" {
			t.Errorf("preview page was probed instead of scraped")
		}
	}
}

func TestResolve_EmojiOrder(t *testing.T) {
	r := NewResolver(bot)
	replied := msg(other, "<:moon:11>")
	refs := r.Resolve(t.Context(), msg(author, "hi <:wolf:22> and <a:howl:33> again <:wolf:22>"), &replied)

	want := []Emoji{
		{ID: "11", Tag: "<:moon:11>", Name: "moon", URL: "https://cdn.discordapp.com/emojis/11.png"},
		{ID: "22", Tag: "<:wolf:22>", Name: "wolf", URL: "https://cdn.discordapp.com/emojis/22.png"},
		{ID: "33", Tag: "<a:howl:33>", Name: "howl", URL: "https://cdn.discordapp.com/emojis/33.gif", Animated: true},
	}
	if diff := cmp.Diff(want, refs.Emoji); diff != "" {
		t.Errorf("Emoji mismatch (-want +got):\n%s", diff)
	}
}

func TestParseEmoji_SkipsMalformed(t *testing.T) {
	got := ParseEmoji("<:broken123> <:ok:1>\n#tag <::2>")
	if len(got) != 1 || got[0].Name != "ok" {
		t.Errorf("ParseEmoji() = %+v, want only the ok emoji", got)
	}
}

func TestResolve_Stickers(t *testing.T) {
	r := NewResolver(bot)
	refs := r.Resolve(t.Context(), msg(author, "<:pack:77>"), nil)
	if len(refs.Stickers) != 1 || refs.Stickers[0].ID != "77" {
		t.Errorf("Stickers = %+v", refs.Stickers)
	}
}
