package enrich

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tinyland-inc/lupos/pkg/chat"
	"github.com/tinyland-inc/lupos/pkg/knowledge"
	"github.com/tinyland-inc/lupos/pkg/references"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeVision struct {
	mu       sync.Mutex
	calls    map[string]string
	fail     map[string]bool
	panics   map[string]bool
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeVision) Describe(_ context.Context, url, instruction string) (string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]string{}
	}
	f.calls[url] = instruction
	f.mu.Unlock()

	if f.panics[url] {
		panic("vision exploded")
	}
	if f.fail[url] {
		return "", errors.New("vision backend down")
	}
	return "desc of " + url, nil
}

func newDirectory() *chat.StaticDirectory {
	d := chat.NewStaticDirectory()
	d.Put(chat.User{ID: "1", Username: "rex", AvatarURL: "https://a/1.jpg", BannerURL: "https://b/1.jpg"}, "@everyone", "Alpha")
	d.Put(chat.User{ID: "2", Username: "fang"})
	return d
}

func TestEnrich_Users(t *testing.T) {
	vision := &fakeVision{}
	matcher := knowledge.NewMatcher([]knowledge.Snippet{{Trigger: "rex", Description: "Rex guards the den."}}, nil)
	e := NewEngine(newDirectory(), vision, matcher, "900")

	msg := chat.Message{Content: "hi <@1> <@2>", Server: &chat.Server{ID: "s"}}
	res := e.Enrich(t.Context(), msg, references.Refs{UserIDs: []string{"1", "2", "404"}})

	require.Len(t, res.Users, 2)
	rex := res.Users[0]
	assert.Equal(t, "rex", rex.DisplayName)
	assert.Equal(t, []string{"Alpha"}, rex.Roles)
	assert.Equal(t, "Rex guards the den.", rex.KnowledgeDescription)
	assert.Equal(t, "desc of https://a/1.jpg", rex.AvatarDescription)
	assert.Equal(t, "desc of https://b/1.jpg", rex.BannerDescription)

	fang := res.Users[1]
	assert.Empty(t, fang.AvatarDescription, "no avatar means no vision call")
	assert.Empty(t, fang.BannerDescription)

	assert.Len(t, vision.calls, 2)
	require.Len(t, res.Knowledge, 1)
	assert.Equal(t, "rex", res.Knowledge[0].Word)
}

func TestEnrich_DirectMessageHasNoRoles(t *testing.T) {
	e := NewEngine(newDirectory(), &fakeVision{}, nil, "900")
	res := e.Enrich(t.Context(), chat.Message{}, references.Refs{UserIDs: []string{"1"}})
	require.Len(t, res.Users, 1)
	assert.Empty(t, res.Users[0].Roles)
}

func TestEnrich_ImageFailureDegrades(t *testing.T) {
	vision := &fakeVision{fail: map[string]bool{"https://img/2.png": true}}
	e := NewEngine(newDirectory(), vision, nil, "900")

	owner := chat.User{ID: "1", Username: "rex"}
	res := e.Enrich(t.Context(), chat.Message{}, references.Refs{Images: []references.ImageSource{
		{URL: "https://img/1.png", Owner: owner},
		{URL: "https://img/2.png", Owner: owner},
		{URL: "https://img/3.png", Owner: owner},
	}})

	require.Len(t, res.Images, 3)
	assert.Equal(t, "desc of https://img/1.png", res.Images[0].Description)
	assert.Empty(t, res.Images[1].Description)
	assert.Equal(t, "https://img/2.png", res.Images[1].SourceURL)
	assert.Equal(t, "desc of https://img/3.png", res.Images[2].Description)
}

type panickyDirectory struct{ chat.Directory }

func (panickyDirectory) User(context.Context, string) (chat.User, error) {
	panic("directory exploded")
}

func TestEnrich_PanicsDegradeReference(t *testing.T) {
	vision := &fakeVision{panics: map[string]bool{"https://img/2.png": true, "https://a/1.jpg": true}}
	e := NewEngine(newDirectory(), vision, nil, "900")

	var res Result
	require.NotPanics(t, func() {
		res = e.Enrich(t.Context(), chat.Message{Server: &chat.Server{ID: "s"}}, references.Refs{
			UserIDs: []string{"1"},
			Images: []references.ImageSource{
				{URL: "https://img/1.png"},
				{URL: "https://img/2.png"},
			},
		})
	})

	require.Len(t, res.Images, 2)
	assert.Equal(t, "desc of https://img/1.png", res.Images[0].Description)
	assert.Equal(t, "https://img/2.png", res.Images[1].SourceURL)
	assert.Empty(t, res.Images[1].Description)

	require.Len(t, res.Users, 1)
	assert.Empty(t, res.Users[0].AvatarDescription)
	assert.Equal(t, "desc of https://b/1.jpg", res.Users[0].BannerDescription)
}

func TestEnrich_DirectoryPanicDropsUser(t *testing.T) {
	e := NewEngine(panickyDirectory{}, &fakeVision{}, nil, "900")

	var res Result
	require.NotPanics(t, func() {
		res = e.Enrich(t.Context(), chat.Message{}, references.Refs{UserIDs: []string{"1"}})
	})
	assert.Empty(t, res.Users)
}

func TestEnrich_EmojiInstructionAndOrder(t *testing.T) {
	vision := &fakeVision{}
	e := NewEngine(nil, vision, nil, "900")

	emoji := references.ParseEmoji("<:wolf:1> <:moon:2> <:star:3>")
	res := e.Enrich(t.Context(), chat.Message{}, references.Refs{Emoji: emoji})

	require.Len(t, res.Emoji, 3)
	for i, name := range []string{"wolf", "moon", "star"} {
		assert.Equal(t, name, res.Emoji[i].Name)
	}
	instr := vision.calls["https://cdn.discordapp.com/emojis/1.png"]
	assert.True(t, strings.HasPrefix(instr, "Describe this image named wolf."), instr)
	assert.Contains(t, instr, "Do not mention that it is low quality")
}

func TestEnrich_FanOutBounded(t *testing.T) {
	vision := &fakeVision{delay: 10 * time.Millisecond}
	e := NewEngine(nil, vision, nil, "900", WithFanOut(2))

	var sources []references.ImageSource
	for _, u := range []string{"a", "b", "c", "d", "e", "f"} {
		sources = append(sources, references.ImageSource{URL: "https://img/" + u})
	}
	res := e.Enrich(t.Context(), chat.Message{}, references.Refs{Images: sources})

	require.Len(t, res.Images, 6)
	for i, src := range sources {
		assert.Equal(t, src.URL, res.Images[i].SourceURL, "order restored by index")
	}
	assert.LessOrEqual(t, vision.peak.Load(), int32(2))
}

func TestResultUser(t *testing.T) {
	res := Result{Users: []UserRef{{ID: "1", DisplayName: "rex"}}}
	u, ok := res.User("1")
	assert.True(t, ok)
	assert.Equal(t, "<@1>", u.Tag())
	_, ok = res.User("2")
	assert.False(t, ok)
}
