// Package references extracts the users, images, emoji and stickers a
// message refers to.
package references

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/tinyland-inc/lupos/pkg/chat"
	"github.com/tinyland-inc/lupos/pkg/logger"
)

// ImageProber reports whether a URL serves an image.
type ImageProber interface {
	IsImage(ctx context.Context, url string) (bool, error)
}

// PreviewScraper extracts the preview image of a link page.
type PreviewScraper interface {
	Preview(ctx context.Context, url string) (string, error)
}

type ImageSource struct {
	URL   string
	Owner chat.User
}

type Emoji struct {
	ID       string
	Tag      string
	Name     string
	URL      string
	Animated bool
}

type Sticker struct {
	ID   string
	Name string
	Tag  string
}

// Refs is everything one message and its reply target point at.
type Refs struct {
	UserIDs  []string
	Images   []ImageSource
	Emoji    []Emoji
	Stickers []Sticker
}

var (
	mentionRe       = regexp.MustCompile(`<@!?(\d+)>`)
	selfRefRe       = regexp.MustCompile(`(?i)\b(me|i)\b`)
	replySelfRefRe  = regexp.MustCompile(`\bme\b`)
	secondPersonRe  = regexp.MustCompile(`(?i)\byourself\b|\band you\b|\bwith you\b`)
	usRe            = regexp.MustCompile(`(?i)\bus\b`)
	urlRe           = regexp.MustCompile(`https?://\S+`)
	emojiTokenRe    = regexp.MustCompile(`<(a)?:.+:\d+>`)
	emojiTagRe      = regexp.MustCompile(`<(a)?:([^:<>\s]+):(\d+)>`)
	stickerRe       = regexp.MustCompile(`<:([^:<>\s]+):(\d+)>`)
	emojiCleanupRep = strings.NewReplacer("\n", "", "#", "")
)

const emojiCDN = "https://cdn.discordapp.com/emojis/"

type Resolver struct {
	self         chat.User
	prober       ImageProber
	previewer    PreviewScraper
	previewHosts []string
}

type Option func(*Resolver)

func WithProber(p ImageProber) Option { return func(r *Resolver) { r.prober = p } }

func WithPreviewer(p PreviewScraper) Option { return func(r *Resolver) { r.previewer = p } }

// WithPreviewHosts sets the URL prefixes that are scraped for a preview
// image instead of probed.
func WithPreviewHosts(prefixes ...string) Option {
	return func(r *Resolver) { r.previewHosts = prefixes }
}

func NewResolver(self chat.User, opts ...Option) *Resolver {
	r := &Resolver{
		self:         self,
		previewHosts: []string{"https://tenor.com/view/"},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Resolve(ctx context.Context, msg chat.Message, replied *chat.Message) Refs {
	refs := Refs{
		UserIDs:  r.userIDs(msg, replied),
		Stickers: stickers(msg.Content),
	}

	refs.Images = r.images(ctx, msg)
	if replied != nil {
		refs.Images = append(refs.Images, r.images(ctx, *replied)...)
	}
	refs.Images = dedupeImages(refs.Images)

	if replied != nil {
		refs.Emoji = ParseEmoji(replied.Content)
	}
	refs.Emoji = dedupeEmoji(append(refs.Emoji, ParseEmoji(msg.Content)...))

	return refs
}

func (r *Resolver) userIDs(msg chat.Message, replied *chat.Message) []string {
	var mentions []string
	for _, m := range mentionRe.FindAllStringSubmatch(msg.Content, -1) {
		mentions = append(mentions, m[1])
	}
	if replied != nil {
		for _, m := range mentionRe.FindAllStringSubmatch(replied.Content, -1) {
			mentions = append(mentions, m[1])
		}
	}

	ids := slices.Clone(mentions)
	if selfRefRe.MatchString(msg.Content) && msg.Author.ID != "" {
		ids = append(ids, msg.Author.ID)
	}
	if replied != nil && replySelfRefRe.MatchString(replied.Content) && replied.Author.ID != "" {
		ids = append(ids, replied.Author.ID)
	}

	if countOf(mentions, r.self.ID) == 1 {
		ids = slices.DeleteFunc(ids, func(id string) bool { return id == r.self.ID })
	}
	if secondPersonRe.MatchString(msg.Content) {
		ids = append(ids, r.self.ID)
	}
	if usRe.MatchString(msg.Content) {
		ids = append(ids, r.self.ID, msg.Author.ID)
	}

	return dedupe(ids)
}

func (r *Resolver) images(ctx context.Context, msg chat.Message) []ImageSource {
	var out []ImageSource
	for _, a := range msg.Attachments {
		if a.IsImage() {
			out = append(out, ImageSource{URL: a.URL, Owner: msg.Author})
		}
	}

	for _, u := range urlRe.FindAllString(msg.Content, -1) {
		if r.isPreviewPage(u) {
			if r.previewer == nil {
				continue
			}
			img, err := r.previewer.Preview(ctx, u)
			if err != nil || img == "" {
				logger.WarnCF("references", "Link preview failed", map[string]any{
					"url":   u,
					"error": errString(err),
				})
				continue
			}
			out = append(out, ImageSource{URL: img, Owner: msg.Author})
			continue
		}

		if r.prober == nil {
			continue
		}
		ok, err := r.prober.IsImage(ctx, u)
		if err != nil {
			logger.DebugCF("references", "Image probe failed", map[string]any{
				"url":   u,
				"error": err.Error(),
			})
			continue
		}
		if ok {
			out = append(out, ImageSource{URL: u, Owner: msg.Author})
		}
	}
	return out
}

func (r *Resolver) isPreviewPage(u string) bool {
	for _, prefix := range r.previewHosts {
		if strings.HasPrefix(u, prefix) {
			return true
		}
	}
	return false
}

// ParseEmoji returns the custom emoji in content in order of appearance.
// Tokens that do not parse are skipped.
func ParseEmoji(content string) []Emoji {
	var out []Emoji
	for _, part := range strings.Split(content, " ") {
		if !emojiTokenRe.MatchString(part) {
			continue
		}
		cleaned := emojiCleanupRep.Replace(part)
		for _, m := range emojiTagRe.FindAllStringSubmatch(cleaned, -1) {
			animated := m[1] == "a"
			ext := ".png"
			if animated {
				ext = ".gif"
			}
			out = append(out, Emoji{
				ID:       m[3],
				Tag:      m[0],
				Name:     m[2],
				URL:      emojiCDN + m[3] + ext,
				Animated: animated,
			})
		}
	}
	return out
}

func stickers(content string) []Sticker {
	var out []Sticker
	for _, m := range stickerRe.FindAllStringSubmatch(content, -1) {
		out = append(out, Sticker{Name: m[1], ID: m[2], Tag: m[0]})
	}
	return out
}

func countOf(ids []string, id string) int {
	n := 0
	for _, v := range ids {
		if v == id {
			n++
		}
	}
	return n
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func dedupeImages(in []ImageSource) []ImageSource {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, img := range in {
		if _, ok := seen[img.URL]; ok {
			continue
		}
		seen[img.URL] = struct{}{}
		out = append(out, img)
	}
	return out
}

func dedupeEmoji(in []Emoji) []Emoji {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, e := range in {
		if _, ok := seen[e.Tag]; ok {
			continue
		}
		seen[e.Tag] = struct{}{}
		out = append(out, e)
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
