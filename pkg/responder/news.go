package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tinyland-inc/lupos/pkg/chat"
	"github.com/tinyland-inc/lupos/pkg/dispatch"
	"github.com/tinyland-inc/lupos/pkg/providers"
	"github.com/tinyland-inc/lupos/pkg/scrape"
)

const (
	newsInstruction = `#Task:
-You return the most related news, and summarize the description without adding more information.
-If there is no related news, return an empty string.

#Output Format:
-## Title: [Title]
-Date: [Date]
-Minutes ago: [Minutes]
-Link: [Link]
-Description: [Description]

#Output:`

	newsSummaryInstruction = `Summarize the following news articles.
For any repeated or related news, combine them, while keeping sources.

Output format:
## {article title}
- Description: {article name}
### Sources:
- {article source1}
- {article source2}
- ...`

	topicInstruction = `# Role
Return the topic that is being talked about.
Do not explain, just return the topic that is mentioned as concisely as possible, while being accurate.`

	newsDateLayout = "January 02, 2006 at 03:04:05 PM"
)

var ErrNoFeed = errors.New("news feed not configured")

// FeedReader fetches RSS items.
type FeedReader interface {
	Feed(ctx context.Context, url string) ([]scrape.Item, error)
}

// WithNews enables News and Digest against the feed at url.
func WithNews(feeds FeedReader, url string) Option {
	return func(r *Responder) {
		r.feeds = feeds
		r.feedURL = url
		if r.feedURL == "" {
			r.feedURL = scrape.GoogleNewsFeed
		}
	}
}

// News returns the feed item most related to msg, summarized, or "" when
// nothing relates.
func (r *Responder) News(ctx context.Context, msg chat.Message) (string, error) {
	items, err := r.latest(ctx)
	if err != nil {
		return "", err
	}
	user := r.listing(items) + "If any, return the most related news to this: " + msg.Content
	out, err := r.utility(ctx, newsInstruction, msg.Author.NameNoSpaces(), user, 0)
	if errors.Is(err, providers.ErrEmptyResponse) {
		return "", nil
	}
	return out, err
}

// NewsSummary merges related articles in text and keeps their sources.
func (r *Responder) NewsSummary(ctx context.Context, text string) (string, error) {
	return r.utility(ctx, newsSummaryInstruction, "", text, 1200)
}

// Topic names what text is about, as concisely as possible.
func (r *Responder) Topic(ctx context.Context, text string) (string, error) {
	return r.utility(ctx, topicInstruction, "", text, 256)
}

// Digest summarizes the whole current feed.
func (r *Responder) Digest(ctx context.Context) (string, error) {
	items, err := r.latest(ctx)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", nil
	}
	return r.NewsSummary(ctx, r.listing(items))
}

func (r *Responder) latest(ctx context.Context) ([]scrape.Item, error) {
	if r.feeds == nil {
		return nil, ErrNoFeed
	}
	items, err := r.feeds.Feed(ctx, r.feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch news: %w", err)
	}
	return items, nil
}

func (r *Responder) listing(items []scrape.Item) string {
	now := r.now()
	var sb strings.Builder
	sb.WriteString("# Latest News\n")
	for _, it := range items {
		fmt.Fprintf(&sb, "## Title: %s\n", it.Title)
		if !it.PublishedAt.IsZero() {
			fmt.Fprintf(&sb, "- Date: %s\n", it.PublishedAt.In(r.loc).Format(newsDateLayout))
			fmt.Fprintf(&sb, "- Minutes ago: %d\n", int(now.Sub(it.PublishedAt).Minutes()))
		}
		fmt.Fprintf(&sb, "- Link: %s\n\n", it.Link)
	}
	return sb.String()
}

func (r *Responder) utility(ctx context.Context, system, speaker, user string, maxTokens int) (string, error) {
	return r.gen.GenerateText(ctx, dispatch.Request{
		Conversation: []providers.Message{
			{Role: providers.RoleSystem, Content: system},
			{Role: providers.RoleUser, Name: speaker, Content: user},
		},
		Backend:   r.backend,
		Tier:      providers.TierFast,
		MaxTokens: maxTokens,
	})
}
