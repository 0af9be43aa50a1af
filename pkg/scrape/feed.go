package scrape

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// GoogleNewsFeed is the US English Google News RSS feed.
const GoogleNewsFeed = "https://news.google.com/rss?gl=US&hl=en-US&ceid=US:en"

type Item struct {
	Title       string
	Link        string
	PublishedAt time.Time
	// Description is the item description with markup removed.
	Description string
}

type rss struct {
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			PubDate     string `xml:"pubDate"`
			Description string `xml:"description"`
		} `xml:"item"`
	} `xml:"channel"`
}

var pubDateLayouts = []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC3339}

// Feed fetches an RSS 2.0 feed.
func (c *Client) Feed(ctx context.Context, url string) ([]Item, error) {
	body, err := c.get(ctx, url, "application/rss+xml, application/xml;q=0.9, */*;q=0.8")
	if err != nil {
		return nil, err
	}
	return parseFeed(body)
}

func parseFeed(body []byte) ([]Item, error) {
	var doc rss
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]Item, 0, len(doc.Channel.Items))
	for _, it := range doc.Channel.Items {
		items = append(items, Item{
			Title:       strings.TrimSpace(it.Title),
			Link:        strings.TrimSpace(it.Link),
			PublishedAt: parsePubDate(it.PubDate),
			Description: plainText(it.Description),
		})
	}
	return items, nil
}

func parsePubDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func plainText(fragment string) string {
	if !strings.ContainsRune(fragment, '<') {
		return strings.TrimSpace(fragment)
	}
	doc, err := html.Parse(bytes.NewReader([]byte(fragment)))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String()
}
