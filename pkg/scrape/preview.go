package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

var ErrNoPreview = errors.New("page has no preview image")

// Preview returns the absolute URL of the page's preview image, taken from
// og:image, then twitter:image, then the image_src link.
func (c *Client) Preview(ctx context.Context, pageURL string) (string, error) {
	body, err := c.get(ctx, pageURL, "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return "", err
	}
	img, err := previewImage(body)
	if err != nil {
		return "", fmt.Errorf("%s: %w", pageURL, err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return img, nil
	}
	ref, err := url.Parse(img)
	if err != nil {
		return "", fmt.Errorf("%s: bad preview url %q: %w", pageURL, img, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func previewImage(page []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	found := map[string]string{}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				key := attr(n, "property")
				if key == "" {
					key = attr(n, "name")
				}
				key = strings.ToLower(key)
				if _, seen := found[key]; !seen {
					found[key] = strings.TrimSpace(attr(n, "content"))
				}
			case "link":
				if strings.EqualFold(attr(n, "rel"), "image_src") {
					if _, seen := found["image_src"]; !seen {
						found["image_src"] = strings.TrimSpace(attr(n, "href"))
					}
				}
			case "body":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, key := range []string{"og:image", "og:image:url", "twitter:image", "image_src"} {
		if v := found[key]; v != "" {
			return v, nil
		}
	}
	return "", ErrNoPreview
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
