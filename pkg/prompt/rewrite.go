package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tinyland-inc/lupos/pkg/enrich"
)

var (
	drawingVerbs  = []string{"draw", "paint", "sketch", "design", "illustrate", "show"}
	canYouRe      = regexp.MustCompile(`(?i)can you `)
	firstPersonRe = regexp.MustCompile(`(?i)\b(me|i)\b`)
	tagRe         = regexp.MustCompile(`<[^<>\s]+>`)
)

// Normalize maps drawing verbs to "describe" and drops "can you ".
func Normalize(content string) string {
	for _, verb := range drawingVerbs {
		content = strings.ReplaceAll(content, verb, "describe")
	}
	return canYouRe.ReplaceAllString(content, "")
}

func rewriteMessage(normalized string, in Input) string {
	out := normalized
	for _, u := range in.Enrichment.Users {
		out = replaceMention(out, u.ID, u.DisplayName)
	}
	for _, e := range in.Enrichment.Emoji {
		out = strings.ReplaceAll(out, e.Tag, e.Name)
	}

	if images := describedImages(in.Enrichment.Images); len(images) > 0 {
		var b strings.Builder
		b.WriteString(out)
		b.WriteString("\n")
		for _, img := range images {
			fmt.Fprintf(&b, "\nThe description of an image attached by %s:\n```\n%s\n```", img.Owner.DisplayName(), img.Description)
		}
		out = b.String()
	}

	if r := in.Replied; r != nil {
		out += fmt.Sprintf("\n\nI am replying to this message by %s:\n```\n%s\n```", r.Author.DisplayName(), r.Content)
	}

	return stripSelf(out, in.Self.ID)
}

func imagePrompt(normalized string, in Input) string {
	out := normalized
	if author, ok := in.Enrichment.User(in.Message.Author.ID); ok {
		if v := visual(author); v != "" {
			out = outsideTags(out, func(text string) string {
				return firstPersonRe.ReplaceAllStringFunc(text, func(word string) string {
					return word + " " + v
				})
			})
		}
	}
	for _, u := range in.Enrichment.Users {
		name := u.DisplayName
		if v := visual(u); v != "" {
			name += " " + v
		}
		out = replaceMention(out, u.ID, name)
	}
	for _, e := range in.Enrichment.Emoji {
		repl := e.Name
		if e.Description != "" {
			repl = fmt.Sprintf("%s (%s).", e.Name, e.Description)
		}
		out = strings.ReplaceAll(out, e.Tag, repl)
	}
	for _, img := range describedImages(in.Enrichment.Images) {
		out += "\n\n" + img.Description + "."
	}
	for _, desc := range looseKnowledge(in.Enrichment) {
		out += "\n\n" + desc + "."
	}
	if r := in.Replied; r != nil {
		out += "\n\n " + r.Content
	}
	return stripSelf(out, in.Self.ID)
}

// outsideTags applies fn to the text between Discord tags, leaving emoji
// and mention tags intact.
func outsideTags(s string, fn func(string) string) string {
	var b strings.Builder
	last := 0
	for _, loc := range tagRe.FindAllStringIndex(s, -1) {
		b.WriteString(fn(s[last:loc[0]]))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(fn(s[last:]))
	return b.String()
}

// visual is the "(Subject: avatar + In front of: banner)" parenthetical,
// reduced to whichever descriptions exist.
func visual(u enrich.UserRef) string {
	switch {
	case u.AvatarDescription != "" && u.BannerDescription != "":
		return fmt.Sprintf("(Subject: %s + In front of: %s)", u.AvatarDescription, u.BannerDescription)
	case u.AvatarDescription != "":
		return fmt.Sprintf("(Subject: %s)", u.AvatarDescription)
	case u.BannerDescription != "":
		return fmt.Sprintf("(In front of: %s)", u.BannerDescription)
	default:
		return ""
	}
}

func describedImages(images []enrich.ImageRef) []enrich.ImageRef {
	var out []enrich.ImageRef
	for _, img := range images {
		if img.Description != "" {
			out = append(out, img)
		}
	}
	return out
}

func replaceMention(s, id, with string) string {
	s = strings.ReplaceAll(s, "<@"+id+">", with)
	return strings.ReplaceAll(s, "<@!"+id+">", with)
}

// stripSelf removes the responder's own tag and one leading space.
func stripSelf(s, selfID string) string {
	if selfID == "" {
		return s
	}
	stripped := replaceMention(s, selfID, "")
	if stripped == s {
		return s
	}
	return strings.TrimPrefix(stripped, " ")
}
