// Package conversation turns the recent channel window into a role-tagged
// conversation and summarizes what each participant has been saying.
package conversation

import (
	"unicode"
	"unicode/utf8"

	"github.com/tinyland-inc/lupos/pkg/chat"
	"github.com/tinyland-inc/lupos/pkg/providers"
)

// Build emits the system entry followed by one entry per window message in
// order. The responder's own messages become assistant entries; everyone
// else is reported as "<Name> said <content>:". The last window entry
// carries finalContent instead of its stored content.
func Build(system string, window []chat.Message, selfID, finalContent string) []providers.Message {
	out := make([]providers.Message, 0, len(window)+1)
	out = append(out, providers.Message{Role: providers.RoleSystem, Content: system})

	for i, msg := range window {
		if msg.Author.ID == selfID {
			out = append(out, providers.Message{
				Role:    providers.RoleAssistant,
				Name:    msg.Author.NameNoSpaces(),
				Content: msg.Content,
			})
			continue
		}
		content := msg.Content
		if i == len(window)-1 {
			content = finalContent
		}
		out = append(out, providers.Message{
			Role:    providers.RoleUser,
			Name:    msg.Author.NameNoSpaces(),
			Content: capitalize(msg.Author.DisplayName()) + " said " + content + ":",
		})
	}
	return out
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
