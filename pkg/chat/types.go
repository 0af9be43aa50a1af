// Package chat holds the platform-neutral message model the responder works on.
package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var ErrUnknownUser = errors.New("unknown user")

type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name,omitempty"`
	Nick       string `json:"nick,omitempty"`
	Bot        bool   `json:"bot,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	BannerURL  string `json:"banner_url,omitempty"`
}

// DisplayName prefers the server nickname, then the global name, then the username.
func (u User) DisplayName() string {
	switch {
	case u.Nick != "":
		return u.Nick
	case u.GlobalName != "":
		return u.GlobalName
	default:
		return u.Username
	}
}

// Tag is the inline mention token for the user.
func (u User) Tag() string {
	return fmt.Sprintf("<@%s>", u.ID)
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonWordRe    = regexp.MustCompile(`[^\w]`)
)

// NameNoSpaces is the display name reduced to characters backends accept
// in a message "name" field.
func (u User) NameNoSpaces() string {
	name := u.DisplayName()
	if name == "" {
		return "default"
	}
	name = nonWordRe.ReplaceAllString(whitespaceRe.ReplaceAllString(name, "_"), "")
	if name == "" {
		name = nonWordRe.ReplaceAllString(u.Username, "")
	}
	if name == "" {
		return "default"
	}
	return name
}

type Attachment struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

func (a Attachment) IsImage() bool {
	return strings.Contains(strings.ToLower(a.ContentType), "image")
}

type Server struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
	BotCount    int    `json:"bot_count"`
}

type Channel struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Topic string `json:"topic,omitempty"`
}

// Message is a read-only snapshot of one platform message.
type Message struct {
	ID          string       `json:"id"`
	Author      User         `json:"author"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ReplyToID   string       `json:"reply_to_id,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
	Channel     Channel      `json:"channel"`
	Server      *Server      `json:"server,omitempty"`
}

// ServerID returns "" for direct messages.
func (m Message) ServerID() string {
	if m.Server == nil {
		return ""
	}
	return m.Server.ID
}

// Directory looks up users and their roles on the platform.
type Directory interface {
	User(ctx context.Context, id string) (User, error)
	Roles(ctx context.Context, serverID, userID string) ([]string, error)
}
