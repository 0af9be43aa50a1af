// Package prompt assembles the system prompt, the rewritten user message
// and the image prompt from one enrichment pass.
package prompt

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tinyland-inc/lupos/pkg/chat"
	"github.com/tinyland-inc/lupos/pkg/conversation"
	"github.com/tinyland-inc/lupos/pkg/enrich"
	"github.com/tinyland-inc/lupos/pkg/persona"
)

type Input struct {
	Message      chat.Message
	Replied      *chat.Message
	Self         chat.User
	Enrichment   enrich.Result
	Participants []conversation.Participant
	Now          time.Time
}

type Assembled struct {
	System      string
	Message     string
	ImagePrompt string
}

type Assembler struct {
	persona *persona.Persona
	loc     *time.Location
}

// NewAssembler renders dates in loc; nil means UTC.
func NewAssembler(p *persona.Persona, loc *time.Location) *Assembler {
	if p == nil {
		p = persona.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Assembler{persona: p, loc: loc}
}

// Assemble is deterministic: identical inputs give byte-identical output.
func (a *Assembler) Assemble(in Input) Assembled {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	normalized := Normalize(in.Message.Content)
	return Assembled{
		System:      a.system(in),
		Message:     rewriteMessage(normalized, in),
		ImagePrompt: imagePrompt(normalized, in),
	}
}

func (a *Assembler) system(in Input) string {
	msg := in.Message
	var s sections

	s.add(a.persona.AssistantRules)
	s.addTitled("# Your Information",
		"Your Name: "+in.Self.DisplayName(),
		"Your Discord user ID tag: "+in.Self.Tag(),
	)
	s.addTitled("# Date and Time", dateLine(in.Now.In(a.loc)))

	if msg.Server != nil {
		s.addTitled("# Server Information", fmt.Sprintf(
			"You are in the discord server called %s, with %d total members, and %d bots.",
			msg.Server.Name, msg.Server.MemberCount, msg.Server.BotCount))
	}

	var channelName, channelTopic string
	if msg.Channel.Name != "" {
		channelName = fmt.Sprintf("You are in the channel called: %s.", msg.Channel.Name)
	}
	if msg.Channel.Topic != "" {
		channelTopic = "The channel topic is: " + msg.Channel.Topic
	}
	s.addTitled("# Channel Information", channelName, channelTopic)

	s.addTitled("# How to tag someone", fmt.Sprintf(
		"To mention, tag or reply to someone, you do it by mentioning their Discord user ID tag. "+
			"For example, to mention me, you would type %s.", in.Self.Tag()))

	if r := in.Replied; r != nil {
		name := r.Author.DisplayName()
		s.addTitled("# Primary participant is responding to another user while mentioning you in their reply",
			"Quoted user: "+name,
			fmt.Sprintf("%s's Discord user ID tag: %s", name, r.Author.Tag()),
			fmt.Sprintf("%s's message: %s", name, r.Content),
		)
	}

	s.add(mentionedUsers(in.Enrichment.Users))
	s.addTitled("# Relevant to this response", looseKnowledge(in.Enrichment)...)
	s.add(emojiBlock(in.Enrichment.Emoji))
	s.add(a.participants(in))

	s.add(a.persona.BackstoryFor(msg.ServerID()))
	s.add(a.persona.NotesFor(msg.ServerID()))
	s.add(a.persona.Personality)

	return s.String()
}

func mentionedUsers(users []enrich.UserRef) string {
	if len(users) == 0 {
		return ""
	}
	lines := make([]string, 0, len(users)*6)
	for i, u := range users {
		lines = append(lines,
			fmt.Sprintf("Mentioned User %d: %s", i+1, u.DisplayName),
			fmt.Sprintf("%s's Discord user ID tag: %s", u.DisplayName, u.Tag()),
			fmt.Sprintf("%s's roles: %s", u.DisplayName, roleList(u.Roles)),
			optional(u.DisplayName+"'s description: ", u.KnowledgeDescription),
			optional(u.DisplayName+"'s avatar description: ", u.AvatarDescription),
			optional(u.DisplayName+"'s banner description: ", u.BannerDescription),
		)
	}
	return titled("# Mentioned Users", lines...)
}

// looseKnowledge returns matched descriptions not already attached to a
// mentioned user, each once, in match order.
func looseKnowledge(res enrich.Result) []string {
	seen := make(map[string]bool, len(res.Users))
	for _, u := range res.Users {
		if u.KnowledgeDescription != "" {
			seen[u.KnowledgeDescription] = true
		}
	}
	var out []string
	for _, m := range res.Knowledge {
		if seen[m.Description] {
			continue
		}
		seen[m.Description] = true
		out = append(out, m.Description)
	}
	return out
}

func emojiBlock(emoji []enrich.EmojiRef) string {
	if len(emoji) == 0 {
		return ""
	}
	lines := make([]string, 0, len(emoji)*3)
	for _, e := range emoji {
		lines = append(lines,
			"Emoji name: "+e.Name,
			"Emoji Discord tag: "+e.Tag,
			optional("Emoji description: ", e.Description),
		)
	}
	return titled("# Emojis Attached", lines...)
}

func (a *Assembler) participants(in Input) string {
	if len(in.Participants) == 0 {
		return ""
	}
	var primary []string
	var secondary []string
	n := 0
	for _, p := range in.Participants {
		block := []string{
			fmt.Sprintf("%s's Discord user ID tag: <@%s>", p.Name, p.ID),
			fmt.Sprintf("%s's roles: %s", p.Name, roleList(p.Roles)),
			optional(p.Name+"'s conversation: ", p.Conversation),
			fmt.Sprintf("%s's last message sent at: %s", p.Name, p.LastActive.In(a.loc).Format(participantTimeLayout)),
		}
		if p.ID == in.Message.Author.ID {
			primary = append(primary, block...)
			continue
		}
		n++
		secondary = append(secondary, fmt.Sprintf("Participant %d: %s", n, p.Name))
		secondary = append(secondary, block...)
	}

	var b strings.Builder
	b.WriteString("# Participants")
	if block := titled("## Primary participant and the person who you are replying to", primary...); block != "" {
		b.WriteString("\n" + block)
	}
	if block := titled("## Secondary participants and the people who are also in the chat", secondary...); block != "" {
		b.WriteString("\n" + block)
	}
	return b.String()
}

func roleList(roles []string) string {
	roles = slices.DeleteFunc(slices.Clone(roles), func(r string) bool { return r == "" })
	if len(roles) == 0 {
		return "No roles"
	}
	return strings.Join(roles, ", ")
}

func optional(prefix, value string) string {
	if value == "" {
		return ""
	}
	return prefix + value
}
