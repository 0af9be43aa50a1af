package channels

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/lupos/pkg/bus"
	"github.com/tinyland-inc/lupos/pkg/chat"
	"github.com/tinyland-inc/lupos/pkg/config"
	"github.com/tinyland-inc/lupos/pkg/logger"
)

const (
	discordName          = "discord"
	discordMessageLimit  = 2000
	discordHistoryLimit  = 100
	discordTypingRefresh = 8 * time.Second
)

var _ chat.Directory = (*DiscordChannel)(nil)

// DiscordChannel answers mentions, replies to the bot and, optionally,
// direct messages. It also serves as the chat.Directory for its session.
type DiscordChannel struct {
	*BaseChannel
	session   *discordgo.Session
	cfg       config.DiscordConfig
	recent    int
	reactions map[string]string

	mu        sync.RWMutex
	self      chat.User
	ctx       context.Context
	cancel    context.CancelFunc
	ready     chan struct{}
	readyOnce sync.Once
}

// NewDiscordChannel creates the session without connecting. recent is the
// number of history messages gathered per trigger; reactions maps content
// keywords to emoji added to matching messages.
func NewDiscordChannel(cfg config.DiscordConfig, recent int, reactions map[string]string, mb *bus.MessageBus) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &DiscordChannel{
		BaseChannel: NewBaseChannel(discordName, mb, cfg.AllowFrom, WithMaxMessageLength(discordMessageLimit)),
		session:     session,
		cfg:         cfg,
		recent:      min(max(recent, 1), discordHistoryLimit),
		reactions:   reactions,
		ctx:         context.Background(),
		ready:       make(chan struct{}),
	}, nil
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.session.AddHandler(c.onReady)
	c.session.AddHandler(c.onMessageCreate)
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	c.SetRunning(true)
	logger.InfoC(discordName, "Discord channel started")
	return nil
}

func (c *DiscordChannel) Stop(_ context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.SetRunning(false)
	return c.session.Close()
}

// Ready is closed once the session has identified the bot.
func (c *DiscordChannel) Ready() <-chan struct{} { return c.ready }

// Self is the bot's own user, known once the session is ready.
func (c *DiscordChannel) Self() chat.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self
}

func (c *DiscordChannel) onReady(s *discordgo.Session, r *discordgo.Ready) {
	c.mu.Lock()
	c.self = convertUser(r.User, nil)
	c.mu.Unlock()
	c.readyOnce.Do(func() { close(c.ready) })

	logger.InfoCF(discordName, "Logged in", map[string]any{
		"user":   r.User.Username,
		"guilds": len(r.Guilds),
	})
	if c.cfg.Status != "" {
		if err := s.UpdateCustomStatus(c.cfg.Status); err != nil {
			logger.WarnCF(discordName, "Failed to set status", map[string]any{"error": err.Error()})
		}
	}
}

func (c *DiscordChannel) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	c.mu.RLock()
	ctx, selfID := c.ctx, c.self.ID
	c.mu.RUnlock()

	if m.Author == nil || m.Author.ID == selfID || m.Author.Bot {
		return
	}

	for _, emoji := range MatchReactions(m.Content, c.reactions) {
		if err := c.session.MessageReactionAdd(m.ChannelID, m.ID, emoji, discordgo.WithContext(ctx)); err != nil {
			logger.DebugCF(discordName, "Failed to add reaction", map[string]any{"emoji": emoji, "error": err.Error()})
		}
	}

	if strings.Contains(strings.ToLower(m.Content), howlCommand) {
		if _, err := c.session.ChannelMessageSend(m.ChannelID, Howl(rand.IntN), discordgo.WithContext(ctx)); err != nil {
			logger.DebugCF(discordName, "Failed to howl", map[string]any{"error": err.Error()})
		}
	}

	if !Addressed(m.Message, selfID, c.cfg.DirectMessages) {
		return
	}

	msg := c.convertMessage(ctx, m.Message)
	if !c.IsAllowed(msg) {
		return
	}

	var replied *chat.Message
	if ref := c.repliedMessage(ctx, m.Message); ref != nil {
		if ref.GuildID == "" {
			ref.GuildID = m.GuildID
		}
		r := c.convertMessage(ctx, ref)
		replied = &r
	}

	window, err := c.history(ctx, m.Message)
	if err != nil {
		logger.WarnCF(discordName, "Failed to fetch channel history", map[string]any{
			"channel_id": m.ChannelID,
			"error":      err.Error(),
		})
	}
	window = append(window, msg)

	c.HandleMessage(ctx, msg, replied, window)
}

// Addressed reports whether m asks the bot for a reply: it mentions the
// bot, replies to one of its messages or, when enabled, is a direct message.
func Addressed(m *discordgo.Message, selfID string, directMessages bool) bool {
	if m == nil || m.Author == nil || selfID == "" || m.Author.ID == selfID {
		return false
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == selfID {
			return true
		}
	}
	if strings.Contains(m.Content, "<@"+selfID+">") || strings.Contains(m.Content, "<@!"+selfID+">") {
		return true
	}
	if ref := m.ReferencedMessage; ref != nil && ref.Author != nil && ref.Author.ID == selfID {
		return true
	}
	return directMessages && m.GuildID == ""
}

const howlCommand = "!howl"

// Howl is "Aw" followed by one to ten o's and an exclamation mark.
// intN returns a value in [0, n).
func Howl(intN func(n int) int) string {
	return "Aw" + strings.Repeat("o", intN(10)+1) + "!"
}

// MatchReactions returns the emoji whose keyword appears in content, in
// keyword order, without duplicates.
func MatchReactions(content string, reactions map[string]string) []string {
	if len(reactions) == 0 || content == "" {
		return nil
	}
	lower := strings.ToLower(content)
	var out []string
	for _, keyword := range slices.Sorted(maps.Keys(reactions)) {
		emoji := reactions[keyword]
		if keyword == "" || emoji == "" || slices.Contains(out, emoji) {
			continue
		}
		if strings.Contains(lower, strings.ToLower(keyword)) {
			out = append(out, emoji)
		}
	}
	return out
}

func (c *DiscordChannel) repliedMessage(ctx context.Context, m *discordgo.Message) *discordgo.Message {
	if m.ReferencedMessage != nil {
		return m.ReferencedMessage
	}
	if m.MessageReference == nil || m.MessageReference.MessageID == "" {
		return nil
	}
	channelID := m.MessageReference.ChannelID
	if channelID == "" {
		channelID = m.ChannelID
	}
	if ref, err := c.session.State.Message(channelID, m.MessageReference.MessageID); err == nil {
		return ref
	}
	ref, err := c.session.ChannelMessage(channelID, m.MessageReference.MessageID, discordgo.WithContext(ctx))
	if err != nil {
		logger.DebugCF(discordName, "Replied message unavailable", map[string]any{
			"message_id": m.MessageReference.MessageID,
			"error":      err.Error(),
		})
		return nil
	}
	return ref
}

// history returns up to c.recent messages before m, oldest first.
func (c *DiscordChannel) history(ctx context.Context, m *discordgo.Message) ([]chat.Message, error) {
	msgs, err := c.session.ChannelMessages(m.ChannelID, c.recent, m.ID, "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	window := make([]chat.Message, 0, len(msgs)+1)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].GuildID == "" {
			msgs[i].GuildID = m.GuildID
		}
		window = append(window, c.convertMessage(ctx, msgs[i]))
	}
	return window, nil
}

func (c *DiscordChannel) convertMessage(ctx context.Context, m *discordgo.Message) chat.Message {
	member := m.Member
	if member == nil && m.GuildID != "" && m.Author != nil {
		member, _ = c.session.State.Member(m.GuildID, m.Author.ID)
	}
	return ConvertMessage(m, member, c.channelInfo(ctx, m.ChannelID), c.serverInfo(ctx, m.GuildID))
}

// ConvertMessage maps a discordgo message onto the platform-neutral model.
// member supplies the author's server nickname and may be nil.
func ConvertMessage(m *discordgo.Message, member *discordgo.Member, channel chat.Channel, server *chat.Server) chat.Message {
	msg := chat.Message{
		ID:        m.ID,
		Author:    convertUser(m.Author, member),
		Content:   m.Content,
		Timestamp: m.Timestamp,
		Channel:   channel,
		Server:    server,
	}
	if msg.Channel.ID == "" {
		msg.Channel.ID = m.ChannelID
	}
	if m.MessageReference != nil {
		msg.ReplyToID = m.MessageReference.MessageID
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, chat.Attachment{URL: a.URL, ContentType: a.ContentType})
	}
	return msg
}

func convertUser(u *discordgo.User, member *discordgo.Member) chat.User {
	if u == nil {
		return chat.User{}
	}
	out := chat.User{
		ID:         u.ID,
		Username:   u.Username,
		GlobalName: u.GlobalName,
		Bot:        u.Bot,
		AvatarURL:  u.AvatarURL(""),
	}
	if u.Banner != "" {
		out.BannerURL = u.BannerURL("")
	}
	if member != nil {
		out.Nick = member.Nick
		if member.Avatar != "" && member.User != nil {
			out.AvatarURL = member.AvatarURL("")
		}
	}
	return out
}

func (c *DiscordChannel) channelInfo(ctx context.Context, id string) chat.Channel {
	ch, err := c.session.State.Channel(id)
	if err != nil {
		ch, err = c.session.Channel(id, discordgo.WithContext(ctx))
	}
	if err != nil || ch == nil {
		return chat.Channel{ID: id}
	}
	return chat.Channel{ID: ch.ID, Name: ch.Name, Topic: ch.Topic}
}

func (c *DiscordChannel) serverInfo(ctx context.Context, id string) *chat.Server {
	if id == "" {
		return nil
	}
	g, err := c.session.State.Guild(id)
	if err != nil {
		g, err = c.session.Guild(id, discordgo.WithContext(ctx))
	}
	if err != nil || g == nil {
		return &chat.Server{ID: id}
	}
	server := &chat.Server{ID: g.ID, Name: g.Name, MemberCount: g.MemberCount}
	for _, m := range g.Members {
		if m != nil && m.User != nil && m.User.Bot {
			server.BotCount++
		}
	}
	return server
}

// User fetches the user over REST so the banner is populated.
func (c *DiscordChannel) User(ctx context.Context, id string) (chat.User, error) {
	u, err := c.session.User(id, discordgo.WithContext(ctx))
	if err != nil {
		return chat.User{}, fmt.Errorf("%w: %s: %w", chat.ErrUnknownUser, id, err)
	}
	return convertUser(u, nil), nil
}

// Roles returns the names of the member's roles, state cache first.
func (c *DiscordChannel) Roles(ctx context.Context, serverID, userID string) ([]string, error) {
	if serverID == "" {
		return nil, nil
	}
	member, err := c.session.State.Member(serverID, userID)
	if err != nil {
		member, err = c.session.GuildMember(serverID, userID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", userID, err)
		}
	}

	names := make([]string, 0, len(member.Roles))
	for _, roleID := range member.Roles {
		if role, err := c.session.State.Role(serverID, roleID); err == nil {
			names = append(names, role.Name)
			continue
		}
		roles, err := c.session.GuildRoles(serverID, discordgo.WithContext(ctx))
		if err != nil {
			return names, fmt.Errorf("roles of %s: %w", serverID, err)
		}
		for _, r := range roles {
			if r.ID == roleID {
				names = append(names, r.Name)
				break
			}
		}
	}
	return names, nil
}

// StartTyping refreshes the typing indicator until stop is called or ctx
// ends.
func (c *DiscordChannel) StartTyping(ctx context.Context, channelID string) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(discordTypingRefresh)
		defer ticker.Stop()
		for {
			if err := c.session.ChannelTyping(channelID, discordgo.WithContext(ctx)); err != nil && ctx.Err() == nil {
				logger.DebugCF(discordName, "Typing indicator failed", map[string]any{"error": err.Error()})
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Send posts msg as a reply, split at the message limit. Files go with the
// last chunk.
func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if msg.ChannelID == "" {
		return fmt.Errorf("discord send: empty channel id")
	}
	chunks := SplitMessage(msg.Content, c.MaxMessageLength())
	for i, chunk := range chunks {
		send := &discordgo.MessageSend{
			Content: chunk,
			AllowedMentions: &discordgo.MessageAllowedMentions{
				Parse:       []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
				RepliedUser: true,
			},
		}
		if i == 0 && msg.ReplyToID != "" {
			send.Reference = &discordgo.MessageReference{MessageID: msg.ReplyToID, ChannelID: msg.ChannelID}
		}
		if i == len(chunks)-1 {
			for _, f := range msg.Files {
				send.Files = append(send.Files, &discordgo.File{
					Name:        f.Name,
					ContentType: f.ContentType,
					Reader:      bytes.NewReader(f.Data),
				})
			}
		}
		if _, err := c.session.ChannelMessageSendComplex(msg.ChannelID, send, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
	}
	logger.DebugCF(discordName, "Reply sent", map[string]any{
		"channel_id": msg.ChannelID,
		"chunks":     len(chunks),
		"files":      len(msg.Files),
	})
	return nil
}
