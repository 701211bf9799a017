// Package discord connects the bridge to the Discord gateway: one
// long-lived session, routing of qualifying messages into the relay
// pipeline, utility commands everywhere else.
package discord

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"miabridge/pkg/bus"
	"miabridge/pkg/logger"
	"miabridge/pkg/relay"
)

// Channel owns the Discord session. Inbound qualifying messages are
// published to the bus; the outbound loop delivers pipeline replies
// and typing signals through the session.
type Channel struct {
	token    string
	session  *discordgo.Session
	msgBus   *bus.MessageBus
	commands *CommandDispatcher
	running  atomic.Bool

	// onReady fires when the gateway reports the session open.
	onReady func()

	// Send seams, replaced in tests.
	post   func(channelID, content string) error
	typing func(channelID string) error
}

func NewChannel(token string, msgBus *bus.MessageBus, gate Gate) *Channel {
	c := &Channel{
		token:  token,
		msgBus: msgBus,
	}
	c.commands = NewCommandDispatcher(gate, c.heartbeatLatency, func(channelID, text string) error {
		return c.post(channelID, text)
	})
	return c
}

func (c *Channel) Name() string { return "discord" }

func (c *Channel) IsRunning() bool { return c.running.Load() }

// SetOnReady registers a callback for the gateway ready event.
func (c *Channel) SetOnReady(fn func()) { c.onReady = fn }

// BotID returns the session's own user id. Empty until Start succeeds.
func (c *Channel) BotID() string {
	if c.session == nil || c.session.State == nil || c.session.State.User == nil {
		return ""
	}
	return c.session.State.User.ID
}

// Start opens the gateway connection and begins the outbound delivery
// loop. An authentication failure surfaces as the returned error; the
// caller treats it as fatal.
func (c *Channel) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return fmt.Errorf("creating discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	session.AddHandler(c.handleReady)
	session.AddHandler(c.handleMessage)

	c.session = session
	if c.post == nil {
		c.post = func(channelID, content string) error {
			_, err := session.ChannelMessageSend(channelID, content)
			return err
		}
	}
	if c.typing == nil {
		c.typing = func(channelID string) error {
			return session.ChannelTyping(channelID)
		}
	}

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}

	c.running.Store(true)
	go c.outboundLoop(ctx)

	return nil
}

func (c *Channel) Stop(_ context.Context) error {
	c.running.Store(false)
	if c.session == nil {
		return nil
	}
	logger.InfoC("discord", "Closing gateway session")
	return c.session.Close()
}

func (c *Channel) handleReady(s *discordgo.Session, _ *discordgo.Ready) {
	user := s.State.User
	logger.InfoCF("discord", "Gateway ready", map[string]any{
		"bot_user": user.Username,
		"bot_id":   user.ID,
	})
	logger.InfoC("discord", "Usage: DM the bot directly, or mention @"+user.Username+" in a channel")

	if c.onReady != nil {
		c.onReady()
	}
}

func (c *Channel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	if shouldRelay(m.Message, c.BotID()) {
		msg := c.normalize(s, m.Message)
		if err := c.msgBus.PublishInbound(context.Background(), msg); err != nil {
			logger.ErrorCF("discord", "Publishing inbound message failed", map[string]any{"error": err.Error()})
		}
		return
	}

	// Everything else only reaches the command dispatcher; the bridge
	// stays silent in channels unless directly addressed.
	c.commands.Dispatch(context.Background(), m.ChannelID, m.Author.ID, m.Content)
}

// shouldRelay implements the routing rule: DMs always; guild messages
// only on a direct mention that is not a broadcast mention.
func shouldRelay(m *discordgo.Message, botID string) bool {
	if m.GuildID == "" {
		return true
	}
	if m.MentionEveryone {
		return false
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == botID {
			return true
		}
	}
	return false
}

// normalize copies everything the pipeline and webhook payload need
// out of the gateway event. State lookups are best-effort; missing
// channel or guild detail degrades to empty fields, never to an error.
func (c *Channel) normalize(s *discordgo.Session, m *discordgo.Message) bus.InboundMessage {
	botID := c.BotID()

	msg := bus.InboundMessage{
		ID:               m.ID,
		CreatedAt:        m.Timestamp,
		AuthorID:         m.Author.ID,
		AuthorName:       m.Author.Username,
		IsBot:            m.Author.Bot,
		ChannelID:        m.ChannelID,
		GuildID:          m.GuildID,
		MentionsEveryone: m.MentionEveryone,
		Content:          m.Content,
	}

	if m.EditedTimestamp != nil {
		edited := *m.EditedTimestamp
		msg.EditedAt = &edited
	}

	for _, u := range m.Mentions {
		if u != nil && u.ID == botID {
			msg.MentionsBot = true
			break
		}
	}

	msg.User = relay.UserInfo{
		ID:            m.Author.ID,
		Username:      m.Author.Username,
		Discriminator: m.Author.Discriminator,
		DisplayName:   displayName(m.Author),
		Bot:           m.Author.Bot,
	}
	if m.Author.Avatar != "" {
		url := m.Author.AvatarURL("")
		msg.User.AvatarURL = &url
	}

	msg.ChannelType = "private"
	if ch := lookupChannel(s, m.ChannelID); ch != nil {
		msg.ChannelType = channelTypeName(ch.Type)
		msg.ChannelName = ch.Name
	} else if m.GuildID != "" {
		msg.ChannelType = "text"
	}

	if m.GuildID != "" {
		if g := lookupGuild(s, m.GuildID); g != nil {
			msg.GuildName = g.Name
			info := &relay.GuildInfo{ID: g.ID, Name: g.Name}
			if g.Icon != "" {
				url := g.IconURL("")
				info.IconURL = &url
			}
			msg.Guild = info
		} else {
			msg.Guild = &relay.GuildInfo{ID: m.GuildID}
		}

		if m.Member != nil {
			msg.User.Roles = m.Member.Roles
			joined := m.Member.JoinedAt.Format(time.RFC3339)
			msg.User.JoinedAt = &joined
			if m.Member.Nick != "" {
				nick := m.Member.Nick
				msg.User.Nickname = &nick
			}
		}
	}

	msg.Attachments = classifyAttachments(m.Attachments)

	return msg
}

func classifyAttachments(attachments []*discordgo.MessageAttachment) []relay.Attachment {
	if len(attachments) == 0 {
		return nil
	}
	result := make([]relay.Attachment, 0, len(attachments))
	for _, a := range attachments {
		if a == nil {
			continue
		}
		result = append(result, relay.Classify(a.Filename, a.URL, a.Size, a.ContentType))
	}
	return result
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func lookupChannel(s *discordgo.Session, channelID string) *discordgo.Channel {
	if ch, err := s.State.Channel(channelID); err == nil {
		return ch
	}
	ch, err := s.Channel(channelID)
	if err != nil {
		return nil
	}
	return ch
}

func lookupGuild(s *discordgo.Session, guildID string) *discordgo.Guild {
	if g, err := s.State.Guild(guildID); err == nil {
		return g
	}
	g, err := s.Guild(guildID)
	if err != nil {
		return nil
	}
	return g
}

func channelTypeName(t discordgo.ChannelType) string {
	switch t {
	case discordgo.ChannelTypeGuildText:
		return "text"
	case discordgo.ChannelTypeDM:
		return "private"
	case discordgo.ChannelTypeGroupDM:
		return "group"
	case discordgo.ChannelTypeGuildVoice:
		return "voice"
	case discordgo.ChannelTypeGuildNews:
		return "news"
	case discordgo.ChannelTypeGuildPublicThread, discordgo.ChannelTypeGuildPrivateThread:
		return "thread"
	default:
		return strconv.Itoa(int(t))
	}
}

func (c *Channel) heartbeatLatency() time.Duration {
	if c.session == nil {
		return 0
	}
	return c.session.HeartbeatLatency()
}

// outboundLoop delivers pipeline output through the session, one
// message at a time in bus order.
func (c *Channel) outboundLoop(ctx context.Context) {
	for {
		msg, ok := c.msgBus.ConsumeOutbound(ctx)
		if !ok {
			return
		}
		switch msg.Kind {
		case bus.OutboundTyping:
			if err := c.typing(msg.ChannelID); err != nil {
				logger.WarnCF("discord", "Typing indicator failed", map[string]any{"error": err.Error()})
			}
		case bus.OutboundText:
			if err := c.post(msg.ChannelID, msg.Content); err != nil {
				logger.ErrorCF("discord", "Message send failed", map[string]any{
					"channel": msg.ChannelID,
					"error":   err.Error(),
				})
			}
		}
	}
}
