package bus

import (
	"time"

	"miabridge/pkg/relay"
)

// InboundMessage is a normalized gateway event that qualified for the
// relay pipeline (a DM or a direct mention). Field ownership is
// read-only; everything is copied out of the gateway event.
type InboundMessage struct {
	ID        string
	CreatedAt time.Time
	EditedAt  *time.Time

	AuthorID   string
	AuthorName string
	IsBot      bool

	ChannelID   string
	ChannelType string
	ChannelName string

	GuildID   string
	GuildName string

	MentionsBot      bool
	MentionsEveryone bool

	Content     string
	Attachments []relay.Attachment

	// Payload metadata the webhook contract wants verbatim.
	User  relay.UserInfo
	Guild *relay.GuildInfo
}

// OutboundKind distinguishes chat text from typing signals.
type OutboundKind string

const (
	OutboundText   OutboundKind = "text"
	OutboundTyping OutboundKind = "typing"
)

type OutboundMessage struct {
	Kind      OutboundKind
	ChannelID string
	Content   string
}
