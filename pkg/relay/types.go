// Package relay forwards normalized chat messages to the external
// webhook endpoint and interprets whatever it answers with.
package relay

// Payload is the JSON body posted to the webhook. The field layout is
// the contract the external workflow expects; do not rename tags.
type Payload struct {
	Message     string       `json:"message"`
	UserID      string       `json:"user_id"`
	Username    string       `json:"username"`
	Platform    string       `json:"platform"`
	Metadata    Metadata     `json:"metadata"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Metadata struct {
	MessageID string  `json:"message_id"`
	CreatedAt string  `json:"created_at"`
	EditedAt  *string `json:"edited_at"`

	User    UserInfo    `json:"user"`
	Channel ChannelInfo `json:"channel"`
	Guild   *GuildInfo  `json:"guild"`

	// Both are the channel id: the webhook keys its conversation state
	// on them, the bridge itself keeps no session state.
	ConversationID string `json:"conversation_id"`
	ThreadID       string `json:"thread_id"`
}

type UserInfo struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	Discriminator string  `json:"discriminator"`
	DisplayName   string  `json:"display_name"`
	Bot           bool    `json:"bot"`
	AvatarURL     *string `json:"avatar_url"`

	// Guild-member extras, absent in DMs.
	Roles    []string `json:"roles,omitempty"`
	JoinedAt *string  `json:"joined_at,omitempty"`
	Nickname *string  `json:"nickname,omitempty"`
}

type ChannelInfo struct {
	ID   string  `json:"id"`
	Type string  `json:"type"`
	Name *string `json:"name"`
}

type GuildInfo struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	IconURL *string `json:"icon_url"`
}
