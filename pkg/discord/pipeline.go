package discord

import (
	"context"
	"errors"
	"time"

	"miabridge/pkg/bus"
	"miabridge/pkg/logger"
	"miabridge/pkg/relay"
)

// MessageLimit is Discord's maximum outbound message length.
const MessageLimit = 2000

const (
	// chunkDelay paces multi-chunk replies to stay under the send rate limit.
	chunkDelay = 500 * time.Millisecond
	// typingRefresh re-arms the typing indicator, which Discord expires
	// after roughly ten seconds, while the webhook call is in flight.
	typingRefresh = 8 * time.Second
)

// Fixed user-facing notices, verbatim from the production deployment.
const (
	noticeDisabled      = "🔴 El bot está temporalmente deshabilitado. Por favor, intenta más tarde."
	noticeEmptyInput    = "¡Hola! Por favor envíame un mensaje, archivo, audio o imagen."
	noticeEmptyResponse = "❌ Recibí una respuesta vacía del servidor."
	noticeErrorPrefix   = "❌ Lo siento, hubo un error: "
)

// Gate answers whether the bridge may respond to a given user.
type Gate interface {
	IsEnabled(ctx context.Context, userID string) bool
}

// Relayer posts a payload to the webhook and returns its reply.
type Relayer interface {
	Send(ctx context.Context, p relay.Payload) (relay.Reply, error)
}

// Pipeline turns one qualifying inbound message into at most one
// webhook round trip and a reply in the originating channel. Messages
// are processed sequentially in arrival order by Run.
type Pipeline struct {
	gate    Gate
	relayer Relayer
	msgBus  *bus.MessageBus

	botID string

	chunkPause  time.Duration
	typingEvery time.Duration
}

func NewPipeline(gate Gate, relayer Relayer, msgBus *bus.MessageBus) *Pipeline {
	return &Pipeline{
		gate:        gate,
		relayer:     relayer,
		msgBus:      msgBus,
		chunkPause:  chunkDelay,
		typingEvery: typingRefresh,
	}
}

// SetBotID tells the pipeline which mentions to strip. Must be called
// before Run, once the gateway session knows its own identity.
func (p *Pipeline) SetBotID(id string) {
	p.botID = id
}

// Run consumes inbound messages until the context or the bus is done.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		msg, ok := p.msgBus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		p.Process(ctx, msg)
	}
}

// Process executes the relay pipeline for one message: gate check,
// normalization, webhook call, reply delivery. Every early exit sends
// its own fixed notice; nothing here returns an error to the caller.
func (p *Pipeline) Process(ctx context.Context, msg bus.InboundMessage) {
	if msg.IsBot {
		return
	}

	logger.InfoCF("pipeline", "Processing message", map[string]any{
		"user":    msg.AuthorName,
		"user_id": msg.AuthorID,
		"channel": msg.ChannelID,
	})

	if !p.gate.IsEnabled(ctx, msg.AuthorID) {
		logger.InfoCF("pipeline", "Bridge disabled for user", map[string]any{"user": msg.AuthorName})
		p.send(ctx, msg.ChannelID, noticeDisabled)
		return
	}

	text := msg.Content
	if msg.MentionsBot {
		text = StripMentions(text, p.botID)
	}

	for _, a := range msg.Attachments {
		logger.InfoCF("pipeline", "Attachment detected", map[string]any{
			"kind":     a.Kind,
			"filename": a.Filename,
		})
	}

	if text == "" && len(msg.Attachments) == 0 {
		p.send(ctx, msg.ChannelID, noticeEmptyInput)
		return
	}
	if text == "" {
		text = relay.Placeholder(msg.Attachments[0].Kind)
	}

	payload := buildPayload(msg, text)

	p.sendTyping(ctx, msg.ChannelID)
	typingDone := make(chan struct{})
	go p.refreshTyping(ctx, msg.ChannelID, typingDone)

	reply, err := p.relayer.Send(ctx, payload)
	close(typingDone)

	if err != nil {
		var relayErr *relay.RelayError
		if !errors.As(err, &relayErr) {
			relayErr = &relay.RelayError{Message: "Error desconocido"}
		}
		p.send(ctx, msg.ChannelID, noticeErrorPrefix+relayErr.Message)
		return
	}

	response := relay.ExtractText(reply)
	if response == "" {
		p.send(ctx, msg.ChannelID, noticeEmptyResponse)
		return
	}
	if relay.IsSystemMessage(response) {
		logger.WarnCF("pipeline", "System message suppressed", map[string]any{"text": response})
		return
	}

	p.deliver(ctx, msg.ChannelID, response)
}

// deliver sends text in order, split into chunks Discord will accept,
// pausing between chunks to avoid the outbound rate limit.
func (p *Pipeline) deliver(ctx context.Context, channelID, text string) {
	chunks := SplitText(text, MessageLimit)
	for i, chunk := range chunks {
		if i > 0 && p.chunkPause > 0 {
			select {
			case <-time.After(p.chunkPause):
			case <-ctx.Done():
				return
			}
		}
		p.send(ctx, channelID, chunk)
	}
}

func (p *Pipeline) send(ctx context.Context, channelID, text string) {
	err := p.msgBus.PublishOutbound(ctx, bus.OutboundMessage{
		Kind:      bus.OutboundText,
		ChannelID: channelID,
		Content:   text,
	})
	if err != nil {
		logger.ErrorCF("pipeline", "Publishing outbound message failed", map[string]any{"error": err.Error()})
	}
}

func (p *Pipeline) sendTyping(ctx context.Context, channelID string) {
	_ = p.msgBus.PublishOutbound(ctx, bus.OutboundMessage{
		Kind:      bus.OutboundTyping,
		ChannelID: channelID,
	})
}

func (p *Pipeline) refreshTyping(ctx context.Context, channelID string, done <-chan struct{}) {
	ticker := time.NewTicker(p.typingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sendTyping(ctx, channelID)
		}
	}
}

func buildPayload(msg bus.InboundMessage, text string) relay.Payload {
	var editedAt *string
	if msg.EditedAt != nil {
		s := msg.EditedAt.Format(time.RFC3339)
		editedAt = &s
	}

	var channelName *string
	if msg.ChannelName != "" {
		channelName = &msg.ChannelName
	}

	return relay.Payload{
		Message:  text,
		UserID:   msg.AuthorID,
		Username: msg.AuthorName,
		Platform: "discord",
		Metadata: relay.Metadata{
			MessageID: msg.ID,
			CreatedAt: msg.CreatedAt.Format(time.RFC3339),
			EditedAt:  editedAt,
			User:      msg.User,
			Channel: relay.ChannelInfo{
				ID:   msg.ChannelID,
				Type: msg.ChannelType,
				Name: channelName,
			},
			Guild:          msg.Guild,
			ConversationID: msg.ChannelID,
			ThreadID:       msg.ChannelID,
		},
		Attachments: msg.Attachments,
	}
}

// SplitText breaks text into fixed-size rune chunks of at most limit.
func SplitText(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	chunks := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
