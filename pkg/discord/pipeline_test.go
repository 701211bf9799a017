package discord

import (
	"context"
	"strings"
	"testing"
	"time"

	"miabridge/pkg/bus"
	"miabridge/pkg/relay"
)

type stubGate bool

func (g stubGate) IsEnabled(context.Context, string) bool { return bool(g) }

type stubRelayer struct {
	reply relay.Reply
	err   error

	calls int
	got   relay.Payload
}

func (r *stubRelayer) Send(_ context.Context, p relay.Payload) (relay.Reply, error) {
	r.calls++
	r.got = p
	return r.reply, r.err
}

func replyFrom(t *testing.T, raw string) relay.Reply {
	t.Helper()
	reply, err := relay.DecodeReply([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeReply(%q): %v", raw, err)
	}
	return reply
}

func newTestPipeline(gate Gate, relayer Relayer) (*Pipeline, *bus.MessageBus) {
	mb := bus.NewMessageBus()
	p := NewPipeline(gate, relayer, mb)
	p.SetBotID("BOT")
	p.chunkPause = 0
	return p, mb
}

func drainOutbound(t *testing.T, mb *bus.MessageBus, n int) []bus.OutboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out := make([]bus.OutboundMessage, 0, n)
	for i := 0; i < n; i++ {
		msg, ok := mb.ConsumeOutbound(ctx)
		if !ok {
			t.Fatalf("outbound drained after %d of %d messages", len(out), n)
		}
		out = append(out, msg)
	}
	return out
}

func inbound(content string) bus.InboundMessage {
	return bus.InboundMessage{
		ID:         "m1",
		CreatedAt:  time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		AuthorID:   "u1",
		AuthorName: "ana",
		ChannelID:  "c1",
		Content:    content,
	}
}

func TestProcess_SkipsBotAuthors(t *testing.T) {
	relayer := &stubRelayer{}
	p, mb := newTestPipeline(stubGate(true), relayer)

	msg := inbound("hola")
	msg.IsBot = true
	p.Process(context.Background(), msg)

	if relayer.calls != 0 {
		t.Errorf("relayer called %d times for a bot message", relayer.calls)
	}
	mb.Close()
}

func TestProcess_DisabledGate(t *testing.T) {
	relayer := &stubRelayer{}
	p, mb := newTestPipeline(stubGate(false), relayer)

	p.Process(context.Background(), inbound("hola"))

	out := drainOutbound(t, mb, 1)
	if out[0].Kind != bus.OutboundText || out[0].Content != noticeDisabled {
		t.Errorf("got %+v, want disabled notice", out[0])
	}
	if relayer.calls != 0 {
		t.Errorf("relayer called %d times while disabled", relayer.calls)
	}
}

func TestProcess_EmptyInput(t *testing.T) {
	relayer := &stubRelayer{}
	p, mb := newTestPipeline(stubGate(true), relayer)

	p.Process(context.Background(), inbound(""))

	out := drainOutbound(t, mb, 1)
	if out[0].Content != noticeEmptyInput {
		t.Errorf("got %q, want empty-input prompt", out[0].Content)
	}
	if relayer.calls != 0 {
		t.Errorf("relayer called %d times on empty input", relayer.calls)
	}
}

func TestProcess_AttachmentPlaceholder(t *testing.T) {
	relayer := &stubRelayer{reply: replyFrom(t, `{"response":"bonita foto"}`)}
	p, mb := newTestPipeline(stubGate(true), relayer)

	msg := inbound("")
	msg.Attachments = []relay.Attachment{
		relay.Classify("cat.png", "https://cdn.example/cat.png", 4096, "image/png"),
	}
	p.Process(context.Background(), msg)

	if relayer.got.Message != "[Imagen enviada]" {
		t.Errorf("payload.Message = %q, want placeholder", relayer.got.Message)
	}
	if len(relayer.got.Attachments) != 1 || relayer.got.Attachments[0].Kind != relay.KindImage {
		t.Errorf("payload.Attachments = %+v", relayer.got.Attachments)
	}

	out := drainOutbound(t, mb, 2)
	if out[0].Kind != bus.OutboundTyping {
		t.Errorf("first outbound = %+v, want typing", out[0])
	}
	if out[1].Content != "bonita foto" {
		t.Errorf("reply = %q", out[1].Content)
	}
}

func TestProcess_StripsMentions(t *testing.T) {
	relayer := &stubRelayer{reply: replyFrom(t, `{"response":"ok"}`)}
	p, mb := newTestPipeline(stubGate(true), relayer)

	msg := inbound("<@BOT>  hola   mundo")
	msg.MentionsBot = true
	p.Process(context.Background(), msg)

	if relayer.got.Message != "hola mundo" {
		t.Errorf("payload.Message = %q, want %q", relayer.got.Message, "hola mundo")
	}
	drainOutbound(t, mb, 2)
}

func TestProcess_PayloadMetadata(t *testing.T) {
	relayer := &stubRelayer{reply: replyFrom(t, `{"response":"ok"}`)}
	p, mb := newTestPipeline(stubGate(true), relayer)

	p.Process(context.Background(), inbound("hola"))

	got := relayer.got
	if got.Platform != "discord" {
		t.Errorf("Platform = %q", got.Platform)
	}
	if got.Metadata.CreatedAt != "2026-08-01T10:00:00Z" {
		t.Errorf("CreatedAt = %q", got.Metadata.CreatedAt)
	}
	if got.Metadata.ConversationID != "c1" || got.Metadata.ThreadID != "c1" {
		t.Errorf("conversation ids = %q/%q, want channel id",
			got.Metadata.ConversationID, got.Metadata.ThreadID)
	}
	drainOutbound(t, mb, 2)
}

func TestProcess_RelayError(t *testing.T) {
	relayer := &stubRelayer{err: &relay.RelayError{Message: "No se pudo conectar con el servidor"}}
	p, mb := newTestPipeline(stubGate(true), relayer)

	p.Process(context.Background(), inbound("hola"))

	out := drainOutbound(t, mb, 2)
	want := noticeErrorPrefix + "No se pudo conectar con el servidor"
	if out[1].Content != want {
		t.Errorf("got %q, want %q", out[1].Content, want)
	}
}

func TestProcess_EmptyResponse(t *testing.T) {
	relayer := &stubRelayer{reply: replyFrom(t, `{"response":""}`)}
	p, mb := newTestPipeline(stubGate(true), relayer)

	p.Process(context.Background(), inbound("hola"))

	out := drainOutbound(t, mb, 2)
	if out[1].Content != noticeEmptyResponse {
		t.Errorf("got %q, want empty-response notice", out[1].Content)
	}
}

func TestProcess_SuppressesSystemMessages(t *testing.T) {
	relayer := &stubRelayer{reply: replyFrom(t, `{"message":"Workflow started"}`)}
	p, mb := newTestPipeline(stubGate(true), relayer)

	p.Process(context.Background(), inbound("hola"))

	// Only the typing signal; the system message itself never goes out.
	out := drainOutbound(t, mb, 1)
	if out[0].Kind != bus.OutboundTyping {
		t.Errorf("got %+v, want typing only", out[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if extra, ok := mb.ConsumeOutbound(ctx); ok {
		t.Errorf("unexpected outbound message %+v after suppression", extra)
	}
}

func TestProcess_ChunksLongReplies(t *testing.T) {
	long := strings.Repeat("a", 4500)
	relayer := &stubRelayer{reply: replyFrom(t, `{"response":"`+long+`"}`)}
	p, mb := newTestPipeline(stubGate(true), relayer)

	p.Process(context.Background(), inbound("hola"))

	out := drainOutbound(t, mb, 4)
	wantLens := []int{2000, 2000, 500}
	for i, want := range wantLens {
		if got := len(out[i+1].Content); got != want {
			t.Errorf("chunk %d length = %d, want %d", i, got, want)
		}
	}
	if out[1].Content+out[2].Content+out[3].Content != long {
		t.Error("chunks do not reassemble into the original reply")
	}
}

func TestSplitText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"fits", "hola", 10, []string{"hola"}},
		{"exact", "abcd", 4, []string{"abcd"}},
		{"split", "abcde", 2, []string{"ab", "cd", "e"}},
		{"runes not bytes", "ññññ", 2, []string{"ññ", "ññ"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitText(tt.text, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitText = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
