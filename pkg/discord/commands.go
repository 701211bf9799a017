package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"miabridge/pkg/logger"
)

const commandPrefix = "!"

const infoText = `**Bot Mia - Ayuda**

**Cómo usar:**
- Envíame un mensaje directo (DM) - respondo siempre
- Menciónme en un canal: @Mia tu mensaje - solo respondo si me mencionas
- Envía archivos, audios o imágenes

**Comandos:**
- ` + "`!ping`" + ` - Verifica la conexión del bot
- ` + "`!info`" + ` - Muestra este mensaje de ayuda
- ` + "`!status`" + ` - Verifica si el bot está habilitado

¡Estoy lista para ayudarte! 😊`

// commandCooldowns throttles repeated invocation per user.
var commandCooldowns = map[string]time.Duration{
	"ping":   5 * time.Second,
	"info":   10 * time.Second,
	"status": 5 * time.Second,
}

// CommandDispatcher handles the `!`-prefixed utility commands in
// channel messages that did not qualify for the relay pipeline.
type CommandDispatcher struct {
	gate    Gate
	latency func() time.Duration
	reply   func(channelID, text string) error

	mu       sync.Mutex
	lastUsed map[string]time.Time
	now      func() time.Time
}

func NewCommandDispatcher(gate Gate, latency func() time.Duration, reply func(channelID, text string) error) *CommandDispatcher {
	return &CommandDispatcher{
		gate:     gate,
		latency:  latency,
		reply:    reply,
		lastUsed: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Dispatch runs content as a command if it is one. Unknown commands
// are ignored silently; cooldown violations answer with the remaining
// wait time instead of executing. A panicking command handler answers
// with a generic error notice rather than taking the gateway down.
func (d *CommandDispatcher) Dispatch(ctx context.Context, channelID, userID, content string) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("commands", "Command handler panicked", map[string]any{"panic": fmt.Sprint(r)})
			d.send(channelID, "❌ Ocurrió un error al ejecutar el comando.")
		}
	}()

	if !strings.HasPrefix(content, commandPrefix) {
		return
	}
	name := strings.TrimPrefix(strings.Fields(content)[0], commandPrefix)

	cooldown, known := commandCooldowns[name]
	if !known {
		return
	}

	if remaining := d.checkCooldown(userID, name, cooldown); remaining > 0 {
		d.send(channelID, fmt.Sprintf(
			"⏳ Espera %.1f segundos antes de usar este comando nuevamente.",
			remaining.Seconds()))
		return
	}

	switch name {
	case "ping":
		d.send(channelID, fmt.Sprintf("🏓 Pong! Latencia: %dms", d.latency().Milliseconds()))
	case "info":
		d.send(channelID, infoText)
	case "status":
		logger.InfoCF("commands", "Status command invoked", map[string]any{"user_id": userID})
		if d.gate.IsEnabled(ctx, userID) {
			d.send(channelID, "🟢 Bot habilitado y funcionando correctamente")
		} else {
			d.send(channelID, "🔴 Bot temporalmente deshabilitado")
		}
	}
}

// checkCooldown returns the remaining wait, or zero and arms the
// cooldown when the command may run.
func (d *CommandDispatcher) checkCooldown(userID, name string, cooldown time.Duration) time.Duration {
	key := userID + ":" + name

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.lastUsed[key]; ok {
		if elapsed := now.Sub(last); elapsed < cooldown {
			return cooldown - elapsed
		}
	}
	d.lastUsed[key] = now
	return 0
}

func (d *CommandDispatcher) send(channelID, text string) {
	if err := d.reply(channelID, text); err != nil {
		logger.ErrorCF("commands", "Command reply failed", map[string]any{"error": err.Error()})
	}
}
