package agent

import (
	"context"
	"log/slog"

	"github.com/instrumentgpt/instrumentgpt/internal/bus"
)

// Loop reads InboundMessages from the bus, runs each through the engine, and
// publishes the responses. Each inbound message is handled in its own
// goroutine; the engine's per-conversation locks keep turns ordered.
type Loop struct {
	bus    bus.Bus
	engine *Engine
	logger *slog.Logger
}

func NewLoop(b bus.Bus, engine *Engine, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{bus: b, engine: engine, logger: logger}
}

// Run blocks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("turn loop started")
	for {
		select {
		case msg := <-l.bus.InboundChan():
			go l.handle(ctx, msg)
		case <-ctx.Done():
			l.logger.Info("turn loop stopping")
			return ctx.Err()
		}
	}
}

func (l *Loop) handle(ctx context.Context, msg bus.InboundMessage) {
	l.logger.Info("inbound message",
		"channel", msg.Channel, "chat", msg.ChatID, "preview", msg.ContentPreview())

	text, err := l.process(ctx, msg)
	if err != nil {
		l.logger.Error("turn error", "channel", msg.Channel, "chat", msg.ChatID, "error", err)
		text = "Error: " + err.Error()
	}

	out := bus.NewOutboundMessage(msg.Channel, msg.ChatID, text)
	out.Metadata = msg.Metadata
	l.bus.PublishOutbound(out)
}

func (l *Loop) process(ctx context.Context, msg bus.InboundMessage) (string, error) {
	id, err := l.engine.EnsureConversation(msg.SessionKey(), msg.Content)
	if err != nil {
		return "", err
	}
	return l.engine.ProcessTurn(ctx, id, msg.Content, nil)
}
