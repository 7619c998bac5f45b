package notify

import (
	"context"
	"fmt"

	domsvc "TradeFuse/internal/domain/service"
	"TradeFuse/pkg/logger"
	"TradeFuse/pkg/queue"
)

// MessageType is the queue message type for operator events.
const MessageType = "operator_event"

// SendJob delivers queued operator events through the Telegram client.
type SendJob struct {
	client *TelegramClient
	logger *logger.Logger
}

// NewSendJob creates the queue job.
func NewSendJob(lgr *logger.Logger, client *TelegramClient) *SendJob {
	return &SendJob{client: client, logger: lgr}
}

func (j *SendJob) Name() string { return "telegram_send" }
func (j *SendJob) Kind() string { return MessageType }

// Handle formats and sends one event.
func (j *SendJob) Handle(ctx context.Context, payload interface{}) error {
	ev, err := queue.ParsePayload[domsvc.Event](payload)
	if err != nil {
		return fmt.Errorf("parse event payload: %w", err)
	}

	return j.client.Send(ctx, formatEvent(*ev))
}

func formatEvent(ev domsvc.Event) string {
	prefix := ""
	switch ev.Priority {
	case "critical":
		prefix = "🚨 "
	case "high":
		prefix = "⚠️ "
	}

	text := fmt.Sprintf("%s*%s*", prefix, ev.Title)
	if ev.Symbol != "" {
		text += fmt.Sprintf(" [%s]", ev.Symbol)
	}
	if ev.Body != "" {
		text += "\n" + ev.Body
	}
	return text
}

var _ queue.Job = (*SendJob)(nil)
