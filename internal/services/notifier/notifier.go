package notifier

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/dcmn/ordertrack/internal/broker/messages"
	"github.com/dcmn/ordertrack/internal/stages"
)

// Sender доставляет уведомление клиенту. Продакшен-реализация живёт за
// этим интерфейсом (email-провайдер), в worker по умолчанию — лог.
type Sender interface {
	OrderCreated(ctx context.Context, ev messages.StageChanged) error
	StageChanged(ctx context.Context, ev messages.StageChanged) error
}

// LogSender пишет уведомления в slog вместо отправки. Достаточно для
// стенда и для прогона событийного контура без почтового провайдера.
type LogSender struct{}

func (LogSender) OrderCreated(ctx context.Context, ev messages.StageChanged) error {
	slog.Info("notify: order created",
		"tid", ev.TID,
		"service", stages.ServiceLabel(ev.Service),
		"email", ev.Email,
		"stage", ev.NewStage,
	)
	return nil
}

func (LogSender) StageChanged(ctx context.Context, ev messages.StageChanged) error {
	slog.Info("notify: stage changed",
		"tid", ev.TID,
		"service", stages.ServiceLabel(ev.Service),
		"email", ev.Email,
		"old", ev.OldStage,
		"new", ev.NewStage,
	)
	return nil
}

// Notifier превращает события из kafka в уведомления.
type Notifier struct {
	sender Sender
}

func New(sender Sender) *Notifier {
	if sender == nil {
		sender = LogSender{}
	}
	return &Notifier{sender: sender}
}

// Handle — обработчик для kafka.Consumer. Возврат ошибки означает
// "не коммитить, переиграть"; кривой payload коммитим сразу, повторная
// доставка его не вылечит.
func (n *Notifier) Handle(key, value []byte) error {
	var ev messages.StageChanged
	if err := json.Unmarshal(value, &ev); err != nil {
		slog.Error("skip malformed stage event", "key", string(key), "error", err.Error())
		return nil
	}

	ctx := context.Background()
	switch ev.Kind {
	case messages.EventKindCreated:
		return errors.Wrap(n.sender.OrderCreated(ctx, ev), "send created notification")
	case messages.EventKindStageChanged:
		if ev.Email == "" {
			slog.Warn("stage event without email, nothing to notify", "tid", ev.TID)
			return nil
		}
		return errors.Wrap(n.sender.StageChanged(ctx, ev), "send stage notification")
	default:
		slog.Warn("unknown stage event kind", "kind", ev.Kind, "tid", ev.TID)
		return nil
	}
}
