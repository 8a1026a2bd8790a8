package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/realtime"
)

// NotificationService forwards domain events to realtime channels.
type NotificationService struct {
	dispatcher events.Dispatcher
	publisher  realtime.Publisher
	logger     *zap.Logger
	cfg        config.RealtimeConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, publisher realtime.Publisher, logger *zap.Logger, cfg config.RealtimeConfig) *NotificationService {
	if publisher == nil {
		publisher = realtime.Noop{}
	}
	return &NotificationService{
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     nonNilLogger(logger),
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes the forwarder and returns the event types it
// now receives.
func (n *NotificationService) RegisterHandlers() []events.EventType {
	if n.dispatcher == nil {
		return nil
	}
	for _, eventType := range events.AllEventTypes {
		n.dispatcher.Subscribe(eventType, n.forward)
	}
	return append([]events.EventType(nil), events.AllEventTypes...)
}

func (n *NotificationService) forward(ctx context.Context, event events.Event) error {
	n.logger.Debug("forwarding event",
		zap.String("event_type", string(event.Type)),
		zap.Int64("ticket_id", event.TicketID),
		zap.String("chat_id", event.ChatID))

	if !n.cfg.Enabled {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	var errs []error
	if event.ChatID != "" {
		if err := n.publisher.Publish(ctx, realtime.ChatChannel(n.cfg.ChannelPrefix, event.ChatID), body); err != nil {
			errs = append(errs, err)
		}
	}
	seen := make(map[string]bool, len(event.Recipients))
	for _, userID := range event.Recipients {
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true
		if err := n.publisher.Publish(ctx, realtime.UserChannel(n.cfg.ChannelPrefix, userID), body); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		n.logger.Warn("realtime publish failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		return err
	}
	return nil
}
