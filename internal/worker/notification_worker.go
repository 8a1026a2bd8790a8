// Package worker starts the background consumers of domain events.
package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/service"
)

// StartNotificationWorker subscribes the realtime forwarder to every domain
// event and returns the subscribed types. With realtime disabled events are
// still consumed and logged, only nothing is pushed.
func StartNotificationWorker(notifications *service.NotificationService, cfg config.RealtimeConfig, logger *zap.Logger) []events.EventType {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifications == nil {
		logger.Warn("notification worker not started: no notification service")
		return nil
	}

	subscribed := notifications.RegisterHandlers()
	names := make([]string, 0, len(subscribed))
	for _, eventType := range subscribed {
		names = append(names, string(eventType))
	}
	logger.Info("notification worker started",
		zap.Strings("event_types", names),
		zap.Bool("realtime", cfg.Enabled),
		zap.String("channel_prefix", cfg.ChannelPrefix))
	return subscribed
}
