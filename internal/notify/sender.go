// Package notify holds outbound delivery gateways for emergency
// contact notifications. The production deployment swaps in real
// SMS/email/push providers behind the same interface.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/lifeline/internal/domain/emergency"
)

// LogSender writes every delivery to the log instead of an external
// provider. Used in development and as the default until provider
// credentials are configured.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, channel emergency.NotificationChannel, recipient, payload string) error {
	s.log.Info("notification delivered",
		zap.String("channel", string(channel)),
		zap.String("recipient", recipient),
		zap.String("payload", payload),
	)
	return nil
}
