package services

import (
	"context"
	"log/slog"

	"github.com/Ahmed3117/silverbook-authguard/pkg/logger"
)

// LogNotifier is the ResetNotifier used until an SMS gateway is wired in: it
// logs the delivery instead of sending it. The code itself is redacted outside
// development.
type LogNotifier struct {
	logger *slog.Logger
	env    string
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(log *slog.Logger, env string) *LogNotifier {
	return &LogNotifier{logger: log, env: env}
}

func (n *LogNotifier) SendResetCode(ctx context.Context, phoneNumber, code string) error {
	n.logger.LogAttrs(ctx, slog.LevelInfo, "reset code issued",
		slog.String("phone_number", logger.SanitizePhone(phoneNumber)),
		logger.RedactedAttr("code", code, n.env),
	)
	return nil
}
