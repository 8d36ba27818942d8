package eventlog

import (
	"context"

	"github.com/xaenox/relaybot/internal/models"
	"go.uber.org/zap"
)

// ZapSink writes records as structured entries on a named zap logger. On
// Cloud Run stdout JSON lands in Cloud Logging without a client library.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger, name string) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if name == "" {
		name = DefaultLoggerName
	}
	return &ZapSink{logger: logger.Named(name)}
}

func (s *ZapSink) Write(_ context.Context, rec models.LogRecord) error {
	s.logger.Info("chat exchange",
		zap.String("slack_user_id", rec.SlackUserID),
		zap.String("prompt", rec.Prompt),
		zap.String("response", rec.Response),
		zap.String("keyword", rec.Keyword))
	return nil
}

func (s *ZapSink) Close() error {
	// stdout sync errors are not actionable here
	_ = s.logger.Sync()
	return nil
}
