package eventlog

import (
	"context"
	"fmt"

	"cloud.google.com/go/logging"
	"github.com/xaenox/relaybot/internal/models"
)

type entryWriter interface {
	LogSync(ctx context.Context, e logging.Entry) error
}

// CloudSink writes records to Google Cloud Logging as JSON payloads.
// Writes are synchronous so a failing sink surfaces to the caller.
type CloudSink struct {
	client *logging.Client
	logger entryWriter
}

func NewCloudSink(ctx context.Context, projectID, name string) (*CloudSink, error) {
	if projectID == "" {
		return nil, fmt.Errorf("eventlog: project id is required for cloud logging")
	}
	if name == "" {
		name = DefaultLoggerName
	}
	client, err := logging.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("eventlog: create cloud logging client: %w", err)
	}
	return &CloudSink{client: client, logger: client.Logger(name)}, nil
}

func (s *CloudSink) Write(ctx context.Context, rec models.LogRecord) error {
	if err := s.logger.LogSync(ctx, logging.Entry{
		Severity: logging.Info,
		Payload:  rec,
	}); err != nil {
		return fmt.Errorf("eventlog: cloud logging write: %w", err)
	}
	return nil
}

func (s *CloudSink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
