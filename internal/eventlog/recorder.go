// Package eventlog emits one structured record per logged chat exchange.
package eventlog

import (
	"context"
	"fmt"

	"github.com/xaenox/relaybot/internal/models"
)

// DefaultLoggerName is the log stream records are written to.
const DefaultLoggerName = "palm2_slack_chatbot"

// Sink delivers a record to its destination in a single call.
type Sink interface {
	Write(ctx context.Context, rec models.LogRecord) error
	Close() error
}

// Recorder builds records and hands them to a sink. It neither batches nor
// retries; durability is the sink's concern.
type Recorder struct {
	sink Sink
}

func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

func (r *Recorder) Record(ctx context.Context, userID, prompt, reply, keyword string) error {
	rec := models.LogRecord{
		SlackUserID: userID,
		Prompt:      prompt,
		Response:    reply,
		Keyword:     keyword,
	}
	if err := r.sink.Write(ctx, rec); err != nil {
		return fmt.Errorf("eventlog: write record: %w", err)
	}
	return nil
}
