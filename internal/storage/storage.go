package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaenox/relaybot/internal/models"
)

var (
	// ErrConflict is returned by Save when the stored version no longer
	// matches the version the caller loaded.
	ErrConflict = errors.New("storage: history version conflict")
	// ErrUnsupportedFormat is returned when a persisted payload carries an
	// unknown format version.
	ErrUnsupportedFormat = errors.New("storage: unsupported history format")
)

// HistoryStore persists per-thread conversation history.
//
// Load returns nil and no error when the thread has no history. Save writes
// unconditionally only when expectedVersion matches the current version; an
// empty expectedVersion means the thread must not exist yet. The returned
// string is the new version token.
type HistoryStore interface {
	Load(ctx context.Context, threadID string) (*models.ThreadHistory, error)
	Save(ctx context.Context, threadID string, history *models.ThreadHistory, expectedVersion string) (string, error)
	Close() error
}

// ObjectKey is the flat blob key for a thread.
func ObjectKey(threadID string) string {
	return fmt.Sprintf("%s.json", threadID)
}
