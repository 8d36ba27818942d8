package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/xaenox/relaybot/internal/models"
)

type memoryEntry struct {
	payload []byte
	version string
}

// MemoryStorage keeps histories in process memory. Payloads go through the
// same codec as the durable stores so callers never share slices.
type MemoryStorage struct {
	mu      sync.RWMutex
	threads map[string]memoryEntry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		threads: make(map[string]memoryEntry),
	}
}

func (s *MemoryStorage) Load(ctx context.Context, threadID string) (*models.ThreadHistory, error) {
	s.mu.RLock()
	entry, exists := s.threads[threadID]
	s.mu.RUnlock()

	if !exists {
		return nil, nil
	}
	history, err := DecodeHistory(entry.payload)
	if err != nil {
		return nil, err
	}
	history.Version = entry.version
	return history, nil
}

func (s *MemoryStorage) Save(ctx context.Context, threadID string, history *models.ThreadHistory, expectedVersion string) (string, error) {
	payload, err := EncodeHistory(history)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.threads[threadID]
	switch {
	case expectedVersion == "" && exists:
		return "", fmt.Errorf("%w: thread %s already exists", ErrConflict, threadID)
	case expectedVersion != "" && (!exists || current.version != expectedVersion):
		return "", fmt.Errorf("%w: thread %s", ErrConflict, threadID)
	}

	version := uuid.NewString()
	s.threads[threadID] = memoryEntry{payload: payload, version: version}
	return version, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
