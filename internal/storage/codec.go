package storage

import (
	"encoding/json"
	"fmt"

	"github.com/xaenox/relaybot/internal/models"
)

// EncodeHistory serializes history with the current format version.
func EncodeHistory(history *models.ThreadHistory) ([]byte, error) {
	out := *history
	out.FormatVersion = models.HistoryFormatVersion
	if out.Turns == nil {
		out.Turns = []models.Turn{}
	}
	data, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("storage: marshal history: %w", err)
	}
	return data, nil
}

// DecodeHistory parses a payload written by EncodeHistory.
func DecodeHistory(data []byte) (*models.ThreadHistory, error) {
	var history models.ThreadHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("storage: decode history: %w", err)
	}
	if history.FormatVersion != models.HistoryFormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, history.FormatVersion)
	}
	for i, turn := range history.Turns {
		if turn.Role != models.RoleUser && turn.Role != models.RoleModel {
			return nil, fmt.Errorf("storage: turn %d has unknown role %q", i, turn.Role)
		}
	}
	return &history, nil
}
