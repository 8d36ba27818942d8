package models

// Role identifies who authored a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one role-tagged unit of conversation text
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// HistoryFormatVersion is the current persisted history schema version.
const HistoryFormatVersion = 1

// ThreadHistory is the persisted state of one conversation thread.
// Version is the store's concurrency token captured at load time and is
// never part of the serialized payload.
type ThreadHistory struct {
	FormatVersion int    `json:"format_version"`
	Metadata      string `json:"metadata_chat"`
	Turns         []Turn `json:"historical_chat"`
	Version       string `json:"-"`
}

// Append adds turns to the end of the history.
func (h *ThreadHistory) Append(turns ...Turn) {
	h.Turns = append(h.Turns, turns...)
}

// Example is a few-shot input/output pair used to steer model output.
type Example struct {
	Input  string `json:"input" mapstructure:"input"`
	Output string `json:"output" mapstructure:"output"`
}

// Exchange is the outcome of one handled inbound message.
type Exchange struct {
	ThreadID    string `json:"thread_id"`
	UserID      string `json:"user_id"`
	ChannelID   string `json:"channel_id"`
	Prompt      string `json:"prompt"`
	Reply       string `json:"reply"`
	IsNewThread bool   `json:"is_new_thread"`
	Blocked     bool   `json:"blocked"`
}

// LogRecord is the structured record emitted once per logged exchange.
type LogRecord struct {
	SlackUserID string `json:"slack_user_id"`
	Prompt      string `json:"prompt"`
	Response    string `json:"response"`
	Keyword     string `json:"keyword"`
}
