package models

import "strings"

// InboundEvent is a chat message delivered by the messaging platform.
type InboundEvent struct {
	Channel  string `json:"channel"`
	User     string `json:"user"`
	Text     string `json:"text"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
	SubType  string `json:"subtype,omitempty"`
}

// ThreadID returns the root timestamp of the thread the event belongs to,
// or the event's own timestamp when it starts no thread.
func (e InboundEvent) ThreadID() string {
	if e.ThreadTS != "" {
		return e.ThreadTS
	}
	return e.TS
}

// Valid reports whether the event carries everything needed to answer it.
func (e InboundEvent) Valid() bool {
	return e.Channel != "" && e.User != "" && e.TS != "" && strings.TrimSpace(e.Text) != ""
}

// FromBot reports whether the event was produced by a bot integration or
// is a non-message variant (edits, joins, deletions).
func (e InboundEvent) FromBot() bool {
	return e.BotID != "" || e.SubType != ""
}
