// Package dedup suppresses re-processing of chat events the messaging
// platform delivered more than once.
//
// Only the latest handled timestamp is kept per (channel, user). A
// redelivery is caught when it repeats the immediately preceding event from
// that user in that channel; a redelivery arriving after a different
// message from the same user is processed again.
package dedup

import "context"

// Guard decides whether an inbound event should be handled.
type Guard interface {
	// ShouldProcess reports whether the event is neither self-sent, missing
	// a sender, nor a repeat of the last handled event for the key.
	ShouldProcess(ctx context.Context, channelID, userID, eventTS string, senderIsSelf bool) (bool, error)
	// MarkProcessed records eventTS as the last handled event for the key.
	MarkProcessed(ctx context.Context, channelID, userID, eventTS string) error
	// Claim atomically combines ShouldProcess and MarkProcessed.
	Claim(ctx context.Context, channelID, userID, eventTS string, senderIsSelf bool) (bool, error)
	// Release forgets a claim on eventTS so a redelivery is handled again.
	// It is a no-op when a newer event has been recorded for the key.
	Release(ctx context.Context, channelID, userID, eventTS string) error
}

func eventKey(channelID, userID string) string {
	return channelID + "_" + userID
}

func rejectSender(userID string, senderIsSelf bool) bool {
	return senderIsSelf || userID == ""
}
