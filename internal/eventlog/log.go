// Package eventlog defines the append-only keyed record log that the auction
// engine replays, together with an in-memory implementation used for local
// runs and tests. Replicated backends live in subpackages.
package eventlog

import (
	"context"
	"errors"
)

// Topic layout mirrors the persisted record namespaces: one topic for auction
// records, one per-auction topic for bids, and one for subscriber endpoints.
const (
	TopicAuctions    = "auctions"
	TopicSubscribers = "subscribers"

	bidTopicPrefix = "auction_bids_"
)

// BidTopic returns the bid topic for an auction id.
func BidTopic(auctionID string) string {
	return bidTopicPrefix + auctionID
}

// ErrClosed is returned by operations on a closed log.
var ErrClosed = errors.New("event log is closed")

// Entry is one durably appended record. ID is the backend's position token
// (sequence number or stream id); Key is the application-level record key.
type Entry struct {
	Topic string
	Key   string
	ID    string
	Value []byte
}

// Log is the engine's view of the replicated record store.
//
// Stream delivers every entry appended to the topic so far (history) and then
// continues with entries appended from now on (live tail), with no gap and no
// duplicate between the two phases. The channel is closed when ctx is
// cancelled or the log shuts down. Entries already durably appended are
// immutable; a key may repeat, in which case later entries supersede earlier
// ones at the application level.
type Log interface {
	Append(ctx context.Context, topic, key string, value []byte) (id string, err error)
	Stream(ctx context.Context, topic string) (<-chan Entry, error)
	Close() error
}
