// Package index maintains the in-memory projection of auction and bid state
// derived by replaying the event log. It is the only owner of mutable derived
// state: all reads go through snapshots and all writes go through per-auction
// critical sections.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/openoutcry/crier/internal/eventlog"
)

// ErrNotFound is returned when an auction id is not present in the index.
var ErrNotFound = errors.New("auction is not indexed")

// Index replays the auctions topic and one bid topic per discovered auction.
// Every apply is idempotent, so replaying the same entry twice (duplicate
// delivery, restart) leaves the projection unchanged.
type Index struct {
	log    eventlog.Log
	logger *slog.Logger

	mu       sync.RWMutex
	auctions map[string]*auctionState
	order    []string
	tracked  map[string]bool

	streamCtx context.Context
	wg        sync.WaitGroup
}

type auctionState struct {
	mu      sync.Mutex
	auction Auction
	price   *CurrentPrice
}

// New creates an index over the given log.
func New(log eventlog.Log, logger *slog.Logger) *Index {
	return &Index{
		log:      log,
		logger:   logger,
		auctions: make(map[string]*auctionState),
		tracked:  make(map[string]bool),
	}
}

// Start begins consuming the auctions topic: full history first, then the
// live tail. Bid topics are consumed per auction as auctions are discovered.
// Start returns immediately; replay continues until ctx is cancelled.
func (ix *Index) Start(ctx context.Context) error {
	ix.streamCtx = ctx
	entries, err := ix.log.Stream(ctx, eventlog.TopicAuctions)
	if err != nil {
		return err
	}
	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		for e := range entries {
			ix.applyAuctionEntry(e)
		}
	}()
	return nil
}

// Wait blocks until all replay goroutines have stopped.
func (ix *Index) Wait() {
	ix.wg.Wait()
}

// ApplyCreation applies a creation record directly and registers the bid
// stream for the new id. The dispatcher calls this right after appending the
// creation entry so bids against the fresh auction are admissible before the
// replay path observes the append. The later replayed entry no-ops.
func (ix *Index) ApplyCreation(id string, rec AuctionRecord) {
	ix.insertAuction(id, rec)
}

// WithAuction runs fn while holding the auction's exclusive section. All
// admission decisions and derived-state updates for one auction id are
// serialized through here; distinct auctions proceed in parallel. Returns
// ErrNotFound for an unknown id.
func (ix *Index) WithAuction(id string, fn func(v *View) error) error {
	ix.mu.RLock()
	st := ix.auctions[id]
	ix.mu.RUnlock()
	if st == nil {
		return ErrNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return fn(&View{st: st})
}

// Snapshot returns a copy of every indexed auction with its current price, in
// the order auctions were first indexed.
func (ix *Index) Snapshot() []Summary {
	ix.mu.RLock()
	states := make([]*auctionState, 0, len(ix.order))
	for _, id := range ix.order {
		states = append(states, ix.auctions[id])
	}
	ix.mu.RUnlock()

	out := make([]Summary, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		s := Summary{Auction: st.auction}
		if st.price != nil {
			p := *st.price
			s.CurrentPrice = &p
		}
		st.mu.Unlock()
		out = append(out, s)
	}
	return out
}

func (ix *Index) applyAuctionEntry(e eventlog.Entry) {
	var rec AuctionRecord
	if err := json.Unmarshal(e.Value, &rec); err != nil {
		// Malformed entries are treated as absent rather than aborting replay.
		ix.logger.Warn("skipping unparseable auction entry", "key", e.Key, "error", err)
		return
	}
	if rec.Closed {
		ix.applyClosure(e.Key, rec)
		return
	}
	ix.insertAuction(e.Key, rec)
}

func (ix *Index) insertAuction(id string, rec AuctionRecord) {
	if id == "" || rec.Name == "" {
		return
	}
	ix.mu.Lock()
	if _, ok := ix.auctions[id]; ok {
		ix.mu.Unlock()
		return
	}
	ix.auctions[id] = &auctionState{auction: Auction{
		ID:        id,
		Name:      rec.Name,
		MinPrice:  rec.MinPrice,
		OwnerName: rec.UserName,
	}}
	ix.order = append(ix.order, id)
	start := !ix.tracked[id] && ix.streamCtx != nil
	if start {
		ix.tracked[id] = true
	}
	ix.mu.Unlock()

	if start {
		ix.trackBids(id)
	}
}

func (ix *Index) applyClosure(id string, rec AuctionRecord) {
	ix.mu.RLock()
	st := ix.auctions[id]
	ix.mu.RUnlock()
	if st == nil {
		// The creation entry has not been applied yet. Dropping the closure
		// is acceptable: it stays visible in the log and the operator is told.
		ix.logger.Warn("closure entry for unknown auction", "auctionId", id)
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.auction.Closed {
		return
	}
	st.auction.Closed = true
	st.auction.WinnerName = rec.WinnerName
	st.auction.WinnerPrice = rec.WinnerPrice
}

func (ix *Index) trackBids(auctionID string) {
	entries, err := ix.log.Stream(ix.streamCtx, eventlog.BidTopic(auctionID))
	if err != nil {
		ix.logger.Error("failed to open bid stream", "auctionId", auctionID, "error", err)
		return
	}
	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		for e := range entries {
			ix.applyBidEntry(auctionID, e)
		}
	}()
}

// applyBidEntry reflects a durably appended bid into the current-price
// projection. This is replay, not admission: whatever reached the log is
// merged unconditionally, keeping the maximum.
func (ix *Index) applyBidEntry(auctionID string, e eventlog.Entry) {
	var rec BidRecord
	if err := json.Unmarshal(e.Value, &rec); err != nil {
		ix.logger.Warn("skipping unparseable bid entry", "auctionId", auctionID, "key", e.Key, "error", err)
		return
	}
	ix.mu.RLock()
	st := ix.auctions[auctionID]
	ix.mu.RUnlock()
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.mergeBid(rec.Amount, rec.UserName)
}

func (st *auctionState) mergeBid(amount float64, bidder string) {
	if st.price == nil || amount > st.price.Amount {
		st.price = &CurrentPrice{Amount: amount, Bidder: bidder}
	}
}

// View exposes one auction's state inside its exclusive section.
type View struct {
	st *auctionState
}

// Auction returns a copy of the auction metadata.
func (v *View) Auction() Auction {
	return v.st.auction
}

// CurrentPrice returns a copy of the derived current price, or nil if no bid
// has been observed.
func (v *View) CurrentPrice() *CurrentPrice {
	if v.st.price == nil {
		return nil
	}
	p := *v.st.price
	return &p
}

// RecordBid merges an accepted bid into the current price. Max-merge keeps
// the update idempotent against the replayed copy of the same bid.
func (v *View) RecordBid(amount float64, bidder string) {
	v.st.mergeBid(amount, bidder)
}

// Close marks the auction closed with the winner captured at closure time.
func (v *View) Close(winnerName string, winnerPrice float64) {
	v.st.auction.Closed = true
	v.st.auction.WinnerName = winnerName
	v.st.auction.WinnerPrice = winnerPrice
}
