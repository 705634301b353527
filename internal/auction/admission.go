package auction

import (
	"math"

	"github.com/openoutcry/crier/internal/index"
)

// AdmitBid decides whether a proposed bid may be durably appended, given the
// auction state observed inside its exclusive section. It is a pure function:
// no I/O, no shared state. Rules apply in order; the first violated rule
// decides the rejection.
//
// Both thresholds require strictly greater-than: a bid equal to the minimum
// price or equal to the current highest is rejected, so there is never a tie
// to break.
func AdmitBid(auctionID string, amount float64, a index.Auction, current *index.CurrentPrice) error {
	if auctionID == "" || !validAmount(amount) {
		return ErrInvalidParams
	}
	if a.Closed {
		return ErrAuctionClosed
	}
	if amount <= a.MinPrice {
		return ErrBidTooLow
	}
	if current != nil && amount <= current.Amount {
		return ErrBidTooLow
	}
	return nil
}

func validAmount(amount float64) bool {
	return amount > 0 && !math.IsNaN(amount) && !math.IsInf(amount, 0)
}
