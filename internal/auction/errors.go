package auction

import "errors"

// Command-level failures are values. The API layer maps them onto wire
// reason strings; they are never raised across the RPC boundary.
var (
	ErrNoAuctionName        = errors.New("auction name is required")
	ErrInvalidParams        = errors.New("invalid command parameters")
	ErrUnknownAuction       = errors.New("auction does not exist")
	ErrAuctionClosed        = errors.New("auction is closed")
	ErrBidTooLow            = errors.New("bid amount is too low")
	ErrOnlyOwnerCanFinalize = errors.New("only the auction owner can finalize")
)
