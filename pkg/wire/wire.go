// Package wire holds the JSON request/response shapes of the RPC command
// catalog, shared by the server handlers and the CLI client.
package wire

import "encoding/json"

// Reason strings returned in the error field of a response.
const (
	ReasonNoAuctionName        = "no_auction_name"
	ReasonInvalidParams        = "invalid_params"
	ReasonUnknownAuction       = "unknown_auction"
	ReasonAuctionClosed        = "auction_closed"
	ReasonBidTooLow            = "bid_too_low"
	ReasonOnlyOwnerCanFinalize = "only_owner_can_finalize"
	ReasonInternalError        = "internal_error"
)

// CreateAuctionRequest is the body of POST /rpc/createAuction.
type CreateAuctionRequest struct {
	Name      string  `json:"name"`
	MinPrice  float64 `json:"minPrice"`
	UserName  string  `json:"userName"`
	Signature string  `json:"signature,omitempty"`
	PublicKey string  `json:"publicKey,omitempty"`
}

// CreateAuctionResponse is the success payload of createAuction.
type CreateAuctionResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// CreateBidRequest is the body of POST /rpc/createBid.
type CreateBidRequest struct {
	AuctionID string  `json:"auctionId"`
	Amount    float64 `json:"amount"`
	UserName  string  `json:"userName"`
	Signature string  `json:"signature,omitempty"`
	PublicKey string  `json:"publicKey,omitempty"`
}

// FinalizeAuctionRequest is the body of POST /rpc/finalizeAuction.
type FinalizeAuctionRequest struct {
	AuctionID string `json:"auctionId"`
	UserName  string `json:"userName"`
	Signature string `json:"signature,omitempty"`
	PublicKey string `json:"publicKey,omitempty"`
}

// FinalizeAuctionResponse is the success payload of finalizeAuction.
type FinalizeAuctionResponse struct {
	Success     bool    `json:"success"`
	WinnerName  string  `json:"winnerName"`
	WinnerPrice float64 `json:"winnerPrice"`
}

// SubscribeRequest is the body of POST /rpc/sub.
type SubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// GenericResponse is a bare success or error value.
type GenericResponse struct {
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AuctionData is one row of the getAuctionData listing.
type AuctionData struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	MinPrice      float64  `json:"minPrice"`
	UserName      string   `json:"userName"`
	Closed        bool     `json:"closed"`
	CurrentPrice  *float64 `json:"currentPrice,omitempty"`
	CurrentBidder string   `json:"currentBidder,omitempty"`
	WinnerName    string   `json:"winnerName,omitempty"`
	WinnerPrice   *float64 `json:"winnerPrice,omitempty"`
}

// Event is the envelope pushed to subscriber endpoints.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
