package index

// Auction is the indexed projection of an auction record.
type Auction struct {
	ID          string
	Name        string
	MinPrice    float64
	OwnerName   string
	Closed      bool
	WinnerName  string
	WinnerPrice float64
}

// CurrentPrice is the derived highest accepted amount for an auction and the
// name of the bidder that placed it. Absent (nil) while no bids exist.
type CurrentPrice struct {
	Amount float64
	Bidder string
}

// AuctionRecord is the JSON body of an entry on the auctions topic. A record
// with Closed=false is a creation, Closed=true is a closure carrying the
// winner fields. Both are keyed by the auction id.
type AuctionRecord struct {
	Name        string  `json:"name"`
	MinPrice    float64 `json:"minPrice"`
	UserName    string  `json:"userName"`
	Closed      bool    `json:"closed"`
	WinnerName  string  `json:"winnerName,omitempty"`
	WinnerPrice float64 `json:"winnerPrice,omitempty"`
	Signature   string  `json:"signature,omitempty"`
	PublicKey   string  `json:"publicKey,omitempty"`
}

// BidRecord is the JSON body of an entry on an auction's bid topic, keyed by
// the bid id.
type BidRecord struct {
	AuctionID string  `json:"auctionId"`
	Amount    float64 `json:"amount"`
	UserName  string  `json:"userName"`
	Signature string  `json:"signature,omitempty"`
	PublicKey string  `json:"publicKey,omitempty"`
}

// Summary is one row of the read-only index snapshot.
type Summary struct {
	Auction
	CurrentPrice *CurrentPrice
}
