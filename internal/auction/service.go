// Package auction implements the command dispatcher and the bid admission
// controller of the auction engine. Commands validate their input, consult
// the index inside a per-auction exclusive section, append to the event log,
// and fan the resulting event out to subscribers.
package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openoutcry/crier/internal/eventlog"
	"github.com/openoutcry/crier/internal/index"
)

// Event names broadcast to subscribers. They match the command that produced
// the event.
const (
	EventAuctionCreated   = "createAuction"
	EventBidPlaced        = "createBid"
	EventAuctionFinalized = "finalizeAuction"
)

// Notifier receives accepted-command events for best-effort delivery.
// Implementations must not block the calling command and must swallow their
// own delivery failures.
type Notifier interface {
	Notify(ctx context.Context, event string, payload []byte)
}

// CombineNotifiers fans a single Notify call out to several notifiers.
func CombineNotifiers(notifiers ...Notifier) Notifier {
	return multiNotifier(notifiers)
}

type multiNotifier []Notifier

func (m multiNotifier) Notify(ctx context.Context, event string, payload []byte) {
	for _, n := range m {
		n.Notify(ctx, event, payload)
	}
}

// Service orchestrates index reads, admission checks and log appends for the
// command catalog.
type Service struct {
	log      eventlog.Log
	index    *index.Index
	notifier Notifier
	logger   *slog.Logger
}

// NewService creates the command dispatcher. notifier may be nil.
func NewService(log eventlog.Log, ix *index.Index, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		log:      log,
		index:    ix,
		notifier: notifier,
		logger:   logger,
	}
}

// CreateAuctionCommand carries the createAuction request fields.
type CreateAuctionCommand struct {
	Name      string
	MinPrice  float64
	OwnerName string
	Signature string
	PublicKey string
}

// PlaceBidCommand carries the createBid request fields.
type PlaceBidCommand struct {
	AuctionID string
	Amount    float64
	Bidder    string
	Signature string
	PublicKey string
}

// FinalizeAuctionCommand carries the finalizeAuction request fields.
type FinalizeAuctionCommand struct {
	AuctionID string
	OwnerName string
	Signature string
	PublicKey string
}

// FinalizeResult is the winner captured from the current-price projection at
// the moment of closure.
type FinalizeResult struct {
	WinnerName  string
	WinnerPrice float64
}

// CreateAuction assigns a fresh id, appends the creation record and registers
// the bid stream for the new id. Returns the assigned auction id.
func (s *Service) CreateAuction(ctx context.Context, cmd CreateAuctionCommand) (string, error) {
	if cmd.Name == "" {
		return "", ErrNoAuctionName
	}
	if cmd.MinPrice < 0 {
		return "", ErrInvalidParams
	}

	id := uuid.NewString()
	rec := index.AuctionRecord{
		Name:      cmd.Name,
		MinPrice:  cmd.MinPrice,
		UserName:  cmd.OwnerName,
		Signature: cmd.Signature,
		PublicKey: cmd.PublicKey,
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal auction record: %w", err)
	}
	if _, err := s.log.Append(ctx, eventlog.TopicAuctions, id, body); err != nil {
		return "", fmt.Errorf("append auction record: %w", err)
	}
	s.index.ApplyCreation(id, rec)

	s.broadcast(ctx, EventAuctionCreated, auctionEvent{ID: id, Name: cmd.Name, MinPrice: cmd.MinPrice, UserName: cmd.OwnerName})
	return id, nil
}

// PlaceBid admits the bid against the current index state and, on acceptance,
// appends the bid record and updates the current price in the same exclusive
// section. Admission and update for one auction id are serialized; bids on
// different auctions proceed in parallel.
func (s *Service) PlaceBid(ctx context.Context, cmd PlaceBidCommand) error {
	if cmd.AuctionID == "" || !validAmount(cmd.Amount) {
		return ErrInvalidParams
	}

	err := s.index.WithAuction(cmd.AuctionID, func(v *index.View) error {
		if admitErr := AdmitBid(cmd.AuctionID, cmd.Amount, v.Auction(), v.CurrentPrice()); admitErr != nil {
			return admitErr
		}
		rec := index.BidRecord{
			AuctionID: cmd.AuctionID,
			Amount:    cmd.Amount,
			UserName:  cmd.Bidder,
			Signature: cmd.Signature,
			PublicKey: cmd.PublicKey,
		}
		body, marshalErr := json.Marshal(rec)
		if marshalErr != nil {
			return fmt.Errorf("marshal bid record: %w", marshalErr)
		}
		if _, appendErr := s.log.Append(ctx, eventlog.BidTopic(cmd.AuctionID), uuid.NewString(), body); appendErr != nil {
			return fmt.Errorf("append bid record: %w", appendErr)
		}
		v.RecordBid(cmd.Amount, cmd.Bidder)
		return nil
	})
	if errors.Is(err, index.ErrNotFound) {
		return ErrUnknownAuction
	}
	if err != nil {
		return err
	}

	s.broadcast(ctx, EventBidPlaced, bidEvent{AuctionID: cmd.AuctionID, Amount: cmd.Amount, UserName: cmd.Bidder})
	return nil
}

// FinalizeAuction closes the auction, capturing winner name and price from
// the current-price projection at the moment of closure. The closed flag
// transitions false to true at most once.
func (s *Service) FinalizeAuction(ctx context.Context, cmd FinalizeAuctionCommand) (FinalizeResult, error) {
	if cmd.AuctionID == "" {
		return FinalizeResult{}, ErrInvalidParams
	}

	var res FinalizeResult
	err := s.index.WithAuction(cmd.AuctionID, func(v *index.View) error {
		a := v.Auction()
		if cmd.OwnerName != a.OwnerName {
			return ErrOnlyOwnerCanFinalize
		}
		if a.Closed {
			return ErrAuctionClosed
		}
		if cur := v.CurrentPrice(); cur != nil {
			res = FinalizeResult{WinnerName: cur.Bidder, WinnerPrice: cur.Amount}
		}
		rec := index.AuctionRecord{
			Name:        a.Name,
			MinPrice:    a.MinPrice,
			UserName:    a.OwnerName,
			Closed:      true,
			WinnerName:  res.WinnerName,
			WinnerPrice: res.WinnerPrice,
			Signature:   cmd.Signature,
			PublicKey:   cmd.PublicKey,
		}
		body, marshalErr := json.Marshal(rec)
		if marshalErr != nil {
			return fmt.Errorf("marshal closure record: %w", marshalErr)
		}
		if _, appendErr := s.log.Append(ctx, eventlog.TopicAuctions, cmd.AuctionID, body); appendErr != nil {
			return fmt.Errorf("append closure record: %w", appendErr)
		}
		v.Close(res.WinnerName, res.WinnerPrice)
		return nil
	})
	if errors.Is(err, index.ErrNotFound) {
		return FinalizeResult{}, ErrUnknownAuction
	}
	if err != nil {
		return FinalizeResult{}, err
	}

	s.broadcast(ctx, EventAuctionFinalized, finalizeEvent{AuctionID: cmd.AuctionID, WinnerName: res.WinnerName, WinnerPrice: res.WinnerPrice})
	return res, nil
}

// Subscribe persists a subscriber endpoint. The registry observes the append
// through its own replay of the subscribers topic.
func (s *Service) Subscribe(ctx context.Context, endpoint string) error {
	if endpoint == "" {
		return ErrInvalidParams
	}
	if _, err := s.log.Append(ctx, eventlog.TopicSubscribers, uuid.NewString(), []byte(endpoint)); err != nil {
		return fmt.Errorf("append subscriber record: %w", err)
	}
	return nil
}

// AuctionData returns the read-only index snapshot. No side effects.
func (s *Service) AuctionData() []index.Summary {
	return s.index.Snapshot()
}

type auctionEvent struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	MinPrice float64 `json:"minPrice"`
	UserName string  `json:"userName"`
}

type bidEvent struct {
	AuctionID string  `json:"auctionId"`
	Amount    float64 `json:"amount"`
	UserName  string  `json:"userName"`
}

type finalizeEvent struct {
	AuctionID   string  `json:"auctionId"`
	WinnerName  string  `json:"winnerName"`
	WinnerPrice float64 `json:"winnerPrice"`
}

func (s *Service) broadcast(ctx context.Context, event string, data any) {
	if s.notifier == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal event payload", "event", event, "error", err)
		return
	}
	// Fanout must never fail or stall the originating command.
	s.notifier.Notify(context.WithoutCancel(ctx), event, payload)
}
