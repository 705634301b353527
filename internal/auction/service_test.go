package auction

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openoutcry/crier/internal/eventlog"
	"github.com/openoutcry/crier/internal/index"
)

type captureNotifier struct {
	mu     sync.Mutex
	events []string
}

func (c *captureNotifier) Notify(_ context.Context, event string, _ []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureNotifier) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *index.Index, eventlog.Log, *captureNotifier) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := eventlog.NewMemoryLog()
	ix := index.New(log, testLogger())
	require.NoError(t, ix.Start(ctx))
	notifier := &captureNotifier{}
	return NewService(log, ix, notifier, testLogger()), ix, log, notifier
}

func TestService_CreateAuction(t *testing.T) {
	svc, _, _, notifier := newTestService(t)
	ctx := context.Background()

	id, err := svc.CreateAuction(ctx, CreateAuctionCommand{Name: "Vase", MinPrice: 50, OwnerName: "alice"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	snap := svc.AuctionData()
	require.Len(t, snap, 1)
	assert.Equal(t, "Vase", snap[0].Name)
	assert.Equal(t, float64(50), snap[0].MinPrice)
	assert.Equal(t, "alice", snap[0].OwnerName)
	assert.Equal(t, []string{EventAuctionCreated}, notifier.Events())
}

func TestService_CreateAuctionWithoutName(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.CreateAuction(context.Background(), CreateAuctionCommand{MinPrice: 50, OwnerName: "alice"})
	assert.ErrorIs(t, err, ErrNoAuctionName)
}

func TestService_PlaceBidValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	err := svc.PlaceBid(ctx, PlaceBidCommand{Amount: 10, Bidder: "bob"})
	assert.ErrorIs(t, err, ErrInvalidParams)

	err = svc.PlaceBid(ctx, PlaceBidCommand{AuctionID: "a1", Amount: 0, Bidder: "bob"})
	assert.ErrorIs(t, err, ErrInvalidParams)

	err = svc.PlaceBid(ctx, PlaceBidCommand{AuctionID: "missing", Amount: 10, Bidder: "bob"})
	assert.ErrorIs(t, err, ErrUnknownAuction)
}

func TestService_BidThresholds(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.CreateAuction(ctx, CreateAuctionCommand{Name: "Clock", MinPrice: 100, OwnerName: "alice"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.PlaceBid(ctx, PlaceBidCommand{AuctionID: id, Amount: 100, Bidder: "bob"}), ErrBidTooLow)
	assert.NoError(t, svc.PlaceBid(ctx, PlaceBidCommand{AuctionID: id, Amount: 101, Bidder: "bob"}))
	assert.ErrorIs(t, svc.PlaceBid(ctx, PlaceBidCommand{AuctionID: id, Amount: 101, Bidder: "carol"}), ErrBidTooLow)
	assert.NoError(t, svc.PlaceBid(ctx, PlaceBidCommand{AuctionID: id, Amount: 150, Bidder: "carol"}))

	snap := svc.AuctionData()
	require.NotNil(t, snap[0].CurrentPrice)
	assert.Equal(t, float64(150), snap[0].CurrentPrice.Amount)
	assert.Equal(t, "carol", snap[0].CurrentPrice.Bidder)
}

// The scenario from the command catalog: create, underbid, bid, tie, outbid,
// finalize, finalize again.
func TestService_VaseScenario(t *testing.T) {
	svc, _, _, notifier := newTestService(t)
	ctx := context.Background()

	id, err := svc.CreateAuction(ctx, CreateAuctionCommand{Name: "Vase", MinPrice: 50, OwnerName: "alice"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.PlaceBid(ctx, PlaceBidCommand{AuctionID: id, Amount: 40, Bidder: "bob"}), ErrBidTooLow)
	assert.NoError(t, svc.PlaceBid(ctx, PlaceBidCommand{AuctionID: id, Amount: 60, Bidder: "carol"}))

	snap := svc.AuctionData()
	require.NotNil(t, snap[0].CurrentPrice)
	assert.Equal(t, float64(60), snap[0].CurrentPrice.Amount)

	assert.ErrorIs(t, svc.PlaceBid(ctx, PlaceBidCommand{AuctionID: id, Amount: 60, Bidder: "dave"}), ErrBidTooLow)
	assert.NoError(t, svc.PlaceBid(ctx, PlaceBidCommand{AuctionID: id, Amount: 75, Bidder: "bob"}))

	res, err := svc.FinalizeAuction(ctx, FinalizeAuctionCommand{AuctionID: id, OwnerName: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "bob", res.WinnerName)
	assert.Equal(t, float64(75), res.WinnerPrice)

	_, err = svc.FinalizeAuction(ctx, FinalizeAuctionCommand{AuctionID: id, OwnerName: "alice"})
	assert.ErrorIs(t, err, ErrAuctionClosed)

	assert.ErrorIs(t, svc.PlaceBid(ctx, PlaceBidCommand{AuctionID: id, Amount: 500, Bidder: "dave"}), ErrAuctionClosed)

	assert.Equal(t, []string{
		EventAuctionCreated,
		EventBidPlaced,
		EventBidPlaced,
		EventAuctionFinalized,
	}, notifier.Events())
}

func TestService_FinalizeByNonOwnerLeavesStateUnchanged(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.CreateAuction(ctx, CreateAuctionCommand{Name: "Vase", MinPrice: 50, OwnerName: "alice"})
	require.NoError(t, err)
	require.NoError(t, svc.PlaceBid(ctx, PlaceBidCommand{AuctionID: id, Amount: 60, Bidder: "bob"}))

	_, err = svc.FinalizeAuction(ctx, FinalizeAuctionCommand{AuctionID: id, OwnerName: "eve"})
	assert.ErrorIs(t, err, ErrOnlyOwnerCanFinalize)

	snap := svc.AuctionData()
	assert.False(t, snap[0].Closed)

	// Bidding still works after the rejected finalize.
	assert.NoError(t, svc.PlaceBid(ctx, PlaceBidCommand{AuctionID: id, Amount: 70, Bidder: "carol"}))
}

func TestService_FinalizeUnknownAuction(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.FinalizeAuction(context.Background(), FinalizeAuctionCommand{AuctionID: "missing", OwnerName: "alice"})
	assert.ErrorIs(t, err, ErrUnknownAuction)
}

func TestService_FinalizeWithNoBids(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.CreateAuction(ctx, CreateAuctionCommand{Name: "Vase", MinPrice: 50, OwnerName: "alice"})
	require.NoError(t, err)

	res, err := svc.FinalizeAuction(ctx, FinalizeAuctionCommand{AuctionID: id, OwnerName: "alice"})
	require.NoError(t, err)
	assert.Empty(t, res.WinnerName)
	assert.Zero(t, res.WinnerPrice)

	snap := svc.AuctionData()
	assert.True(t, snap[0].Closed)
}

// Two concurrent bids of 60 and 61 on the same fresh auction must resolve to
// a final price of 61 regardless of arrival order. The 61 bid is always
// accepted; the 60 bid is accepted only if it arrived first.
func TestService_ConcurrentBidsResolveToHighest(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		svc, _, _, _ := newTestService(t)
		id, err := svc.CreateAuction(ctx, CreateAuctionCommand{Name: "Vase", MinPrice: 50, OwnerName: "alice"})
		require.NoError(t, err)

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			err60 error
			err61 error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			err60 = svc.PlaceBid(ctx, PlaceBidCommand{AuctionID: id, Amount: 60, Bidder: "bob"})
		}()
		go func() {
			defer wg.Done()
			<-start
			err61 = svc.PlaceBid(ctx, PlaceBidCommand{AuctionID: id, Amount: 61, Bidder: "carol"})
		}()
		close(start)
		wg.Wait()

		require.NoError(t, err61, "the higher bid must always be accepted")
		if err60 != nil {
			assert.ErrorIs(t, err60, ErrBidTooLow)
		}

		snap := svc.AuctionData()
		require.NotNil(t, snap[0].CurrentPrice)
		assert.Equal(t, float64(61), snap[0].CurrentPrice.Amount)
		assert.Equal(t, "carol", snap[0].CurrentPrice.Bidder)
	}
}

// Commands issued through the dispatcher must be reproducible by an
// independent replay of the same log.
func TestService_WritesAreReplayable(t *testing.T) {
	svc, ix, log, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.CreateAuction(ctx, CreateAuctionCommand{Name: "Vase", MinPrice: 50, OwnerName: "alice"})
	require.NoError(t, err)
	require.NoError(t, svc.PlaceBid(ctx, PlaceBidCommand{AuctionID: id, Amount: 60, Bidder: "bob"}))
	require.NoError(t, svc.PlaceBid(ctx, PlaceBidCommand{AuctionID: id, Amount: 75, Bidder: "carol"}))
	_, err = svc.FinalizeAuction(ctx, FinalizeAuctionCommand{AuctionID: id, OwnerName: "alice"})
	require.NoError(t, err)

	replayCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	replayed := index.New(log, testLogger())
	require.NoError(t, replayed.Start(replayCtx))

	require.Eventually(t, func() bool {
		snap := replayed.Snapshot()
		return len(snap) == 1 && snap[0].Closed && snap[0].CurrentPrice != nil
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, ix.Snapshot(), replayed.Snapshot())
}

func TestService_SubscribePersistsEndpoint(t *testing.T) {
	svc, _, log, _ := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Subscribe(ctx, ""), ErrInvalidParams)
	require.NoError(t, svc.Subscribe(ctx, "http://127.0.0.1:9090/"))

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	entries, err := log.Stream(streamCtx, eventlog.TopicSubscribers)
	require.NoError(t, err)

	select {
	case e := <-entries:
		assert.Equal(t, "http://127.0.0.1:9090/", string(e.Value))
	case <-time.After(time.Second):
		t.Fatal("subscriber record not appended")
	}
}

func TestCombineNotifiers(t *testing.T) {
	first := &captureNotifier{}
	second := &captureNotifier{}
	n := CombineNotifiers(first, second)
	n.Notify(context.Background(), "createBid", []byte(`{}`))

	assert.Equal(t, []string{"createBid"}, first.Events())
	assert.Equal(t, []string{"createBid"}, second.Events())
}
