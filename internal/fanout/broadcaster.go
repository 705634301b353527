package fanout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultDeliveryTimeout = 5 * time.Second

// Envelope is the JSON body pushed to each subscriber endpoint.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Broadcaster pushes event envelopes to every registered subscriber over
// HTTP. Delivery is at-most-once per subscriber per event: failures are
// logged and dropped, and one slow or dead subscriber never blocks the
// others or the originating command.
type Broadcaster struct {
	registry *Registry
	client   *http.Client
	logger   *slog.Logger
	limit    int
}

// NewBroadcaster creates a broadcaster with at most limit concurrent
// deliveries per event.
func NewBroadcaster(registry *Registry, limit int, logger *slog.Logger) *Broadcaster {
	if limit <= 0 {
		limit = 8
	}
	return &Broadcaster{
		registry: registry,
		client:   &http.Client{Timeout: defaultDeliveryTimeout},
		logger:   logger,
		limit:    limit,
	}
}

// Notify broadcasts the event to all currently registered subscribers and
// returns immediately. Implements auction.Notifier.
func (b *Broadcaster) Notify(ctx context.Context, event string, payload []byte) {
	endpoints := b.registry.Endpoints()
	if len(endpoints) == 0 {
		return
	}
	body, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		b.logger.Error("failed to marshal event envelope", "event", event, "error", err)
		return
	}

	go func() {
		g := new(errgroup.Group)
		g.SetLimit(b.limit)
		for _, endpoint := range endpoints {
			g.Go(func() error {
				if err := b.deliver(ctx, endpoint, body); err != nil {
					// Isolated per-subscriber failure. Never propagated.
					b.logger.Warn("event delivery failed", "event", event, "endpoint", endpoint, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (b *Broadcaster) deliver(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("subscriber returned status %d", resp.StatusCode)
	}
	return nil
}
