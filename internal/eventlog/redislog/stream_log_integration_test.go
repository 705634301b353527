//go:build integration

package redislog_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openoutcry/crier/internal/eventlog"
	"github.com/openoutcry/crier/internal/eventlog/redislog"
	"github.com/openoutcry/crier/internal/testhelpers"
)

func recvEntry(t *testing.T, ch <-chan eventlog.Entry) eventlog.Entry {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "stream closed unexpectedly")
		return e
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for entry")
		return eventlog.Entry{}
	}
}

func TestStreamLogIntegration(t *testing.T) {
	client := testhelpers.StartRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := redislog.New(client, "crier-test", logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("stream delivers history then live tail in order", func(t *testing.T) {
		_, err := l.Append(ctx, "auctions", "a1", []byte(`{"name":"Vase"}`))
		require.NoError(t, err)
		_, err = l.Append(ctx, "auctions", "a2", []byte(`{"name":"Clock"}`))
		require.NoError(t, err)

		ch, err := l.Stream(ctx, "auctions")
		require.NoError(t, err)

		first := recvEntry(t, ch)
		assert.Equal(t, "a1", first.Key)
		assert.Equal(t, []byte(`{"name":"Vase"}`), first.Value)
		assert.Equal(t, "a2", recvEntry(t, ch).Key)

		_, err = l.Append(ctx, "auctions", "a3", []byte(`{"name":"Lamp"}`))
		require.NoError(t, err)
		assert.Equal(t, "a3", recvEntry(t, ch).Key)
	})

	t.Run("independent streams each get full history", func(t *testing.T) {
		_, err := l.Append(ctx, "bids", "b1", []byte("60"))
		require.NoError(t, err)

		first, err := l.Stream(ctx, "bids")
		require.NoError(t, err)
		second, err := l.Stream(ctx, "bids")
		require.NoError(t, err)

		assert.Equal(t, "b1", recvEntry(t, first).Key)
		assert.Equal(t, "b1", recvEntry(t, second).Key)
	})

	t.Run("topics are isolated", func(t *testing.T) {
		_, err := l.Append(ctx, "left", "l1", []byte("x"))
		require.NoError(t, err)
		_, err = l.Append(ctx, "right", "r1", []byte("y"))
		require.NoError(t, err)

		ch, err := l.Stream(ctx, "left")
		require.NoError(t, err)
		assert.Equal(t, "l1", recvEntry(t, ch).Key)

		select {
		case e := <-ch:
			t.Fatalf("unexpected entry %q on topic left", e.Key)
		case <-time.After(500 * time.Millisecond):
		}
	})

	t.Run("cancel closes the stream", func(t *testing.T) {
		streamCtx, streamCancel := context.WithCancel(ctx)
		ch, err := l.Stream(streamCtx, "auctions")
		require.NoError(t, err)
		streamCancel()

		require.Eventually(t, func() bool {
			for {
				select {
				case _, ok := <-ch:
					if !ok {
						return true
					}
				default:
					return false
				}
			}
		}, 10*time.Second, 50*time.Millisecond)
	})
}
