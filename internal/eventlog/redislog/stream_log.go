// Package redislog implements the event log over Redis Streams. Each topic
// is one stream; history and live tail compose naturally by carrying the
// last-seen stream id through blocking XREAD calls starting from "0".
package redislog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openoutcry/crier/internal/eventlog"
)

const (
	readBatch    = 128
	readBlock    = 5 * time.Second
	retryBackoff = time.Second
)

// StreamLog is a Redis Streams backed eventlog.Log.
type StreamLog struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// New creates a stream log. prefix namespaces the streams of one deployment.
func New(client *redis.Client, prefix string, logger *slog.Logger) *StreamLog {
	return &StreamLog{client: client, prefix: prefix, logger: logger}
}

func (l *StreamLog) stream(topic string) string {
	return l.prefix + ":" + topic
}

// Append adds an entry to the topic's stream and returns its stream id.
func (l *StreamLog) Append(ctx context.Context, topic, key string, value []byte) (string, error) {
	return l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream(topic),
		Values: map[string]any{"key": key, "value": value},
	}).Result()
}

// Stream reads the topic from id "0", delivering history first and then
// blocking on the live tail. The returned channel closes when ctx ends.
func (l *StreamLog) Stream(ctx context.Context, topic string) (<-chan eventlog.Entry, error) {
	out := make(chan eventlog.Entry)
	go func() {
		defer close(out)
		lastID := "0"
		for {
			if ctx.Err() != nil {
				return
			}
			res, err := l.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{l.stream(topic), lastID},
				Count:   readBatch,
				Block:   readBlock,
			}).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Warn("stream read failed, retrying", "topic", topic, "error", err)
				select {
				case <-time.After(retryBackoff):
				case <-ctx.Done():
					return
				}
				continue
			}
			for _, s := range res {
				for _, m := range s.Messages {
					lastID = m.ID
					e, ok := entryFromMessage(topic, m)
					if !ok {
						continue
					}
					select {
					case out <- e:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

// Close closes the underlying client.
func (l *StreamLog) Close() error {
	return l.client.Close()
}

func entryFromMessage(topic string, m redis.XMessage) (eventlog.Entry, bool) {
	key, _ := m.Values["key"].(string)
	value, _ := m.Values["value"].(string)
	if key == "" {
		return eventlog.Entry{}, false
	}
	return eventlog.Entry{
		Topic: topic,
		Key:   key,
		ID:    m.ID,
		Value: []byte(value),
	}, true
}
