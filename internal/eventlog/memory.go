package eventlog

import (
	"context"
	"strconv"
	"sync"
)

// MemoryLog is a concurrency-safe in-memory Log. History snapshot and live
// subscription happen under the same lock, so a Stream never misses or
// duplicates an entry across the history/live boundary.
type MemoryLog struct {
	mu     sync.Mutex
	topics map[string][]Entry
	subs   map[string][]*memSub
	nextID uint64
	closed bool
}

type memSub struct {
	mu     sync.Mutex
	queue  []Entry
	notify chan struct{}
	done   bool
}

// NewMemoryLog creates an empty in-memory log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		topics: make(map[string][]Entry),
		subs:   make(map[string][]*memSub),
	}
}

// Append appends an entry and wakes every live subscriber of the topic.
func (l *MemoryLog) Append(_ context.Context, topic, key string, value []byte) (string, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return "", ErrClosed
	}
	l.nextID++
	e := Entry{
		Topic: topic,
		Key:   key,
		ID:    strconv.FormatUint(l.nextID, 10),
		Value: append([]byte(nil), value...),
	}
	l.topics[topic] = append(l.topics[topic], e)
	subs := append([]*memSub(nil), l.subs[topic]...)
	l.mu.Unlock()

	for _, s := range subs {
		s.push(e)
	}
	return e.ID, nil
}

// Stream returns a channel carrying the topic's history followed by its live
// tail. The channel is closed when ctx is cancelled or the log is closed.
func (l *MemoryLog) Stream(ctx context.Context, topic string) (<-chan Entry, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	s := &memSub{notify: make(chan struct{}, 1)}
	s.queue = append(s.queue, l.topics[topic]...)
	l.subs[topic] = append(l.subs[topic], s)
	l.mu.Unlock()

	out := make(chan Entry)
	go l.pump(ctx, topic, s, out)
	return out, nil
}

// Close shuts the log down and terminates all streams.
func (l *MemoryLog) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	var all []*memSub
	for _, subs := range l.subs {
		all = append(all, subs...)
	}
	l.subs = make(map[string][]*memSub)
	l.mu.Unlock()

	for _, s := range all {
		s.stop()
	}
	return nil
}

func (l *MemoryLog) pump(ctx context.Context, topic string, s *memSub, out chan<- Entry) {
	defer func() {
		l.unsubscribe(topic, s)
		close(out)
	}()
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		done := s.done
		s.mu.Unlock()

		for _, e := range batch {
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
		if done {
			return
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return
		}
	}
}

func (l *MemoryLog) unsubscribe(topic string, s *memSub) {
	l.mu.Lock()
	defer l.mu.Unlock()
	subs := l.subs[topic]
	for i, cur := range subs {
		if cur == s {
			l.subs[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (s *memSub) push(e Entry) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *memSub) stop() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
