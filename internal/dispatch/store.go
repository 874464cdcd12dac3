// Package dispatch implements the relay that stands between a parent page and
// a child context that cannot share memory: frames are appended to a named
// channel and long-polled from the other side. The relay holds no durable
// state; channels evaporate after their TTL.
package dispatch

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cassiomorais/framelink/internal/bus"
	"github.com/cassiomorais/framelink/internal/flowerr"
)

// Record is one stored frame with its position in the channel.
type Record struct {
	Cursor string    `json:"cursor"`
	Frame  bus.Frame `json:"frame"`
}

// Store is the relay's per-channel frame log. Read blocks until a record past
// the cursor exists or ctx is done; an expired or unknown channel reads as
// empty rather than failing, since the sending side may simply not have
// started yet.
type Store interface {
	Append(ctx context.Context, channelID string, frame bus.Frame) error
	Read(ctx context.Context, channelID, cursor string) ([]Record, error)
	Close() error
}

type mailbox struct {
	records []Record
	seq     int
	touched time.Time
	notify  chan struct{}
}

// memoryStore backs single-instance deployments and tests.
type memoryStore struct {
	mu       sync.Mutex
	channels map[string]*mailbox
	ttl      time.Duration
	clock    clockwork.Clock

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore builds an in-process store whose channels expire ttl after
// their last append or read.
func NewMemoryStore(ttl time.Duration, clock clockwork.Clock) Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &memoryStore{
		channels: make(map[string]*mailbox),
		ttl:      ttl,
		clock:    clock,
		done:     make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *memoryStore) Append(_ context.Context, channelID string, frame bus.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	box := s.box(channelID)
	box.seq++
	box.records = append(box.records, Record{
		Cursor: strconv.Itoa(box.seq),
		Frame:  frame,
	})
	box.touched = s.clock.Now()
	close(box.notify)
	box.notify = make(chan struct{})
	return nil
}

func (s *memoryStore) Read(ctx context.Context, channelID, cursor string) ([]Record, error) {
	after := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, flowerr.NewValidationError("cursor", "is not a position this channel issued")
		}
		after = n
	}

	for {
		s.mu.Lock()
		box := s.box(channelID)
		box.touched = s.clock.Now()
		pending := recordsAfter(box.records, after)
		notify := box.notify
		s.mu.Unlock()

		if len(pending) > 0 {
			return pending, nil
		}
		select {
		case <-notify:
		case <-ctx.Done():
			// A long poll that saw nothing is an empty answer, not an error.
			return nil, nil
		case <-s.done:
			return nil, nil
		}
	}
}

func (s *memoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// box returns the channel's mailbox, creating it on first touch. Caller holds
// the lock.
func (s *memoryStore) box(channelID string) *mailbox {
	box, ok := s.channels[channelID]
	if !ok {
		box = &mailbox{notify: make(chan struct{}), touched: s.clock.Now()}
		s.channels[channelID] = box
	}
	return box
}

func recordsAfter(records []Record, after int) []Record {
	for i, rec := range records {
		n, err := strconv.Atoi(rec.Cursor)
		if err != nil {
			continue
		}
		if n > after {
			out := make([]Record, len(records)-i)
			copy(out, records[i:])
			return out
		}
	}
	return nil
}

func (s *memoryStore) janitor() {
	for {
		select {
		case <-s.done:
			return
		case <-s.clock.After(s.ttl / 2):
		}
		deadline := s.clock.Now().Add(-s.ttl)
		s.mu.Lock()
		for id, box := range s.channels {
			if box.touched.Before(deadline) {
				close(box.notify)
				delete(s.channels, id)
			}
		}
		s.mu.Unlock()
	}
}
