// Package realtime delivers row change events for conversations to open views.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/David-Byun/wemake/internal/metrics"
)

// EventType is the kind of row change an Event describes.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// TableMessages is the table name carried by message events.
const TableMessages = "messages"

// ErrClosed is returned when publishing to or subscribing on a closed feed.
var ErrClosed = errors.New("realtime: feed closed")

// Event is a row-level change notification. Record holds the changed row as
// stored; it never carries joined data such as sender names.
type Event struct {
	ID     string          `json:"id"`
	Type   EventType       `json:"type"`
	Table  string          `json:"table"`
	Record json.RawMessage `json:"record"`
}

// NewEvent builds an Event with a fresh ULID for record.
func NewEvent(typ EventType, table string, record any) (Event, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return Event{}, fmt.Errorf("realtime: encode record: %w", err)
	}
	return Event{
		ID:     ulid.Make().String(),
		Type:   typ,
		Table:  table,
		Record: raw,
	}, nil
}

// Filter selects events by type and table. Empty fields match anything.
type Filter struct {
	Type  EventType
	Table string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Event) bool {
	if f.Type != "" && f.Type != e.Type {
		return false
	}
	if f.Table != "" && f.Table != e.Table {
		return false
	}
	return true
}

// Handler receives events for a subscription.
type Handler func(Event)

// Subscription is a live registration on a channel.
type Subscription interface {
	// Unsubscribe stops delivery. It is safe to call more than once.
	Unsubscribe()
	// Done is closed once the subscription has ended, either through
	// Unsubscribe or because the transport dropped it.
	Done() <-chan struct{}
}

// Feed is a publish/subscribe change feed keyed by channel name.
type Feed interface {
	Publish(ctx context.Context, channel string, e Event) error
	Subscribe(ctx context.Context, channel string, filter Filter, h Handler) (Subscription, error)
	Close() error
}

// RoomChannel names the channel shared by both participants of a direct
// conversation. The order of a and b does not matter.
func RoomChannel(a, b uuid.UUID) string {
	x, y := a.String(), b.String()
	if y < x {
		x, y = y, x
	}
	return "room:" + x + "-" + y
}

// subscription is the transport-independent half of a Subscription.
type subscription struct {
	filter  Filter
	handler Handler
	stop    func()

	once  sync.Once
	ended atomic.Bool
	done  chan struct{}
}

func newSubscription(filter Filter, h Handler, stop func()) *subscription {
	metrics.RealtimeSubscriptions.Inc()
	return &subscription{
		filter:  filter,
		handler: h,
		stop:    stop,
		done:    make(chan struct{}),
	}
}

func (s *subscription) deliver(e Event) {
	if s.ended.Load() || !s.filter.Match(e) {
		return
	}
	s.handler(e)
}

func (s *subscription) end() {
	s.once.Do(func() {
		s.ended.Store(true)
		if s.stop != nil {
			s.stop()
		}
		close(s.done)
		metrics.RealtimeSubscriptions.Dec()
	})
}

func (s *subscription) Unsubscribe() {
	s.end()
}

func (s *subscription) Done() <-chan struct{} {
	return s.done
}

func observePublish(backend string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.RealtimeEventsPublished.WithLabelValues(backend, result).Inc()
}
