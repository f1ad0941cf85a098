package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/David-Byun/wemake/internal/models"
)

// State is the lifecycle state of a View's subscription.
type State int

const (
	StateInactive State = iota
	StateActive
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "inactive"
	}
}

const (
	defaultMinBackoff = 100 * time.Millisecond
	defaultMaxBackoff = 5 * time.Second
)

// ErrViewOpen is returned by Open on a view that is already open.
var ErrViewOpen = errors.New("realtime: view already open")

// View holds the ordered messages of one open conversation and keeps them in
// step with INSERT events on the conversation's channel. New messages are
// appended in arrival order and never re-sorted.
type View struct {
	feed           Feed
	channel        string
	conversationID int64
	logger         zerolog.Logger
	minBackoff     time.Duration
	maxBackoff     time.Duration

	mu       sync.Mutex
	state    State
	gen      uint64
	messages []models.Message
	sub      Subscription
	cancel   context.CancelFunc
	changed  chan struct{}
}

// ViewOption configures a View.
type ViewOption func(*View)

// WithLogger sets the logger used for reconnect attempts.
func WithLogger(logger zerolog.Logger) ViewOption {
	return func(v *View) { v.logger = logger }
}

// WithBackoff overrides the reconnect delay bounds.
func WithBackoff(min, max time.Duration) ViewOption {
	return func(v *View) {
		v.minBackoff = min
		v.maxBackoff = max
	}
}

// NewView creates an inactive view seeded with the initially fetched messages.
func NewView(feed Feed, channel string, conversationID int64, initial []models.Message, opts ...ViewOption) *View {
	v := &View{
		feed:           feed,
		channel:        channel,
		conversationID: conversationID,
		logger:         zerolog.Nop(),
		minBackoff:     defaultMinBackoff,
		maxBackoff:     defaultMaxBackoff,
		messages:       append([]models.Message(nil), initial...),
		changed:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Open subscribes the view to its channel and makes it active.
func (v *View) Open(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateInactive {
		return ErrViewOpen
	}

	v.gen++
	gen := v.gen

	sub, err := v.feed.Subscribe(ctx, v.channel, Filter{Type: EventInsert, Table: TableMessages}, v.handler(gen))
	if err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	v.sub = sub
	v.cancel = cancel
	v.setState(StateActive)

	go v.watch(watchCtx, gen, sub)
	return nil
}

// Close unsubscribes and makes the view inactive. Events that arrive after
// Close returns do not change the view. Close is safe to call on an inactive view.
func (v *View) Close() {
	v.mu.Lock()
	if v.state == StateInactive {
		v.mu.Unlock()
		return
	}
	v.setState(StateInactive)
	sub, cancel := v.sub, v.cancel
	v.sub, v.cancel = nil, nil
	v.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Unsubscribe()
	}
}

// State returns the current subscription state.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Changed returns a channel that is closed on the next message append or
// state change.
func (v *View) Changed() <-chan struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.changed
}

// Messages returns a copy of the held messages.
func (v *View) Messages() []models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.Message(nil), v.messages...)
}

// Len returns the number of held messages.
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.messages)
}

// setState must be called with v.mu held.
func (v *View) setState(s State) {
	v.state = s
	v.notify()
}

// notify must be called with v.mu held.
func (v *View) notify() {
	close(v.changed)
	v.changed = make(chan struct{})
}

func (v *View) handler(gen uint64) Handler {
	return func(e Event) {
		var msg models.Message
		if err := json.Unmarshal(e.Record, &msg); err != nil {
			v.logger.Warn().Err(err).Str("event", e.ID).Msg("ignoring undecodable message event")
			return
		}
		if msg.ConversationID != v.conversationID {
			return
		}

		v.mu.Lock()
		defer v.mu.Unlock()
		if v.gen != gen || v.state == StateInactive {
			return
		}
		v.messages = append(v.messages, msg)
		v.notify()
	}
}

// watch resubscribes whenever the current subscription ends while the view
// is still open.
func (v *View) watch(ctx context.Context, gen uint64, sub Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
		}

		v.mu.Lock()
		if v.gen != gen || v.state == StateInactive {
			v.mu.Unlock()
			return
		}
		v.setState(StateReconnecting)
		v.sub = nil
		v.mu.Unlock()

		next := v.resubscribe(ctx, gen)
		if next == nil {
			return
		}

		v.mu.Lock()
		if v.gen != gen || v.state == StateInactive {
			v.mu.Unlock()
			next.Unsubscribe()
			return
		}
		v.sub = next
		v.setState(StateActive)
		v.mu.Unlock()

		sub = next
	}
}

// resubscribe retries with exponential backoff until it succeeds or ctx ends.
func (v *View) resubscribe(ctx context.Context, gen uint64) Subscription {
	b := backoff.WithContext(newBackOff(v.minBackoff, v.maxBackoff), ctx)
	for attempt := 1; ; attempt++ {
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return nil
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		sub, err := v.feed.Subscribe(ctx, v.channel, Filter{Type: EventInsert, Table: TableMessages}, v.handler(gen))
		if err == nil {
			v.logger.Info().Str("channel", v.channel).Int("attempt", attempt).Msg("realtime subscription restored")
			return sub
		}
		if ctx.Err() != nil {
			return nil
		}

		v.logger.Warn().Err(err).Str("channel", v.channel).Int("attempt", attempt).Dur("waited", delay).Msg("realtime resubscribe failed")
	}
}

// newBackOff doubles from initial up to max and never gives up.
func newBackOff(initial, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
