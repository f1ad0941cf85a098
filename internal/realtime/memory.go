package realtime

import (
	"context"
	"sync"
)

// MemoryFeed is an in-process Feed. Publish delivers to every matching
// subscriber before it returns.
type MemoryFeed struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

var _ Feed = (*MemoryFeed)(nil)

// NewMemoryFeed creates an empty in-process feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[string]map[*subscription]struct{})}
}

// Publish delivers e to the current subscribers of channel.
func (f *MemoryFeed) Publish(ctx context.Context, channel string, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.RLock()
	if f.closed {
		f.mu.RUnlock()
		observePublish("memory", ErrClosed)
		return ErrClosed
	}
	targets := make([]*subscription, 0, len(f.subs[channel]))
	for s := range f.subs[channel] {
		targets = append(targets, s)
	}
	f.mu.RUnlock()

	for _, s := range targets {
		s.deliver(e)
	}
	observePublish("memory", nil)
	return nil
}

// Subscribe registers h on channel.
func (f *MemoryFeed) Subscribe(ctx context.Context, channel string, filter Filter, h Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrClosed
	}

	var sub *subscription
	sub = newSubscription(filter, h, func() { f.remove(channel, sub) })
	if f.subs[channel] == nil {
		f.subs[channel] = make(map[*subscription]struct{})
	}
	f.subs[channel][sub] = struct{}{}
	return sub, nil
}

func (f *MemoryFeed) remove(channel string, sub *subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.subs[channel], sub)
	if len(f.subs[channel]) == 0 {
		delete(f.subs, channel)
	}
}

// Subscribers returns the number of live subscriptions on channel.
func (f *MemoryFeed) Subscribers(channel string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[channel])
}

// Drop ends every subscription on channel as if the transport had lost them.
func (f *MemoryFeed) Drop(channel string) {
	f.mu.RLock()
	targets := make([]*subscription, 0, len(f.subs[channel]))
	for s := range f.subs[channel] {
		targets = append(targets, s)
	}
	f.mu.RUnlock()

	for _, s := range targets {
		s.end()
	}
}

// Close ends all subscriptions and rejects further use.
func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	var targets []*subscription
	for _, set := range f.subs {
		for s := range set {
			targets = append(targets, s)
		}
	}
	f.mu.Unlock()

	for _, s := range targets {
		s.end()
	}
	return nil
}
