package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	redisChannelPrefix = "wemake:feed:"
	redisPingInterval  = 15 * time.Second
)

// RedisFeed carries events over Redis PUBLISH/SUBSCRIBE so every server
// instance sees every insert.
type RedisFeed struct {
	client *redis.Client
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
	subs   map[*subscription]struct{}
}

var _ Feed = (*RedisFeed)(nil)

// NewRedisFeed creates a feed on an existing client. The client is not
// closed by the feed.
func NewRedisFeed(client *redis.Client, logger zerolog.Logger) *RedisFeed {
	return &RedisFeed{
		client: client,
		logger: logger,
		subs:   make(map[*subscription]struct{}),
	}
}

func (f *RedisFeed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Publish sends e to channel.
func (f *RedisFeed) Publish(ctx context.Context, channel string, e Event) error {
	if f.isClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	err = f.client.Publish(ctx, redisChannelPrefix+channel, data).Err()
	observePublish("redis", err)
	if err != nil {
		return fmt.Errorf("realtime: redis publish: %w", err)
	}
	return nil
}

// Subscribe listens on channel until Unsubscribe, Close or the first error
// on the pubsub connection. A lost connection ends the subscription; it is
// not resubscribed.
func (f *RedisFeed) Subscribe(ctx context.Context, channel string, filter Filter, h Handler) (Subscription, error) {
	if f.isClosed() {
		return nil, ErrClosed
	}

	ps := f.client.Subscribe(ctx, redisChannelPrefix+channel)

	// Wait for the subscription confirmation so no publish is missed after
	// Subscribe returns.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("realtime: redis subscribe: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	var sub *subscription
	sub = newSubscription(filter, h, func() {
		cancel()
		_ = ps.Close()
		f.mu.Lock()
		delete(f.subs, sub)
		f.mu.Unlock()
	})

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		sub.end()
		return nil, ErrClosed
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	go f.receive(readCtx, channel, ps, sub)
	return sub, nil
}

// receive reads from ps until it fails. Read timeouts trigger a ping so a
// half-open connection is noticed.
func (f *RedisFeed) receive(ctx context.Context, channel string, ps *redis.PubSub, sub *subscription) {
	defer sub.end()

	for {
		msg, err := ps.ReceiveTimeout(ctx, redisPingInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if isTimeout(err) {
				if err := ps.Ping(ctx); err != nil {
					f.logger.Warn().Err(err).Str("channel", channel).Msg("redis pubsub ping failed")
					return
				}
				continue
			}
			f.logger.Warn().Err(err).Str("channel", channel).Msg("redis pubsub connection lost")
			return
		}

		switch m := msg.(type) {
		case *redis.Message:
			var e Event
			if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
				f.logger.Warn().Err(err).Str("channel", channel).Msg("dropping malformed event")
				continue
			}
			sub.deliver(e)
		case *redis.Subscription:
			if m.Kind == "unsubscribe" {
				return
			}
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Close stops new publishes and subscriptions and ends the live ones.
func (f *RedisFeed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	targets := make([]*subscription, 0, len(f.subs))
	for s := range f.subs {
		targets = append(targets, s)
	}
	f.mu.Unlock()

	for _, s := range targets {
		s.end()
	}
	return nil
}
