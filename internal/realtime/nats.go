package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

const (
	natsSubjectPrefix = "wemake.feed."
	natsFlushTimeout  = 2 * time.Second
)

// NATSFeed carries events over NATS core subjects.
type NATSFeed struct {
	nc     *nats.Conn
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

var _ Feed = (*NATSFeed)(nil)

// NewNATSFeed connects to url. Subscriptions end when the connection closes.
func NewNATSFeed(url string, logger zerolog.Logger) (*NATSFeed, error) {
	f := &NATSFeed{
		logger: logger,
		subs:   make(map[*subscription]struct{}),
	}

	nc, err := nats.Connect(url,
		nats.Name("wemake"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			f.endAll()
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	f.nc = nc
	return f, nil
}

// Conn exposes the underlying connection.
func (f *NATSFeed) Conn() *nats.Conn {
	return f.nc
}

func natsSubject(channel string) string {
	return natsSubjectPrefix + channel
}

// Publish sends e to channel.
func (f *NATSFeed) Publish(ctx context.Context, channel string, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.nc.IsClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	err = f.nc.Publish(natsSubject(channel), data)
	observePublish("nats", err)
	if err != nil {
		return fmt.Errorf("failed to publish to subject '%s': %w", natsSubject(channel), err)
	}
	return nil
}

// Subscribe listens on channel. Messages for one subscription are handled
// one at a time in arrival order.
func (f *NATSFeed) Subscribe(ctx context.Context, channel string, filter Filter, h Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.nc.IsClosed() {
		return nil, ErrClosed
	}

	sub := newSubscription(filter, h, nil)
	ns, err := f.nc.Subscribe(natsSubject(channel), func(m *nats.Msg) {
		var e Event
		if err := json.Unmarshal(m.Data, &e); err != nil {
			f.logger.Warn().Err(err).Str("subject", m.Subject).Msg("dropping malformed event")
			return
		}
		sub.deliver(e)
	})
	if err != nil {
		sub.end()
		return nil, fmt.Errorf("failed to subscribe to subject '%s': %w", natsSubject(channel), err)
	}

	sub.stop = func() {
		_ = ns.Unsubscribe()
		f.mu.Lock()
		delete(f.subs, sub)
		f.mu.Unlock()
	}

	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	// Make sure the server has registered interest before returning.
	flushCtx, cancel := context.WithTimeout(ctx, natsFlushTimeout)
	defer cancel()
	if err := f.nc.FlushWithContext(flushCtx); err != nil {
		sub.end()
		return nil, fmt.Errorf("failed to flush subscription: %w", err)
	}
	return sub, nil
}

func (f *NATSFeed) endAll() {
	f.mu.Lock()
	targets := make([]*subscription, 0, len(f.subs))
	for s := range f.subs {
		targets = append(targets, s)
	}
	f.mu.Unlock()

	for _, s := range targets {
		s.end()
	}
}

// Close closes the connection, which ends every subscription.
func (f *NATSFeed) Close() error {
	if f.nc != nil {
		f.nc.Close()
	}
	return nil
}
