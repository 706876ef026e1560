// NATS binding of Transport, grounded on the teacher's
// internal/events/subscriber.go: graceful degradation to a disabled
// transport when no URL is configured or the initial connect fails,
// structured nats.Option handlers for reconnect/disconnect/error logging,
// and subject-based Subscribe-with-closures feeding a channel.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/fieldmesh/iiotgw/internal/node"
)

// NATSConfig configures the NATS-backed Transport.
type NATSConfig struct {
	URL      string
	User     string
	Password string
}

type received struct {
	pipe node.Pipe
	msg  Message
}

// NATSTransport binds pipes to NATS subjects: Send is Publish, Recv drains
// a channel fed by per-pipe subscriptions. If cfg.URL is empty or the
// initial connect fails, the transport degrades to "disabled" rather than
// erroring the whole process, mirroring NewSubscriber's
// NATS_URL-unconfigured fallback.
type NATSTransport struct {
	conn    *nats.Conn
	enabled bool
	logger  zerolog.Logger

	mu   sync.Mutex
	subs map[node.Pipe]*nats.Subscription
	msgs chan received
}

// NewNATSTransport connects to NATS per cfg, or returns a disabled
// transport if cfg.URL is empty or the connection attempt fails.
func NewNATSTransport(cfg NATSConfig, logger zerolog.Logger) (*NATSTransport, error) {
	t := &NATSTransport{
		logger: logger,
		subs:   make(map[node.Pipe]*nats.Subscription),
		msgs:   make(chan received, 256),
	}

	if cfg.URL == "" {
		logger.Warn().Msg("transport: NATS URL not configured, running disabled")
		return t, nil
	}

	opts := []nats.Option{
		nats.Name("iiotgw"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("transport: disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("transport: reconnected to NATS")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Warn().Err(err).Msg("transport: NATS error")
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		logger.Warn().Err(err).Str("url", cfg.URL).Msg("transport: failed to connect to NATS, running disabled")
		return t, nil
	}

	logger.Info().Str("url", conn.ConnectedUrl()).Msg("transport: connected to NATS")
	t.conn = conn
	t.enabled = true
	return t, nil
}

// IsEnabled reports whether the transport is backed by a live connection.
func (t *NATSTransport) IsEnabled() bool { return t.enabled }

// RegisterPipe subscribes to pipe's subject so Recv can surface messages
// sent to it. Nodes call this once, at Adapter creation.
func (t *NATSTransport) RegisterPipe(pipe node.Pipe) error {
	if !t.enabled {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.subs[pipe]; exists {
		return nil
	}
	sub, err := t.conn.Subscribe(string(pipe), func(m *nats.Msg) {
		var msg Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			t.logger.Warn().Err(err).Str("pipe", string(pipe)).Msg("transport: failed to decode message")
			return
		}
		t.msgs <- received{pipe: pipe, msg: msg}
	})
	if err != nil {
		return fmt.Errorf("transport: subscribe %s: %w", pipe, err)
	}
	t.subs[pipe] = sub
	return nil
}

func (t *NATSTransport) Send(pipe node.Pipe, msg Message) error {
	if !t.enabled {
		return fmt.Errorf("transport: disabled, cannot send to %s", pipe)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: marshal message: %w", err)
	}
	if err := t.conn.Publish(string(pipe), data); err != nil {
		return fmt.Errorf("transport: publish to %s: %w", pipe, err)
	}
	return nil
}

func (t *NATSTransport) Recv(ctx context.Context) (node.Pipe, Message, error) {
	select {
	case r := <-t.msgs:
		return r.pipe, r.msg, nil
	case <-ctx.Done():
		return "", Message{}, ctx.Err()
	}
}

func (t *NATSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, sub := range t.subs {
		sub.Unsubscribe()
	}
	if t.conn != nil {
		t.conn.Drain()
		t.conn.Close()
	}
	return nil
}
