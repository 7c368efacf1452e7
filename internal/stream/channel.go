package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"algodesk/internal/logging"
	"algodesk/internal/session"
)

// ChannelKind selects one of the backend's push channels.
type ChannelKind string

const (
	KindStrategy ChannelKind = "strategy"
	KindDemat    ChannelKind = "demat"
	KindMarket   ChannelKind = "market"
)

// ChannelOptions configures a Channel.
type ChannelOptions struct {
	Reconnect      bool
	ReconnectDelay time.Duration
	HandshakeTime  time.Duration
}

// Channel is a push-only WebSocket subscription keyed by a strategy or group
// id. At most one connection is open at a time: Switch closes the previous
// one before dialing the next.
type Channel struct {
	kind    ChannelKind
	baseURL string
	session *session.Session
	hub     *Hub
	opts    ChannelOptions
	dialer  *websocket.Dialer
	logger  zerolog.Logger

	mu     sync.Mutex
	key    string
	cancel context.CancelFunc
	done   chan struct{}

	// connMu guards conn, which the read loop replaces on reconnect.
	connMu sync.Mutex
	conn   *websocket.Conn
}

// NewChannel creates a channel of kind against wsURL (ws://host[:port]).
func NewChannel(kind ChannelKind, wsURL string, sess *session.Session, hub *Hub, opts ChannelOptions, logger zerolog.Logger) *Channel {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.HandshakeTime <= 0 {
		opts.HandshakeTime = 10 * time.Second
	}
	return &Channel{
		kind:    kind,
		baseURL: wsURL,
		session: sess,
		hub:     hub,
		opts:    opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTime,
		},
		logger: logger.With().Str("component", "channel").Str("channel", string(kind)).Logger(),
	}
}

// URL returns the endpoint for key.
func (c *Channel) URL(key string) string {
	q := url.Values{}
	q.Set("token", c.session.Token())
	switch c.kind {
	case KindStrategy:
		q.Set("strategy", key)
	case KindDemat:
		q.Set("group", key)
	}
	return fmt.Sprintf("%s/ws/%s?%s", c.baseURL, c.kind, q.Encode())
}

// Scope returns the view-state scope messages for key replace.
func (c *Channel) Scope(key string) string {
	switch c.kind {
	case KindStrategy:
		return StrategyScope(key)
	case KindDemat:
		return GroupScope(key)
	default:
		return ScopeMarket
	}
}

// Key returns the current subscription key.
func (c *Channel) Key() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// Switch closes the open connection, if any, and subscribes to key.
func (c *Channel) Switch(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()

	conn, err := c.dial(ctx, key)
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.key = key
	c.setConn(conn)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.readLoop(loopCtx, conn, key, c.done)

	c.logger.Info().Str("key", key).Msg("Channel subscribed")
	return nil
}

// Close closes the connection.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *Channel) closeLocked() {
	if c.cancel == nil {
		return
	}
	c.cancel()

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
	<-c.done

	c.logger.Debug().Str("key", c.key).Msg("Channel closed")
	c.cancel = nil
	c.done = nil
	c.key = ""
}

func (c *Channel) dial(ctx context.Context, key string) (*websocket.Conn, error) {
	if !c.session.Authenticated() {
		return nil, errors.New("not authenticated")
	}
	endpoint := c.URL(key)
	c.logger.Debug().Str("url", logging.RedactURL(endpoint)).Msg("Dialing channel")

	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s channel: %s", c.kind, logging.Redact(err.Error()))
	}
	return conn, nil
}

// readLoop publishes every frame in arrival order until the connection is
// closed. With Reconnect set, a dropped connection is re-dialed after
// ReconnectDelay for as long as the loop is not cancelled.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn, key string, done chan struct{}) {
	defer close(done)
	scope := c.Scope(key)

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Str("key", key).Msg("Channel connection lost")
			conn.Close()
			if !c.opts.Reconnect {
				return
			}
			conn = c.redial(ctx, key)
			if conn == nil {
				return
			}
			continue
		}

		msg, err := DecodeMessage(scope, frame)
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Dropping undecodable frame")
			continue
		}
		c.hub.Publish(ctx, msg)
	}
}

func (c *Channel) redial(ctx context.Context, key string) *websocket.Conn {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.opts.ReconnectDelay):
		}
		conn, err := c.dial(ctx, key)
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Reconnect failed")
			continue
		}
		c.connMu.Lock()
		// Close may have run while we were dialing.
		if ctx.Err() != nil {
			c.connMu.Unlock()
			conn.Close()
			return nil
		}
		c.conn = conn
		c.connMu.Unlock()
		c.logger.Info().Str("key", key).Msg("Channel reconnected")
		return conn
	}
}
