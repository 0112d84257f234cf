package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/framecho/internal/protocol/frame"
	"github.com/danmuck/framecho/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired  = errors.New("client: address required")
	ErrConnectionClosed = errors.New("client: connection closed by server")
	ErrClientClosed     = errors.New("client: closed")
)

// Config configures one framed client connection.
type Config struct {
	Address            string
	MaxPayloadLen      uint32
	MaxResponseLen     uint32
	MaxConnectAttempts int
	Session            session.Config
}

func DefaultConfig() Config {
	return Config{
		MaxPayloadLen:      frame.DefaultMaxPayloadLen,
		MaxResponseLen:     2 * frame.DefaultMaxPayloadLen,
		MaxConnectAttempts: 1,
		Session:            session.DefaultConfig(),
	}
}

func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.Address = strings.TrimSpace(c.Address)
	if c.MaxPayloadLen == 0 {
		c.MaxPayloadLen = def.MaxPayloadLen
	}
	if c.MaxResponseLen == 0 {
		c.MaxResponseLen = def.MaxResponseLen
	}
	c.Session = c.Session.WithDefaults()
	return c
}

// Client sends one text frame and waits for one text frame in reply.
// Calls to Send are serialized.
type Client struct {
	cfg  Config
	conn net.Conn

	mu     sync.Mutex
	closed bool
}

// Dial connects to cfg.Address, retrying with backoff up to
// cfg.MaxConnectAttempts (<= 0 retries until ctx is done).
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	if cfg.Address == "" {
		return nil, ErrAddressRequired
	}
	if err := cfg.Session.ValidateClientTransport(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var attempt int
	for {
		attempt++
		conn, err := dial(ctx, cfg)
		if err == nil {
			return New(conn, cfg), nil
		}
		log.Warn().Int("attempt", attempt).Str("addr", cfg.Address).Err(err).Msg("client dial failed")
		if cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts {
			return nil, err
		}
		if err := sleepBackoff(ctx, cfg.Session.Backoff, attempt, rng); err != nil {
			return nil, err
		}
	}
}

// New wraps an established stream.
func New(conn net.Conn, cfg Config) *Client {
	return &Client{cfg: cfg.WithDefaults(), conn: conn}
}

func dial(ctx context.Context, cfg Config) (net.Conn, error) {
	dialer := net.Dialer{Timeout: cfg.Session.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, err
	}
	if !cfg.Session.TLS.Enabled {
		return rawConn, nil
	}

	tlsCfg, err := cfg.Session.ClientTLSConfig(cfg.Address)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		_ = rawConn.Close()
		return nil, fmt.Errorf("client: tls handshake: %w", err)
	}
	return conn, nil
}

func sleepBackoff(ctx context.Context, cfg session.BackoffConfig, attempt int, rng *rand.Rand) error {
	delay := session.NextBackoffDelay(cfg, attempt, rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Send writes msg as one frame and returns the response payload.
func (c *Client) Send(ctx context.Context, msg string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClientClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	now := time.Now()
	if err := c.conn.SetWriteDeadline(earliest(ctxDeadline(ctx), c.cfg.Session.WriteDeadline(now))); err != nil {
		return "", err
	}
	if err := frame.WriteText(c.conn, msg, frame.Limits{MaxPayloadLen: c.cfg.MaxPayloadLen}); err != nil {
		return "", c.wrap(ctx, err)
	}

	if err := c.conn.SetReadDeadline(earliest(ctxDeadline(ctx), c.cfg.Session.ReadDeadline(time.Now()))); err != nil {
		return "", err
	}
	resp, err := frame.ReadText(c.conn, frame.Limits{MaxPayloadLen: c.cfg.MaxResponseLen})
	if err != nil {
		return "", c.wrap(ctx, err)
	}
	return resp, nil
}

func (c *Client) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	// the conn deadline can fire just before the ctx timer does
	if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) && errors.Is(err, os.ErrDeadlineExceeded) {
		return context.DeadlineExceeded
	}
	if errors.Is(err, frame.ErrClosed) {
		return ErrConnectionClosed
	}
	return err
}

func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *Client) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func ctxDeadline(ctx context.Context) time.Time {
	d, _ := ctx.Deadline()
	return d
}

// earliest returns the earlier non-zero time, or zero if both are zero.
func earliest(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case a.Before(b):
		return a
	default:
		return b
	}
}
