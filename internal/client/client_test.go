package client

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/framecho/internal/protocol/frame"
	"github.com/danmuck/framecho/internal/protocol/session"
	"github.com/danmuck/framecho/internal/testutil/testlog"
)

// servePipe answers each request frame on conn with reply(msg) until the
// stream ends or reply returns false.
func servePipe(t *testing.T, conn net.Conn, reply func(string) (string, bool)) {
	t.Helper()
	go func() {
		defer conn.Close()
		for {
			msg, err := frame.ReadText(conn, frame.DefaultLimits())
			if err != nil {
				return
			}
			resp, ok := reply(msg)
			if !ok {
				return
			}
			if err := frame.WriteText(conn, resp, frame.Limits{MaxPayloadLen: 1 << 20}); err != nil {
				return
			}
		}
	}()
}

func TestSendRoundTripOverPipe(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	servePipe(t, remote, func(msg string) (string, bool) { return "ECHO: " + msg, true })

	c := New(local, DefaultConfig())
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, msg := range []string{"Hello, server!", "", "ünïcode"} {
		resp, err := c.Send(ctx, msg)
		if err != nil {
			t.Fatalf("send %q: %v", msg, err)
		}
		if resp != "ECHO: "+msg {
			t.Fatalf("unexpected response: %q", resp)
		}
	}
}

func TestSendServerClosedAtBoundary(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	servePipe(t, remote, func(string) (string, bool) { return "", false })

	c := New(local, DefaultConfig())
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.Send(ctx, "hi"); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestSendRejectsOversizeLocally(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	defer remote.Close()

	c := New(local, DefaultConfig())
	defer c.Close()

	msg := strings.Repeat("x", int(frame.DefaultMaxPayloadLen)+1)
	if _, err := c.Send(context.Background(), msg); !errors.Is(err, frame.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestSendHonorsContextCancel(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	defer remote.Close()
	go func() {
		// Drain the request and never answer.
		_, _ = frame.ReadFrame(remote, frame.DefaultLimits())
	}()

	c := New(local, DefaultConfig())
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Send(ctx, "stall"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestSendAfterClose(t *testing.T) {
	testlog.Start(t)
	local, remote := net.Pipe()
	defer remote.Close()

	c := New(local, DefaultConfig())
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := c.Send(context.Background(), "late"); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}

func TestDialRequiresAddress(t *testing.T) {
	testlog.Start(t)
	if _, err := Dial(context.Background(), DefaultConfig()); !errors.Is(err, ErrAddressRequired) {
		t.Fatalf("expected ErrAddressRequired, got %v", err)
	}
}

func TestDialGivesUpAfterMaxAttempts(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	cfg := DefaultConfig()
	cfg.Address = addr
	cfg.MaxConnectAttempts = 2
	cfg.Session = session.Config{
		ConnectTimeout: 500 * time.Millisecond,
		Backoff:        session.BackoffConfig{InitialDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: 50 * time.Millisecond},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := Dial(ctx, cfg); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestDialRejectsInvalidTLSConfig(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:1"
	cfg.Session.TLS.Enabled = true
	if _, err := Dial(context.Background(), cfg); !errors.Is(err, session.ErrTLSCAFileRequired) {
		t.Fatalf("expected ErrTLSCAFileRequired, got %v", err)
	}
}

func TestEarliest(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Second)
	if got := earliest(time.Time{}, time.Time{}); !got.IsZero() {
		t.Fatalf("expected zero, got %v", got)
	}
	if got := earliest(later, now); !got.Equal(now) {
		t.Fatalf("expected now, got %v", got)
	}
	if got := earliest(time.Time{}, later); !got.Equal(later) {
		t.Fatalf("expected later, got %v", got)
	}
}
