package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/framecho/internal/client"
	"github.com/danmuck/framecho/internal/echo"
	"github.com/danmuck/framecho/internal/testutil/testlog"
)

func startEcho(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	svc := echo.NewService()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func TestRunEchoesEachLine(t *testing.T) {
	testlog.Start(t)
	opts := options{cfg: client.DefaultConfig(), timeout: 2 * time.Second}
	opts.cfg.Address = startEcho(t)

	var out bytes.Buffer
	in := strings.NewReader("Hello, server!\n\r\nsecond line\r\n")
	if err := run(context.Background(), opts, in, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "ECHO: Hello, server!\nECHO: \nECHO: second line\n"
	if out.String() != want {
		t.Fatalf("unexpected output:\n%q\nwant:\n%q", out.String(), want)
	}
}

func TestRunPrompt(t *testing.T) {
	testlog.Start(t)
	opts := options{cfg: client.DefaultConfig(), timeout: 2 * time.Second, prompt: true}
	opts.cfg.Address = startEcho(t)

	var out bytes.Buffer
	if err := run(context.Background(), opts, strings.NewReader("hi\n"), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "> ECHO: hi\n> " {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestRunConnectFailure(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	opts := options{cfg: client.DefaultConfig(), timeout: time.Second}
	opts.cfg.Address = addr
	err = run(context.Background(), opts, strings.NewReader("x\n"), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "connect") {
		t.Fatalf("expected connect error, got %v", err)
	}
}

func TestRunOversizeLineFails(t *testing.T) {
	testlog.Start(t)
	opts := options{cfg: client.DefaultConfig(), timeout: 2 * time.Second}
	opts.cfg.Address = startEcho(t)
	opts.cfg.MaxPayloadLen = 8

	err := run(context.Background(), opts, strings.NewReader("123456789\n"), &bytes.Buffer{})
	if err == nil {
		t.Fatalf("expected oversize error")
	}
	var ne net.Error
	if errors.As(err, &ne) {
		t.Fatalf("oversize must fail locally, got transport error %v", err)
	}
}
