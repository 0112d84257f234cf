package echo

import (
	"testing"
	"time"

	"github.com/danmuck/framecho/internal/testutil/testlog"
)

func TestDefaultServiceConfigMatchesReference(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultServiceConfig()
	if cfg.ListenAddr != "0.0.0.0:1234" {
		t.Fatalf("unexpected listen addr: %q", cfg.ListenAddr)
	}
	if cfg.MaxPayloadLen != 4096 {
		t.Fatalf("unexpected max payload: %d", cfg.MaxPayloadLen)
	}
	if cfg.ResponsePrefix != "ECHO: " {
		t.Fatalf("unexpected prefix: %q", cfg.ResponsePrefix)
	}
	if cfg.MaxConns != 0 || cfg.Session.ReadTimeout != 0 || cfg.Session.WriteTimeout != 0 {
		t.Fatalf("hardening options must default off: %+v", cfg)
	}
}

func TestServiceConfigWithDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := ServiceConfig{ListenAddr: "  ", MaxConns: -3, ResponsePrefix: ""}.WithDefaults()
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("unexpected listen addr: %q", cfg.ListenAddr)
	}
	if cfg.MaxPayloadLen != 4096 || cfg.MaxConns != 0 || cfg.HistoryLimit != DefaultHistoryLimit {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ResponsePrefix != "" {
		t.Fatalf("explicit empty prefix must be kept: %q", cfg.ResponsePrefix)
	}
	if cfg.AcceptBackoff.InitialDelay != 5*time.Millisecond {
		t.Fatalf("unexpected accept backoff: %+v", cfg.AcceptBackoff)
	}
	if cfg.Limits().MaxPayloadLen != 4096 {
		t.Fatalf("unexpected limits: %+v", cfg.Limits())
	}
}

func TestServiceConfigValidateAdminCollision(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultServiceConfig()
	cfg.ListenAddr = "127.0.0.1:1234"
	cfg.AdminListenAddr = "127.0.0.1:1234"
	if err := cfg.WithDefaults().Validate(); err == nil {
		t.Fatalf("expected collision error")
	}
}

func TestConnHistoryIsBounded(t *testing.T) {
	testlog.Start(t)
	h := newConnHistory(3)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		h.append(ConnReport{ConnID: id})
	}
	all := h.recent(0)
	if len(all) != 3 || all[0].ConnID != "c" || all[2].ConnID != "e" {
		t.Fatalf("unexpected history: %+v", all)
	}
	last := h.recent(1)
	if len(last) != 1 || last[0].ConnID != "e" {
		t.Fatalf("unexpected tail: %+v", last)
	}
}
