package echo

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/framecho/internal/protocol/frame"
	"github.com/danmuck/framecho/internal/protocol/session"
)

const (
	DefaultListenAddr     = "0.0.0.0:1234"
	DefaultResponsePrefix = "ECHO: "
	DefaultHistoryLimit   = 256
)

// ServiceConfig is fixed at construction and read-only afterwards.
//
// MaxConns <= 0 leaves concurrent connections uncapped. Session.ReadTimeout
// and Session.WriteTimeout of zero leave reads and writes without deadlines.
type ServiceConfig struct {
	ListenAddr      string
	AdminListenAddr string
	MaxPayloadLen   uint32
	ResponsePrefix  string
	MaxConns        int
	HistoryLimit    int
	AcceptBackoff   session.BackoffConfig
	Session         session.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:      DefaultListenAddr,
		AdminListenAddr: "",
		MaxPayloadLen:   frame.DefaultMaxPayloadLen,
		ResponsePrefix:  DefaultResponsePrefix,
		MaxConns:        0,
		HistoryLimit:    DefaultHistoryLimit,
		AcceptBackoff: session.BackoffConfig{
			InitialDelay: 5 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     time.Second,
			Jitter:       false,
		},
		Session: session.DefaultConfig(),
	}
}

// WithDefaults fills zero fields. ResponsePrefix is left as given.
func (c ServiceConfig) WithDefaults() ServiceConfig {
	def := DefaultServiceConfig()
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = def.ListenAddr
	}
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	c.AdminListenAddr = strings.TrimSpace(c.AdminListenAddr)
	if c.MaxPayloadLen == 0 {
		c.MaxPayloadLen = def.MaxPayloadLen
	}
	if c.MaxConns < 0 {
		c.MaxConns = 0
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = def.HistoryLimit
	}
	if c.AcceptBackoff.InitialDelay <= 0 {
		c.AcceptBackoff = def.AcceptBackoff
	}
	c.Session = c.Session.WithDefaults()
	return c
}

func (c ServiceConfig) Validate() error {
	if c.MaxPayloadLen == 0 {
		return fmt.Errorf("echo: max payload length must be positive")
	}
	if c.AdminListenAddr != "" && c.AdminListenAddr == c.ListenAddr {
		return fmt.Errorf("echo: admin listen addr %q collides with listen addr", c.AdminListenAddr)
	}
	return c.Session.ValidateServerTransport()
}

// Limits returns the inbound frame limits.
func (c ServiceConfig) Limits() frame.Limits {
	return frame.Limits{MaxPayloadLen: c.MaxPayloadLen}
}
