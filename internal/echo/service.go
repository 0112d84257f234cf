package echo

import (
	"context"
	"crypto/tls"
	"errors"
	"math/rand"
	"net"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/danmuck/framecho/internal/observability"
	"github.com/danmuck/framecho/internal/protocol"
	"github.com/danmuck/framecho/internal/protocol/frame"
	"github.com/danmuck/framecho/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Service accepts stream connections and runs one frame loop per connection.
type Service struct {
	cfg     ServiceConfig
	limits  frame.Limits
	respond Responder
	log     zerolog.Logger
	started time.Time

	connsMu  sync.Mutex
	conns    map[net.Conn]struct{}
	handlers sync.WaitGroup

	active  atomic.Int64
	slots   chan struct{}
	history *connHistory
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	cfg = cfg.WithDefaults()
	svc := &Service{
		cfg:     cfg,
		limits:  cfg.Limits(),
		respond: PrefixResponder(cfg.ResponsePrefix),
		log:     log.Logger.With().Str("component", "echo").Logger(),
		started: time.Now(),
		conns:   make(map[net.Conn]struct{}),
		history: newConnHistory(cfg.HistoryLimit),
	}
	if cfg.MaxConns > 0 {
		svc.slots = make(chan struct{}, cfg.MaxConns)
	}
	return svc
}

// SetResponder replaces the response function. Call before Serve.
func (s *Service) SetResponder(r Responder) {
	if r != nil {
		s.respond = r
	}
}

// SetLogger replaces the base logger. Call before Serve.
func (s *Service) SetLogger(logger zerolog.Logger) {
	s.log = logger
}

func (s *Service) Config() ServiceConfig {
	return s.cfg
}

// ActiveConns returns the number of connections being handled.
func (s *Service) ActiveConns() int64 {
	return s.active.Load()
}

// RecentConnections returns up to limit finished connection reports, oldest first.
func (s *Service) RecentConnections(limit int) []ConnReport {
	return s.history.recent(limit)
}

// Run listens on the configured address and serves until ctx is cancelled
// or SIGINT/SIGTERM arrives.
func (s *Service) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.cfg.Validate(); err != nil {
		return err
	}
	ln, err := s.listen()
	if err != nil {
		return err
	}
	s.log.Info().Str("addr", ln.Addr().String()).Bool("tls", s.cfg.Session.TLS.Enabled).Msg("listening")

	adminErr := make(chan error, 1)
	if s.cfg.AdminListenAddr != "" {
		go func() {
			adminErr <- s.serveAdmin(ctx, s.cfg.AdminListenAddr)
		}()
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln)
	}()
	select {
	case err := <-serveErr:
		return err
	case err := <-adminErr:
		if err != nil {
			_ = ln.Close()
			<-serveErr
			return err
		}
		return <-serveErr
	}
}

// listen builds a TCP or TLS listener for the configured transport.
func (s *Service) listen() (net.Listener, error) {
	if !s.cfg.Session.TLS.Enabled {
		return net.Listen("tcp", s.cfg.ListenAddr)
	}
	tlsCfg, err := s.cfg.Session.ServerTLSConfig()
	if err != nil {
		return nil, err
	}
	return tls.Listen("tcp", s.cfg.ListenAddr, tlsCfg)
}

// Serve accepts connections on ln until ctx is cancelled or ln is closed.
// Failed accepts are logged and retried after backoff. Serve returns once
// every connection goroutine has exited; it may be called once per Service.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	defer ln.Close()
	defer s.handlers.Wait()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = ln.Close()
		s.closeAllConns()
	}()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var failures int
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			failures++
			observability.RecordAcceptError()
			delay := session.NextBackoffDelay(s.cfg.AcceptBackoff, failures, rng)
			s.log.Error().Err(err).Int("attempt", failures).Dur("retry_in", delay).Msg("accept failed")
			if !sleepCtx(ctx, delay) {
				return nil
			}
			continue
		}
		failures = 0

		if !s.acquireSlot() {
			observability.RecordConnectionRejected()
			s.log.Warn().
				Str("remote", observability.PeerAddr(conn)).
				Int("max_conns", s.cfg.MaxConns).
				Msg("connection rejected at capacity")
			_ = conn.Close()
			continue
		}
		if !s.trackConn(conn) {
			s.releaseSlot()
			_ = conn.Close()
			return nil
		}
		s.handlers.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn owns conn for its whole lifetime.
func (s *Service) handleConn(conn net.Conn) {
	defer s.handlers.Done()
	defer s.releaseSlot()
	defer s.untrackConn(conn)
	defer conn.Close()

	report := ConnReport{
		ConnID:   uuid.NewString(),
		Remote:   observability.PeerAddr(conn),
		OpenedAt: time.Now(),
	}
	logger := observability.ConnLogger(s.log, report.ConnID, report.Remote)
	active := s.active.Add(1)
	observability.RecordConnectionOpened()
	logger.Info().Int64("active", active).Msg("connection opened")

	h := newConnHandler(conn, s.limits, s.cfg.Session, s.respond, logger)
	kind, err := h.run()

	report.Kind = kind
	report.State = h.state.String()
	report.Messages = h.messages
	report.ClosedAt = time.Now()
	if phase, ok := frame.ErrorPhase(err); ok {
		report.Phase = string(phase)
	}
	if err != nil {
		report.Error = err.Error()
	}

	remaining := s.active.Add(-1)
	observability.RecordConnectionClosed(string(kind), report.ClosedAt.Sub(report.OpenedAt))
	s.history.append(report)

	if kind == protocol.KindCleanDisconnect {
		logger.Info().
			Int("messages", report.Messages).
			Int64("active", remaining).
			Msg("connection closed")
		return
	}
	logger.Warn().
		Str("kind", string(kind)).
		Str("phase", report.Phase).
		Str("state", report.State).
		Bool("timeout", isTimeout(err)).
		Int("messages", report.Messages).
		Int64("active", remaining).
		Err(err).
		Msg("connection aborted")
}

func (s *Service) acquireSlot() bool {
	if s.slots == nil {
		return true
	}
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Service) releaseSlot() {
	if s.slots == nil {
		return
	}
	<-s.slots
}

// trackConn registers conn for shutdown. It reports false once shutdown
// has started.
func (s *Service) trackConn(conn net.Conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

// closeAllConns closes every tracked connection and refuses new ones.
func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
