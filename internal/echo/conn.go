package echo

import (
	"errors"
	"math"
	"net"
	"time"
	"unicode/utf8"

	"github.com/danmuck/framecho/internal/observability"
	"github.com/danmuck/framecho/internal/protocol"
	"github.com/danmuck/framecho/internal/protocol/frame"
	"github.com/danmuck/framecho/internal/protocol/session"
	"github.com/rs/zerolog"
)

var ErrResponseTooLarge = errors.New("echo: response exceeds u32 length prefix")

type connState int

const (
	stateAwaitingHeader connState = iota
	stateAwaitingBody
	stateProcessing
	stateAwaitingWriteHeader
	stateAwaitingWriteBody
	stateClosed
	stateAborted
)

func (s connState) String() string {
	switch s {
	case stateAwaitingHeader:
		return "awaiting_header"
	case stateAwaitingBody:
		return "awaiting_body"
	case stateProcessing:
		return "processing"
	case stateAwaitingWriteHeader:
		return "awaiting_write_header"
	case stateAwaitingWriteBody:
		return "awaiting_write_body"
	case stateClosed:
		return "closed"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// connHandler runs the frame loop for one connection. It is owned by a
// single goroutine.
type connHandler struct {
	conn    net.Conn
	limits  frame.Limits
	timing  session.Config
	respond Responder
	log     zerolog.Logger

	state    connState
	messages int
}

func newConnHandler(conn net.Conn, limits frame.Limits, timing session.Config, respond Responder, logger zerolog.Logger) *connHandler {
	return &connHandler{
		conn:    conn,
		limits:  limits.WithDefaults(),
		timing:  timing,
		respond: respond,
		log:     logger,
		state:   stateAwaitingHeader,
	}
}

// run processes frames until the peer disconnects or a frame fails. The
// returned error is nil for a clean disconnect.
func (h *connHandler) run() (protocol.Kind, error) {
	for {
		h.state = stateAwaitingHeader
		h.armRead()
		n, err := frame.ReadLength(h.conn)
		if err != nil {
			return h.finish(err)
		}
		if n > h.limits.MaxPayloadLen {
			return h.finish(&frame.PhaseError{
				Phase: frame.PhaseReadHeader,
				Err:   &frame.SizeError{Len: n, Max: h.limits.MaxPayloadLen},
			})
		}

		h.state = stateAwaitingBody
		body, err := frame.ReadExact(h.conn, int(n))
		if err != nil {
			return h.finish(&frame.PhaseError{Phase: frame.PhaseReadBody, Err: err})
		}

		h.state = stateProcessing
		if !utf8.Valid(body) {
			return h.finish(&frame.PhaseError{Phase: frame.PhaseReadBody, Err: frame.ErrMalformedPayload})
		}
		h.messages++
		observability.RecordFrameReceived(len(body))
		h.log.Debug().Int("len", len(body)).Msg("message received")

		resp := h.respond(string(body))
		if uint64(len(resp)) > math.MaxUint32 {
			return h.finish(&frame.PhaseError{Phase: frame.PhaseWriteHeader, Err: ErrResponseTooLarge})
		}

		h.state = stateAwaitingWriteHeader
		h.armWrite()
		hb := frame.EncodeLength(uint32(len(resp)))
		if err := frame.WriteExact(h.conn, hb[:]); err != nil {
			return h.finish(&frame.PhaseError{Phase: frame.PhaseWriteHeader, Err: err})
		}

		h.state = stateAwaitingWriteBody
		if err := frame.WriteExact(h.conn, []byte(resp)); err != nil {
			return h.finish(&frame.PhaseError{Phase: frame.PhaseWriteBody, Err: err})
		}
		observability.RecordFrameSent(len(resp))
		h.log.Debug().Int("len", len(resp)).Msg("response sent")
	}
}

func (h *connHandler) finish(err error) (protocol.Kind, error) {
	kind := protocol.Classify(err)
	if errors.Is(err, ErrResponseTooLarge) {
		kind = protocol.KindOversizedMessage
	}
	if kind == protocol.KindCleanDisconnect {
		h.state = stateClosed
		return kind, nil
	}
	h.state = stateAborted
	return kind, err
}

func (h *connHandler) armRead() {
	if h.timing.ReadTimeout <= 0 {
		return
	}
	if err := h.conn.SetReadDeadline(h.timing.ReadDeadline(time.Now())); err != nil {
		h.log.Debug().Err(err).Msg("set read deadline")
	}
}

func (h *connHandler) armWrite() {
	if h.timing.WriteTimeout <= 0 {
		return
	}
	if err := h.conn.SetWriteDeadline(h.timing.WriteDeadline(time.Now())); err != nil {
		h.log.Debug().Err(err).Msg("set write deadline")
	}
}

// isTimeout reports whether err came from an expired deadline.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
