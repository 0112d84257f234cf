package protocol

import (
	"errors"

	"github.com/danmuck/framecho/internal/protocol/frame"
)

// Kind classifies how a connection ended.
type Kind string

const (
	KindCleanDisconnect  Kind = "clean_disconnect"
	KindAbruptDisconnect Kind = "abrupt_disconnect"
	KindOversizedMessage Kind = "oversized_message"
	KindMalformedPayload Kind = "malformed_payload"
	KindTransport        Kind = "transport_error"
)

// Kinds lists every outcome in reporting order.
func Kinds() []Kind {
	return []Kind{
		KindCleanDisconnect,
		KindAbruptDisconnect,
		KindOversizedMessage,
		KindMalformedPayload,
		KindTransport,
	}
}

// Classify maps an error from the frame layer to a Kind. A nil error is a
// clean disconnect.
func Classify(err error) Kind {
	switch {
	case err == nil, errors.Is(err, frame.ErrClosed):
		return KindCleanDisconnect
	case errors.Is(err, frame.ErrUnexpectedEOF):
		return KindAbruptDisconnect
	case errors.Is(err, frame.ErrPayloadTooLarge):
		return KindOversizedMessage
	case errors.Is(err, frame.ErrMalformedPayload):
		return KindMalformedPayload
	default:
		return KindTransport
	}
}

// Fault reports whether k indicates a violated contract or failed transport.
func (k Kind) Fault() bool {
	return k != KindCleanDisconnect
}
