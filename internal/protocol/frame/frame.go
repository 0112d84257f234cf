package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

const (
	// LengthPrefixLen is the size of the little-endian u32 header.
	LengthPrefixLen = 4
	// DefaultMaxPayloadLen is the reference payload cap.
	DefaultMaxPayloadLen uint32 = 4096

	// consecutive (0, nil) results tolerated before giving up
	maxEmptyReads = 100
)

var (
	ErrUnexpectedEOF    = errors.New("frame: unexpected eof")
	ErrClosed           = errors.New("frame: stream closed at frame boundary")
	ErrStalledWrite     = errors.New("frame: write transferred zero bytes")
	ErrPayloadTooLarge  = errors.New("frame: payload too large")
	ErrMalformedPayload = errors.New("frame: payload is not valid utf-8")
	ErrInvalidLength    = errors.New("frame: invalid length prefix")
)

// Phase names the step of a frame exchange an error occurred in.
type Phase string

const (
	PhaseReadHeader  Phase = "read header"
	PhaseReadBody    Phase = "read body"
	PhaseWriteHeader Phase = "write header"
	PhaseWriteBody   Phase = "write body"
)

// PhaseError tags a frame error with the phase it happened in.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("frame: %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// ShortReadError reports a stream that ended after Got of Want bytes.
type ShortReadError struct {
	Got  int
	Want int
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("frame: unexpected eof after %d of %d bytes", e.Got, e.Want)
}

func (e *ShortReadError) Is(target error) bool {
	return target == ErrUnexpectedEOF
}

// SizeError reports a declared length above the configured cap.
type SizeError struct {
	Len uint32
	Max uint32
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("frame: payload too large: %d > %d bytes", e.Len, e.Max)
}

func (e *SizeError) Is(target error) bool {
	return target == ErrPayloadTooLarge
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadLen uint32
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadLen: DefaultMaxPayloadLen}
}

// WithDefaults fills zero fields from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	if l.MaxPayloadLen == 0 {
		l.MaxPayloadLen = DefaultMaxPayloadLen
	}
	return l
}

func (l Limits) check(n uint32) error {
	if n > l.MaxPayloadLen {
		return &SizeError{Len: n, Max: l.MaxPayloadLen}
	}
	return nil
}

// ReadExact reads exactly n bytes from r, resuming after short reads.
// A stream that ends first yields a *ShortReadError matching ErrUnexpectedEOF.
func ReadExact(r io.Reader, n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrInvalidLength
	}
	buf := make([]byte, n)
	if err := readInto(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readInto(r io.Reader, buf []byte) error {
	off := 0
	empty := 0
	for off < len(buf) {
		n, err := r.Read(buf[off:])
		off += n
		if off == len(buf) {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return &ShortReadError{Got: off, Want: len(buf)}
			}
			return err
		}
		if n > 0 {
			empty = 0
			continue
		}
		empty++
		if empty >= maxEmptyReads {
			return io.ErrNoProgress
		}
	}
	return nil
}

// WriteExact writes all of b to w, resuming after short writes. A write
// reporting zero bytes without an error fails with ErrStalledWrite.
func WriteExact(w io.Writer, b []byte) error {
	off := 0
	for off < len(b) {
		n, err := w.Write(b[off:])
		if n < 0 || n > len(b)-off {
			return fmt.Errorf("frame: writer returned invalid count %d", n)
		}
		off += n
		if err != nil {
			if off == len(b) {
				return nil
			}
			return err
		}
		if n == 0 {
			return ErrStalledWrite
		}
	}
	return nil
}

func EncodeLength(n uint32) [LengthPrefixLen]byte {
	var b [LengthPrefixLen]byte
	binary.LittleEndian.PutUint32(b[:], n)
	return b
}

func DecodeLength(b []byte) (uint32, error) {
	if len(b) != LengthPrefixLen {
		return 0, fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadLength reads one length prefix. A stream that ends before the first
// header byte returns ErrClosed; one that ends inside the header returns a
// PhaseError wrapping a *ShortReadError.
func ReadLength(r io.Reader) (uint32, error) {
	var hb [LengthPrefixLen]byte
	if err := readInto(r, hb[:]); err != nil {
		var short *ShortReadError
		if errors.As(err, &short) && short.Got == 0 {
			return 0, ErrClosed
		}
		return 0, &PhaseError{Phase: PhaseReadHeader, Err: err}
	}
	return binary.LittleEndian.Uint32(hb[:]), nil
}

// ReadFrame reads one frame and returns its payload. The declared length is
// checked against limits before any body byte is consumed.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	limits = limits.WithDefaults()
	n, err := ReadLength(r)
	if err != nil {
		return nil, err
	}
	if err := limits.check(n); err != nil {
		return nil, &PhaseError{Phase: PhaseReadHeader, Err: err}
	}
	payload, err := ReadExact(r, int(n))
	if err != nil {
		return nil, &PhaseError{Phase: PhaseReadBody, Err: err}
	}
	return payload, nil
}

// WriteFrame writes the length prefix followed by payload.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	limits = limits.WithDefaults()
	if uint64(len(payload)) > uint64(limits.MaxPayloadLen) {
		return &PhaseError{Phase: PhaseWriteHeader, Err: &SizeError{Len: clampLen(len(payload)), Max: limits.MaxPayloadLen}}
	}
	hb := EncodeLength(uint32(len(payload)))
	if err := WriteExact(w, hb[:]); err != nil {
		return &PhaseError{Phase: PhaseWriteHeader, Err: err}
	}
	if err := WriteExact(w, payload); err != nil {
		return &PhaseError{Phase: PhaseWriteBody, Err: err}
	}
	return nil
}

// ReadText reads one frame whose payload must be valid UTF-8.
func ReadText(r io.Reader, limits Limits) (string, error) {
	payload, err := ReadFrame(r, limits)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(payload) {
		return "", &PhaseError{Phase: PhaseReadBody, Err: ErrMalformedPayload}
	}
	return string(payload), nil
}

// WriteText writes msg as one frame. msg must be valid UTF-8.
func WriteText(w io.Writer, msg string, limits Limits) error {
	if !utf8.ValidString(msg) {
		return &PhaseError{Phase: PhaseWriteBody, Err: ErrMalformedPayload}
	}
	return WriteFrame(w, []byte(msg), limits)
}

// ErrorPhase returns the phase recorded on err, if any.
func ErrorPhase(err error) (Phase, bool) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase, true
	}
	return "", false
}

func clampLen(n int) uint32 {
	if uint64(n) > uint64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n)
}
