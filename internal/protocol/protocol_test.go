package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/danmuck/framecho/internal/protocol/frame"
)

func TestClassifyFrameErrors(t *testing.T) {
	oversize := frame.EncodeLength(frame.DefaultMaxPayloadLen + 1)
	partialHeader := []byte{3, 0}
	truncatedBody := append(func() []byte { b := frame.EncodeLength(5); return b[:] }(), 'a', 'b')
	invalid := append(func() []byte { b := frame.EncodeLength(2); return b[:] }(), 0xc3, 0x28)

	cases := []struct {
		name string
		wire []byte
		want Kind
	}{
		{name: "empty stream", wire: nil, want: KindCleanDisconnect},
		{name: "partial header", wire: partialHeader, want: KindAbruptDisconnect},
		{name: "truncated body", wire: truncatedBody, want: KindAbruptDisconnect},
		{name: "oversize", wire: oversize[:], want: KindOversizedMessage},
		{name: "invalid utf-8", wire: invalid, want: KindMalformedPayload},
	}
	for _, tc := range cases {
		_, err := frame.ReadText(bytes.NewReader(tc.wire), frame.DefaultLimits())
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if got := Classify(err); got != tc.want {
			t.Fatalf("%s: classify=%q want=%q (err=%v)", tc.name, got, tc.want, err)
		}
	}
}

func TestClassifyTransportAndNil(t *testing.T) {
	if got := Classify(nil); got != KindCleanDisconnect {
		t.Fatalf("nil: got %q", got)
	}
	err := fmt.Errorf("wrapped: %w", errors.New("connection reset by peer"))
	if got := Classify(err); got != KindTransport {
		t.Fatalf("transport: got %q", got)
	}
	if !Classify(err).Fault() || KindCleanDisconnect.Fault() {
		t.Fatalf("unexpected fault classification")
	}
}
