package echo

import (
	"sync"
	"time"

	"github.com/danmuck/framecho/internal/protocol"
)

// ConnReport is the observed outcome of one finished connection.
type ConnReport struct {
	ConnID   string        `json:"conn_id"`
	Remote   string        `json:"remote"`
	Kind     protocol.Kind `json:"kind"`
	Phase    string        `json:"phase,omitempty"`
	State    string        `json:"state"`
	Error    string        `json:"error,omitempty"`
	Messages int           `json:"messages"`
	OpenedAt time.Time     `json:"opened_at"`
	ClosedAt time.Time     `json:"closed_at"`
}

// connHistory keeps the most recent limit reports.
type connHistory struct {
	mu      sync.RWMutex
	limit   int
	reports []ConnReport
}

func newConnHistory(limit int) *connHistory {
	return &connHistory{limit: limit}
}

func (h *connHistory) append(r ConnReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports = append(h.reports, r)
	if over := len(h.reports) - h.limit; over > 0 {
		h.reports = append(h.reports[:0:0], h.reports[over:]...)
	}
}

func (h *connHistory) recent(limit int) []ConnReport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if limit <= 0 || len(h.reports) <= limit {
		out := make([]ConnReport, len(h.reports))
		copy(out, h.reports)
		return out
	}
	out := make([]ConnReport, limit)
	copy(out, h.reports[len(h.reports)-limit:])
	return out
}
