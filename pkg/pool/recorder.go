package pool

import (
	"sort"
	"sync"
	"time"
)

const (
	recorderCapacity  = 1000
	maxRecordedSQLLen = 200
)

// QueryMetrics is one completed statement as seen by the recorder. The
// query text is truncated and kept for diagnostics only.
type QueryMetrics struct {
	Query      string    `json:"query"`
	DurationMS float64   `json:"duration"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// recorder keeps the most recent executions in a fixed-capacity FIFO.
// Reads return copies; the buffer is never mutated by a view.
type recorder struct {
	mu  sync.Mutex
	buf []QueryMetrics
	cap int
}

func newRecorder(capacity int) *recorder {
	if capacity <= 0 {
		capacity = recorderCapacity
	}
	return &recorder{buf: make([]QueryMetrics, 0, capacity), cap: capacity}
}

func (r *recorder) record(m QueryMetrics) {
	if len(m.Query) > maxRecordedSQLLen {
		m.Query = m.Query[:maxRecordedSQLLen]
	}
	r.mu.Lock()
	if len(r.buf) == r.cap {
		copy(r.buf, r.buf[1:])
		r.buf = r.buf[:r.cap-1]
	}
	r.buf = append(r.buf, m)
	r.mu.Unlock()
}

func (r *recorder) slow(thresholdMS float64, limit int) []QueryMetrics {
	r.mu.Lock()
	out := make([]QueryMetrics, 0, limit)
	for _, m := range r.buf {
		if m.DurationMS > thresholdMS {
			out = append(out, m)
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DurationMS > out[j].DurationMS })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *recorder) failed(limit int) []QueryMetrics {
	r.mu.Lock()
	out := make([]QueryMetrics, 0, limit)
	for _, m := range r.buf {
		if !m.Success {
			out = append(out, m)
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}
