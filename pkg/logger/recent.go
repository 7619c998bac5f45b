package logger

import (
	"sync"
	"time"
)

// ErrorEntry is one captured error log line.
type ErrorEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// RecentErrors keeps a fixed-size ring of the latest error entries so the
// operator API can report them without scraping log output.
type RecentErrors struct {
	mu      sync.Mutex
	entries []ErrorEntry
	max     int
}

func NewRecentErrors(max int) *RecentErrors {
	if max <= 0 {
		max = 64
	}
	return &RecentErrors{max: max}
}

func (r *RecentErrors) Add(msg string, fields []Field) {
	fm := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		k, v := f.KeyValue()
		fm[k] = v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, ErrorEntry{Timestamp: time.Now(), Message: msg, Fields: fm})
	if len(r.entries) > r.max {
		r.entries = r.entries[len(r.entries)-r.max:]
	}
}

// Snapshot returns a copy of the buffered entries, newest last.
func (r *RecentErrors) Snapshot() []ErrorEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ErrorEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
