package transcript

import (
	"strings"
	"sync"
)

// Log is the in-memory transcript of a single room session. Appends are
// ordered; a final from a speaker replaces that speaker's most recent
// partial in place when one of the texts is a prefix of the other, so the
// UI never shows a partial next to the final it grew into.
type Log struct {
	mu      sync.RWMutex
	records []Record
}

func NewLog() *Log {
	return &Log{}
}

// Append stores the record and returns it as kept: a final that supersedes
// a partial inherits the partial's ID, and callers must publish and persist
// the returned record so every consumer agrees on identity.
func (l *Log) Append(rec Record) Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.IsFinal {
		for i := len(l.records) - 1; i >= 0; i-- {
			prev := &l.records[i]
			if prev.ParticipantID != rec.ParticipantID {
				continue
			}
			if prev.IsFinal {
				break
			}
			if sharesPrefix(prev.Original, rec.Original) {
				rec.ID = prev.ID
				*prev = rec
				return rec
			}
			break
		}
	}
	l.records = append(l.records, rec)
	return rec
}

// Records returns a copy of the log in append order.
func (l *Log) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
}

func sharesPrefix(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.HasPrefix(b, a) || strings.HasPrefix(a, b)
}
