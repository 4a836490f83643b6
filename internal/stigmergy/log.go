// Package stigmergy provides the shared comment trail agents coordinate
// through: an append-only ordered log with snapshot reads, so later agents
// observe earlier agents' comments without any direct messaging.
package stigmergy

import (
	"sync"
	"time"
)

// Comment is one artifact left in the shared environment.
type Comment struct {
	AgentID   string    `json:"agentId"`
	PersonaID string    `json:"personaId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is an append-only ordered sequence of comments. Readers always see a
// consistent prefix; an in-flight append is never visible partially.
type Log struct {
	mu       sync.RWMutex
	comments []Comment
}

// NewLog returns an empty comment log.
func NewLog() *Log {
	return &Log{}
}

// Append adds one comment to the end of the log.
func (l *Log) Append(c Comment) {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	l.comments = append(l.comments, c)
	l.mu.Unlock()
}

// Snapshot returns a copy of the current prefix. The returned slice is owned
// by the caller.
func (l *Log) Snapshot() []Comment {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Comment, len(l.comments))
	copy(out, l.comments)
	return out
}

// Len returns the current number of comments.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.comments)
}
