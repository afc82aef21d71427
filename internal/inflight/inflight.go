// Package inflight hands out per-action tokens so that only the newest
// action of a session gets its response reflected in the UI.
package inflight

import (
	"strings"
	"sync"
)

// Token identifies one started action
type Token struct {
	key string
	seq uint64
}

// Tracker remembers the newest token per session and action
type Tracker struct {
	mu     sync.Mutex
	seq    uint64
	latest map[string]uint64
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{latest: make(map[string]uint64)}
}

// Begin starts an action and invalidates every older token for the same key
func (t *Tracker) Begin(session, action string) Token {
	key := session + "\x00" + action
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.latest[key] = t.seq
	return Token{key: key, seq: t.seq}
}

// Current reports whether tok is still the newest token for its key
func (t *Tracker) Current(tok Token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest[tok.key] == tok.seq
}

// Done releases tok once its action finished. A newer token for the same key
// is left alone.
func (t *Tracker) Done(tok Token) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest[tok.key] == tok.seq {
		delete(t.latest, tok.key)
	}
}

// Len is the number of keys with an action in flight
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.latest)
}

// Forget drops all tokens of a session, e.g. on logout
func (t *Tracker) Forget(session string) {
	prefix := session + "\x00"
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.latest {
		if strings.HasPrefix(k, prefix) {
			delete(t.latest, k)
		}
	}
}
