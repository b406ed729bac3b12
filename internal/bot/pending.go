package bot

import "sync"

type pendingPhase int

const (
	phaseIdle pendingPhase = iota
	phaseInflight
	phaseHandled
)

// PendingTracker makes sure each pending withdrawal is acted on once.
//
//	idle -> inflight(key)        Claim
//	inflight(key) -> handled(key) Succeeded
//	inflight(key) -> idle         Failed (next poll retries)
//	any -> idle                   Clear (bot dropped the request)
//
// A handled key is not claimed again while the bot keeps reporting it.
type PendingTracker struct {
	mu    sync.Mutex
	phase pendingPhase
	key   string
}

// Claim reports whether the caller should handle the request with key.
func (t *PendingTracker) Claim(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.phase {
	case phaseInflight:
		return false
	case phaseHandled:
		if t.key == key {
			return false
		}
	}
	t.phase, t.key = phaseInflight, key
	return true
}

func (t *PendingTracker) Succeeded(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase == phaseInflight && t.key == key {
		t.phase = phaseHandled
	}
}

func (t *PendingTracker) Failed(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase == phaseInflight && t.key == key {
		t.phase, t.key = phaseIdle, ""
	}
}

// Clear forgets a handled key. An in-flight withdrawal keeps its marker.
func (t *PendingTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase == phaseHandled {
		t.phase, t.key = phaseIdle, ""
	}
}

// Inflight returns the key being handled, if any.
func (t *PendingTracker) Inflight() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.key, t.phase == phaseInflight
}
