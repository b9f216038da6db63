package guard

import (
	"errors"
	"sync"
)

// ErrKeyUnset means the operator has not configured an API key, so the API
// is not open for mutations at all.
var ErrKeyUnset = errors.New("this API is not open yet: the server operator must set the API_KEY environment variable")

// ErrKeyInvalid means the request carried a missing or wrong key.
var ErrKeyInvalid = errors.New("invalid or missing API key; set it in the X-API-Key header")

// ErrKeyExhausted means the key's use cap has been reached; further
// mutations are rejected regardless of credential validity.
var ErrKeyExhausted = errors.New("this API key has reached its use limit; contact the site owner")

// KeyGuard authenticates mutating calls against a shared API key and
// optionally burns the key out after a fixed number of uses, making it a
// limited-use token shared per visitor.
type KeyGuard struct {
	mu      sync.Mutex
	key     string
	maxUses int // 0 = unlimited
	used    int
}

// KeyUsage is a snapshot of key-use counters for quota reporting.
type KeyUsage struct {
	Used  int
	Limit int // 0 = unlimited
}

// NewKeyGuard creates a key guard for the given key. An empty key keeps the
// API closed; maxUses of zero means unlimited.
func NewKeyGuard(key string, maxUses int) *KeyGuard {
	return &KeyGuard{key: key, maxUses: maxUses}
}

// Authorize checks the presented key and, on success, consumes one use.
func (g *KeyGuard) Authorize(presented string) error {
	if g.key == "" {
		return ErrKeyUnset
	}
	if presented != g.key {
		return ErrKeyInvalid
	}
	if g.maxUses == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.used >= g.maxUses {
		return ErrKeyExhausted
	}
	g.used++
	return nil
}

// Usage returns a snapshot of the key-use counters.
func (g *KeyGuard) Usage() KeyUsage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return KeyUsage{Used: g.used, Limit: g.maxUses}
}
