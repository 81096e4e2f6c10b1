// Package dedup drops redelivered MQTT messages within a time window.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type entry struct {
	key     string
	expires time.Time
}

// Deduper remembers keys for a TTL. Keys are kept in arrival order, so the
// expired ones sit at the front of the queue and go first when the set is
// full.
type Deduper struct {
	mu    sync.Mutex
	ttl   time.Duration
	max   int
	seen  map[string]time.Time
	queue []entry
	now   func() time.Time
}

func New(ttl time.Duration, max int) *Deduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if max <= 0 {
		max = 10000
	}
	return &Deduper{ttl: ttl, max: max, seen: make(map[string]time.Time, max), now: time.Now}
}

// Key hashes a payload into a dedup key.
func Key(payload []byte) string {
	h := sha256.Sum256(payload)
	return hex.EncodeToString(h[:])
}

// ShouldProcess reports whether key was not seen within the TTL and marks it
// seen. Empty keys always pass.
func (d *Deduper) ShouldProcess(key string) bool {
	if key == "" {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.expire(now)
	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		return false
	}
	for len(d.seen) >= d.max && len(d.queue) > 0 {
		d.pop()
	}
	exp := now.Add(d.ttl)
	d.seen[key] = exp
	d.queue = append(d.queue, entry{key: key, expires: exp})
	return true
}

func (d *Deduper) expire(now time.Time) {
	for len(d.queue) > 0 && !now.Before(d.queue[0].expires) {
		d.pop()
	}
}

// pop drops the queue head and its key unless the key was marked again.
func (d *Deduper) pop() {
	head := d.queue[0]
	d.queue = d.queue[1:]
	if exp, ok := d.seen[head.key]; ok && exp.Equal(head.expires) {
		delete(d.seen, head.key)
	}
}

// Len is the number of tracked keys.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
