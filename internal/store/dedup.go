package store

import (
	"container/list"
	"sync"
	"time"
)

// Dedup is a TTL-bound LRU of keys already handed to a sink, so that
// unchanged events are not republished every refresh cycle.
type Dedup struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	now   func() time.Time
	ll    *list.List               // most-recent at front
	items map[string]*list.Element // key -> element
}

type entry struct {
	key string
	exp time.Time
}

func NewDedup(maxKeys int, ttl time.Duration) *Dedup {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Dedup{cap: maxKeys, ttl: ttl, now: time.Now, ll: list.New(), items: make(map[string]*list.Element, maxKeys)}
}

func (d *Dedup) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seenLocked(key)
}

func (d *Dedup) seenLocked(key string) bool {
	el, ok := d.items[key]
	if !ok {
		return false
	}
	if d.now().Before(el.Value.(entry).exp) {
		d.ll.MoveToFront(el)
		return true
	}
	d.ll.Remove(el)
	delete(d.items, key)
	return false
}

func (d *Dedup) Mark(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.markLocked(key)
}

func (d *Dedup) markLocked(key string) {
	now := d.now()
	if el, ok := d.items[key]; ok {
		el.Value = entry{key: key, exp: now.Add(d.ttl)}
		d.ll.MoveToFront(el)
		return
	}
	d.items[key] = d.ll.PushFront(entry{key: key, exp: now.Add(d.ttl)})
	for d.ll.Len() > d.cap {
		d.evict(d.ll.Back())
	}
	// soft cleanup of expired at tail
	for t := d.ll.Back(); t != nil && !now.Before(t.Value.(entry).exp); t = d.ll.Back() {
		d.evict(t)
	}
}

func (d *Dedup) evict(el *list.Element) {
	d.ll.Remove(el)
	delete(d.items, el.Value.(entry).key)
}

// Fresh returns the keys not seen before and marks them, in input order.
func (d *Dedup) Fresh(keys []string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, k := range keys {
		if d.seenLocked(k) {
			continue
		}
		d.markLocked(k)
		out = append(out, k)
	}
	return out
}

// Forget drops keys, e.g. after a sink failed to accept them.
func (d *Dedup) Forget(keys []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range keys {
		if el, ok := d.items[k]; ok {
			d.evict(el)
		}
	}
}

func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ll.Len()
}
