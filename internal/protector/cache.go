package protector

import "time"

// ttlCache is a tiny per-symbol value cache. Cycles run close together,
// so prices and ATRs are reused for a short window instead of hitting
// the data API once per position per cycle.
type ttlCache struct {
	ttl     time.Duration
	entries map[string]ttlEntry
}

type ttlEntry struct {
	value   float64
	fetched time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	return &ttlCache{ttl: ttl, entries: map[string]ttlEntry{}}
}

func (c *ttlCache) get(symbol string, now time.Time) (float64, bool) {
	e, ok := c.entries[symbol]
	if !ok || now.Sub(e.fetched) > c.ttl {
		return 0, false
	}
	return e.value, true
}

func (c *ttlCache) put(symbol string, v float64, now time.Time) {
	c.entries[symbol] = ttlEntry{value: v, fetched: now}
}

// suppressList tracks symbols whose stop submissions were rejected
// because the shares are already held by a bracket leg. Retrying
// immediately would just fail the same way, so each symbol goes quiet
// for a window.
type suppressList struct {
	until map[string]time.Time
}

func newSuppressList() *suppressList {
	return &suppressList{until: map[string]time.Time{}}
}

func (s *suppressList) active(symbol string, now time.Time) bool {
	t, ok := s.until[symbol]
	if !ok {
		return false
	}
	if now.After(t) {
		delete(s.until, symbol)
		return false
	}
	return true
}

func (s *suppressList) add(symbol string, until time.Time) {
	s.until[symbol] = until
}
