package crossbar

import (
	"strings"
	"sync"
)

// isWildcard reports whether pattern contains wildcard segments.
func isWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*>")
}

// matchPattern reports whether the concrete channel name matches pattern.
// Patterns are dot-separated segments: "*" matches exactly one segment and
// a terminal ">" matches one or more remaining segments.
func matchPattern(pattern, name string) bool {
	if pattern == name {
		return true
	}
	ps := strings.Split(pattern, ".")
	ns := strings.Split(name, ".")
	for i, seg := range ps {
		if seg == ">" {
			return len(ns) > i
		}
		if i >= len(ns) {
			return false
		}
		if seg == "*" {
			continue
		}
		if seg != ns[i] {
			return false
		}
	}
	return len(ps) == len(ns)
}

// wildcardEntry is one pending wildcard subscription. The bind closure
// recovers the subscription's body type and attaches it to a matching
// channel; it reports a type mismatch instead of binding when the channel
// holds a different type.
type wildcardEntry struct {
	subID   string
	pattern string
	bind    func(c anyChannel)
}

// wildcardIndex holds the pending wildcard subscriptions the registry
// consults on channel creation. Creation is the cold path, so matching is
// a linear scan over the live wildcard entries.
type wildcardIndex struct {
	mu      sync.RWMutex
	entries map[string]wildcardEntry // by subscription id
}

func newWildcardIndex() *wildcardIndex {
	return &wildcardIndex{entries: make(map[string]wildcardEntry)}
}

func (w *wildcardIndex) add(e wildcardEntry) {
	w.mu.Lock()
	w.entries[e.subID] = e
	w.mu.Unlock()
}

func (w *wildcardIndex) remove(subID string) {
	w.mu.Lock()
	delete(w.entries, subID)
	w.mu.Unlock()
}

func (w *wildcardIndex) count() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entries)
}

// bindMatching attaches every wildcard subscription whose pattern matches
// the new channel. A system channel only binds patterns that carry the
// system prefix themselves. Binds run outside the index lock; callers must
// not hold the registry creation lock.
func (w *wildcardIndex) bindMatching(c anyChannel, isSystem func(string) bool) {
	name := c.name()
	systemChannel := isSystem(name)
	w.mu.RLock()
	matched := make([]wildcardEntry, 0, 4)
	for _, e := range w.entries {
		if systemChannel && !isSystem(e.pattern) {
			continue
		}
		if matchPattern(e.pattern, name) {
			matched = append(matched, e)
		}
	}
	w.mu.RUnlock()

	for _, e := range matched {
		e.bind(c)
	}
}
