package crossing

import "time"

// DefaultCooldown is the suppression window applied after a counted crossing.
const DefaultCooldown = 500 * time.Millisecond

// CooldownRegistry remembers when each track ID was last counted. While an
// entry is active the ID cannot produce another crossing event.
type CooldownRegistry struct {
	duration time.Duration
	counted  map[int]time.Time
}

// NewCooldownRegistry creates a registry with the given window. A non-positive
// duration falls back to DefaultCooldown.
func NewCooldownRegistry(d time.Duration) *CooldownRegistry {
	if d <= 0 {
		d = DefaultCooldown
	}
	return &CooldownRegistry{duration: d, counted: make(map[int]time.Time)}
}

// Duration returns the configured cooldown window.
func (r *CooldownRegistry) Duration() time.Duration {
	return r.duration
}

// Record marks id as counted at now, replacing any earlier entry.
func (r *CooldownRegistry) Record(id int, now time.Time) {
	r.counted[id] = now
}

// IsActive reports whether id is still inside its cooldown window at now.
// An entry whose window has elapsed is inactive even before Sweep removes it.
func (r *CooldownRegistry) IsActive(id int, now time.Time) bool {
	ts, ok := r.counted[id]
	if !ok {
		return false
	}
	return !r.expired(ts, now)
}

// Sweep removes every entry with now - timestamp >= duration and returns how
// many were removed.
func (r *CooldownRegistry) Sweep(now time.Time) int {
	removed := 0
	for id, ts := range r.counted {
		if r.expired(ts, now) {
			delete(r.counted, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (r *CooldownRegistry) Len() int {
	return len(r.counted)
}

// Clear drops all entries.
func (r *CooldownRegistry) Clear() {
	clear(r.counted)
}

func (r *CooldownRegistry) expired(ts, now time.Time) bool {
	return now.Sub(ts) >= r.duration
}
