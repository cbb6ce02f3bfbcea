package model

import "math"

// Entry is either a provided value or the missing marker. The zero value is
// Missing.
type Entry struct {
	value    float64
	provided bool
}

// Provided wraps an observed value.
func Provided(v float64) Entry {
	return Entry{value: v, provided: true}
}

// Missing is the missing-value marker.
func Missing() Entry {
	return Entry{}
}

// Get returns the value and whether one was provided. A provided NaN counts
// as missing.
func (e Entry) Get() (float64, bool) {
	if !e.provided || math.IsNaN(e.value) {
		return math.NaN(), false
	}
	return e.value, true
}

// IsMissing reports whether the entry is the missing marker.
func (e Entry) IsMissing() bool {
	_, ok := e.Get()
	return !ok
}

// Values maps a base name (one entry per element) or an element id such as
// y[3] (one entry) to entries.
type Values map[string][]Entry

// Entries is a convenience for fully provided values.
func Entries(vs ...float64) []Entry {
	es := make([]Entry, len(vs))
	for i, v := range vs {
		es[i] = Provided(v)
	}
	return es
}
