package check

import "maps"

// Entry is the outcome of a check for a single key.
type Entry struct {
	// Key identifies what was observed (a host, a mount point, a URL).
	Key string

	// Status is true when the observed condition is healthy.
	Status bool

	// Message is the text announced when Status changes.
	Message string

	// Notify controls whether a change of Status is announced at all.
	// The change is still recorded when Notify is false.
	Notify bool

	// Metadata holds extra values persisted alongside Status.
	// A nil map is valid.
	Metadata map[string]any

	// Changed forces the entry to be recorded and announced even though
	// Status matches the recorded status. Checks set it after comparing
	// their own details against a StatusReader.
	Changed bool
}

// ResultSet is an ordered collection of entries produced by one run of a
// check. Keys are unique; setting an existing key replaces its entry in
// place. A ResultSet is not safe for concurrent mutation.
type ResultSet struct {
	order   []string
	entries map[string]Entry
}

// NewResultSet creates an empty ResultSet.
func NewResultSet() *ResultSet {
	return &ResultSet{
		entries: make(map[string]Entry),
	}
}

// Set records an entry under key. It returns false if key is empty.
func (r *ResultSet) Set(key string, status bool, message string, notify bool, metadata map[string]any) bool {
	if key == "" {
		return false
	}
	return r.Add(Entry{Key: key, Status: status, Message: message, Notify: notify, Metadata: metadata})
}

// Add records e under e.Key. It returns false if the key is empty.
func (r *ResultSet) Add(e Entry) bool {
	if e.Key == "" {
		return false
	}
	if r.entries == nil {
		r.entries = make(map[string]Entry)
	}
	if _, exists := r.entries[e.Key]; !exists {
		r.order = append(r.order, e.Key)
	}
	r.entries[e.Key] = e
	return true
}

// Get returns the entry stored under key.
func (r *ResultSet) Get(key string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	e, ok := r.entries[key]
	return e, ok
}

// Has reports whether key is present.
func (r *ResultSet) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Remove deletes key and reports whether it was present.
func (r *ResultSet) Remove(key string) bool {
	if _, ok := r.entries[key]; !ok {
		return false
	}
	delete(r.entries, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of entries.
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Keys returns the keys in insertion order.
func (r *ResultSet) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, len(r.order))
	copy(keys, r.order)
	return keys
}

// Entries returns the entries in insertion order.
func (r *ResultSet) Entries() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.entries[k])
	}
	return out
}

// Clone returns a copy that shares nothing mutable with r. Metadata maps
// are copied one level deep.
func (r *ResultSet) Clone() *ResultSet {
	c := NewResultSet()
	if r == nil {
		return c
	}
	for _, k := range r.order {
		e := r.entries[k]
		if e.Metadata != nil {
			e.Metadata = maps.Clone(e.Metadata)
		}
		c.Add(e)
	}
	return c
}
