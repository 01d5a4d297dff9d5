// Package status keeps the last known state of every check key and
// persists it between runs.
//
// A Store is a two-level mapping check name -> key -> Entry. The File
// backend reads and writes it as JSON, replacing the file atomically so a
// reader always sees either the previous or the new snapshot.
package status

import (
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"sync"
)

// Store is the in-memory last-known state. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	checks map[string]map[string]Entry

	// opaque holds check sections that are not JSON objects. They
	// round-trip untouched until the check writes to its section.
	opaque map[string]json.RawMessage

	// opaqueKeys holds single entries that could not be decoded, by check
	// and key. Each round-trips untouched until its key is written.
	opaqueKeys map[string]map[string]json.RawMessage
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		checks: make(map[string]map[string]Entry),
	}
}

// Get returns the entry for (checkName, key), or def if there is none.
func (s *Store) Get(checkName, key string, def Entry) Entry {
	if e, ok := s.Lookup(checkName, key); ok {
		return e
	}
	return def
}

// Lookup returns the entry for (checkName, key) and whether it exists.
func (s *Store) Lookup(checkName, key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys, ok := s.checks[checkName]
	if !ok {
		return Entry{}, false
	}
	e, ok := keys[key]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// GetCheck returns a copy of all entries recorded for checkName, or def if
// the check has none.
func (s *Store) GetCheck(checkName string, def map[string]Entry) map[string]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys, ok := s.checks[checkName]
	if !ok {
		return def
	}
	out := make(map[string]Entry, len(keys))
	for k, e := range keys {
		out[k] = e.clone()
	}
	return out
}

// Set records e for (checkName, key). Extra fields already stored for the
// key are kept when e carries none.
func (s *Store) Set(checkName, key string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.checks[checkName]
	if !ok {
		keys = make(map[string]Entry)
		s.checks[checkName] = keys
		delete(s.opaque, checkName)
	}
	if raw, ok := s.opaqueKeys[checkName]; ok {
		delete(raw, key)
		if len(raw) == 0 {
			delete(s.opaqueKeys, checkName)
		}
	}
	e = e.clone()
	if prev, ok := keys[key]; ok && e.extra == nil {
		e.extra = prev.extra
	}
	keys[key] = e
}

// Checks returns the names of all checks with recorded state, sorted.
func (s *Store) Checks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the total number of recorded keys across all checks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, keys := range s.checks {
		n += len(keys)
	}
	return n
}

// Clear removes all recorded state.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checks = make(map[string]map[string]Entry)
	s.opaque = nil
	s.opaqueKeys = nil
}

// Statuses returns the boolean status of every recorded key.
func (s *Store) Statuses() map[string]map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]bool, len(s.checks))
	for name, keys := range s.checks {
		m := make(map[string]bool, len(keys))
		for k, e := range keys {
			m[k] = e.Status
		}
		out[name] = m
	}
	return out
}

// Snapshot returns a deep copy of the store.
func (s *Store) Snapshot() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := New()
	for name, keys := range s.checks {
		m := make(map[string]Entry, len(keys))
		for k, e := range keys {
			m[k] = e.clone()
		}
		c.checks[name] = m
	}
	if s.opaque != nil {
		c.opaque = make(map[string]json.RawMessage, len(s.opaque))
		for k, v := range s.opaque {
			c.opaque[k] = v
		}
	}
	if s.opaqueKeys != nil {
		c.opaqueKeys = make(map[string]map[string]json.RawMessage, len(s.opaqueKeys))
		for name, raw := range s.opaqueKeys {
			c.opaqueKeys[name] = maps.Clone(raw)
		}
	}
	return c
}

// MarshalJSON encodes the store as {"check": {"key": entry}}.
func (s *Store) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.checks)+len(s.opaque))
	for name, raw := range s.opaque {
		out[name] = raw
	}
	for name, keys := range s.checks {
		if len(s.opaqueKeys[name]) == 0 {
			out[name] = keys
			continue
		}
		section := make(map[string]any, len(keys)+len(s.opaqueKeys[name]))
		for k, e := range keys {
			section[k] = e
		}
		out[name] = section
	}
	for name, raw := range s.opaqueKeys {
		section, ok := out[name].(map[string]any)
		if !ok {
			section = make(map[string]any, len(raw))
			out[name] = section
		}
		for k, v := range raw {
			section[k] = v
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON replaces the store content with the decoded data. Check
// sections that are not objects are kept opaquely, and so are single
// entries that do not decode; the rest of their section stays readable.
func (s *Store) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("status data must be an object: %w", err)
	}

	checks := make(map[string]map[string]Entry, len(raw))
	var opaque map[string]json.RawMessage
	var opaqueKeys map[string]map[string]json.RawMessage
	for name, section := range raw {
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(section, &entries); err != nil || entries == nil {
			if opaque == nil {
				opaque = make(map[string]json.RawMessage)
			}
			opaque[name] = section
			continue
		}

		keys := make(map[string]Entry, len(entries))
		for key, data := range entries {
			var e Entry
			if err := json.Unmarshal(data, &e); err != nil {
				if opaqueKeys == nil {
					opaqueKeys = make(map[string]map[string]json.RawMessage)
				}
				if opaqueKeys[name] == nil {
					opaqueKeys[name] = make(map[string]json.RawMessage)
				}
				opaqueKeys[name][key] = data
				continue
			}
			keys[key] = e
		}
		if len(keys) > 0 || opaqueKeys[name] == nil {
			checks[name] = keys
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = checks
	s.opaque = opaque
	s.opaqueKeys = opaqueKeys
	return nil
}
