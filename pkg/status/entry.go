package status

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Entry is the last known state of one (check, key) pair.
type Entry struct {
	Status   bool
	Metadata map[string]any

	// extra holds fields found on disk that this version does not
	// interpret. They are written back unchanged.
	extra map[string]json.RawMessage
}

// Extra returns a copy of the uninterpreted fields loaded with this entry.
func (e Entry) Extra() map[string]json.RawMessage {
	return maps.Clone(e.extra)
}

func (e Entry) clone() Entry {
	c := Entry{Status: e.Status}
	if e.Metadata != nil {
		c.Metadata = maps.Clone(e.Metadata)
	}
	if e.extra != nil {
		c.extra = maps.Clone(e.extra)
	}
	return c
}

// MarshalJSON writes the entry as {"status": ..., "metadata": ...} plus any
// preserved extra fields.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.extra)+2)
	for k, v := range e.extra {
		out[k] = v
	}
	out["status"] = e.Status
	if e.Metadata != nil {
		out["metadata"] = e.Metadata
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the object form and the bare boolean written by
// older releases.
func (e *Entry) UnmarshalJSON(b []byte) error {
	var legacy bool
	if err := json.Unmarshal(b, &legacy); err == nil {
		*e = Entry{Status: legacy}
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("status entry must be an object or a bool: %w", err)
	}

	var parsed Entry
	if v, ok := raw["status"]; ok {
		if err := json.Unmarshal(v, &parsed.Status); err != nil {
			return fmt.Errorf("invalid status field: %w", err)
		}
		delete(raw, "status")
	}
	if v, ok := raw["metadata"]; ok {
		if err := json.Unmarshal(v, &parsed.Metadata); err != nil {
			return fmt.Errorf("invalid metadata field: %w", err)
		}
		delete(raw, "metadata")
	}
	if len(raw) > 0 {
		parsed.extra = raw
	}

	*e = parsed
	return nil
}
