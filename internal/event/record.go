package event

import (
	"beacon/internal/constants"
)

// Record is one analytics event: a free-form field map owned by the request
// that produced it. The normalizer and enrichment engine mutate it; after
// dispatch starts it is treated as read-only.
type Record map[string]interface{}

func (r Record) Get(name string) (interface{}, bool) {
	if r == nil {
		return nil, false
	}
	value, ok := r[name]
	return value, ok
}

func (r Record) GetString(name string) (string, bool) {
	value, ok := r.Get(name)
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

func (r Record) Set(name string, value interface{}) {
	r[name] = value
}

func (r Record) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// EventName returns the event field, or "unknown" when absent or not a
// string.
func (r Record) EventName() string {
	if name, ok := r.GetString(constants.FieldEvent); ok && name != "" {
		return name
	}
	return constants.DefaultEventName
}

// Identity returns the acting user's identity, preferring `principal` over
// `distinct_id`.
func (r Record) Identity() (string, bool) {
	if p, ok := r.GetString(constants.FieldPrincipal); ok && p != "" {
		return p, true
	}
	if d, ok := r.GetString(constants.FieldDistinctID); ok && d != "" {
		return d, true
	}
	return "", false
}

// Clone copies the top level of the record. Nested values are shared; the
// pipeline never mutates below the top level.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
