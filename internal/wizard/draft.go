package wizard

import (
	"sync"
	"time"

	"github.com/fitdesk/enrollkit/pkg/schema"
)

// Draft is the single source of truth for everything entered so far,
// independent of which step is visible. Keys are stable across the wizard's
// lifetime; a merge overwrites identically-named keys and leaves the rest
// untouched (last write wins). It is never partially rolled back.
type Draft struct {
	mu      sync.RWMutex
	initial map[string]any
	values  map[string]any
}

// NewDraft creates a draft seeded with the given initial values (may be nil).
func NewDraft(initial map[string]any) *Draft {
	d := &Draft{
		initial: make(map[string]any, len(initial)),
		values:  make(map[string]any, len(initial)),
	}
	for k, v := range initial {
		nv := normalizeValue(v)
		d.initial[k] = nv
		d.values[k] = nv
	}
	return d
}

// Merge shallow-merges a partial mapping into the draft. Later calls
// overwrite identically-named keys; keys absent from partial are untouched.
// Date values are normalized to schema.CalendarDate at this boundary.
func (d *Draft) Merge(partial map[string]any) {
	if len(partial) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range partial {
		d.values[k] = normalizeValue(v)
	}
}

// Get returns a copy of the full current draft.
func (d *Draft) Get() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]any, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// Value returns a single draft value.
func (d *Draft) Value(key string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.values[key]
	return v, ok
}

// Len returns the number of keys currently in the draft.
func (d *Draft) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.values)
}

// Reset clears the draft back to its initial values. Invoked only after a
// confirmed successful submission or explicit cancellation, never on a
// failed submission.
func (d *Draft) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values = make(map[string]any, len(d.initial))
	for k, v := range d.initial {
		d.values[k] = v
	}
}

// normalizeValue converts ambiguous date representations to CalendarDate.
// All other values pass through unchanged; string-typed dates are converted
// by the sequencer, which knows the field formats.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return schema.DateOf(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return schema.DateOf(*t)
	default:
		return v
	}
}
