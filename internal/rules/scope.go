package rules

import "github.com/fitdesk/enrollkit/pkg/schema"

// Scope is the evaluation input every rule expression sees: the current form
// values overlaid on the draft, plus the wizard's mode, branch, and metadata.
type Scope struct {
	Values   map[string]any
	Mode     schema.Mode
	Branch   string
	Metadata map[string]any
}

// Data flattens the scope into the map shape the engines consume.
func (s Scope) Data() map[string]any {
	values := s.Values
	if values == nil {
		values = map[string]any{}
	}
	metadata := s.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return map[string]any{
		"values":   values,
		"mode":     string(s.Mode),
		"branch":   s.Branch,
		"metadata": metadata,
	}
}
