package schema

// Mode selects between creating a new record and editing an existing one.
// It affects step applicability and attachment reconciliation.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// WizardDefinition is the static configuration of a multi-step wizard.
// Hosts define it once; the engine derives the applicable step sequence
// from it whenever the mode is set.
type WizardDefinition struct {
	Name     string           `json:"name"`
	Steps    []StepDefinition `json:"steps"`
	Slots    []SlotConfig     `json:"slots,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// StepDefinition describes one step: the fields it owns and when it applies.
type StepDefinition struct {
	ID     string      `json:"id"`
	Title  string      `json:"title,omitempty"`
	Fields []FieldSpec `json:"fields"`

	// AppliesIf is a CEL expression over {mode, metadata}. When it
	// evaluates to false the step is excluded from the sequence entirely.
	// Empty means the step always applies.
	AppliesIf string `json:"applies_if,omitempty"`

	// Linear steps only advance via Next/Back; non-linear steps may also
	// be reached through JumpTo (clickable step indicators).
	Linear bool `json:"linear,omitempty"`
}

// FieldFormat enumerates the built-in format rules.
type FieldFormat string

const (
	FormatNone    FieldFormat = ""
	FormatEmail   FieldFormat = "email"
	FormatDate    FieldFormat = "date"
	FormatNumeric FieldFormat = "numeric"
	FormatPhone   FieldFormat = "phone"
)

// FieldSpec declares the validation rules for a single field of a step.
type FieldSpec struct {
	Name     string      `json:"name"`
	Required bool        `json:"required,omitempty"`
	Format   FieldFormat `json:"format,omitempty"`

	// RequiredIf is a CEL expression over {values, mode}. When set it
	// supersedes Required and is recomputed from current values on every
	// validation, so toggling a governing checkbox immediately changes
	// whether this field is required.
	RequiredIf string `json:"required_if,omitempty"`

	// Rule is an Expr expression over {value, values} that must evaluate
	// to true when the field is non-empty.
	Rule string `json:"rule,omitempty"`

	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	MaxLen int      `json:"max_len,omitempty"`
}

// SlotConfig configures one independently-managed attachment list.
type SlotConfig struct {
	// Key is the draft field the assembled attachment section is merged
	// under (e.g. "images", "document").
	Key string `json:"key"`

	// FieldName is the multipart form field the file travels under.
	FieldName string `json:"field_name"`

	// Accept lists allowed MIME types; entries may use a "type/*" prefix
	// wildcard (e.g. "image/*", "application/pdf").
	Accept []string `json:"accept"`

	MaxFiles  int `json:"max_files"`
	MaxSizeMB int `json:"max_size_mb"`
}

// MaxSizeBytes returns the per-file size ceiling in bytes.
func (c SlotConfig) MaxSizeBytes() int64 {
	return int64(c.MaxSizeMB) * 1024 * 1024
}

// DefaultImageSlot returns the standard image slot configuration.
func DefaultImageSlot(key, fieldName string) SlotConfig {
	return SlotConfig{
		Key:       key,
		FieldName: fieldName,
		Accept:    []string{"image/*"},
		MaxFiles:  10,
		MaxSizeMB: 10,
	}
}

// DefaultPDFSlot returns the standard single-PDF slot configuration.
func DefaultPDFSlot(key, fieldName string) SlotConfig {
	return SlotConfig{
		Key:       key,
		FieldName: fieldName,
		Accept:    []string{"application/pdf"},
		MaxFiles:  1,
		MaxSizeMB: 5,
	}
}

// Slot returns the slot configuration for the given key.
func (d *WizardDefinition) Slot(key string) (SlotConfig, bool) {
	for _, s := range d.Slots {
		if s.Key == key {
			return s, true
		}
	}
	return SlotConfig{}, false
}

// Step returns the step definition with the given ID.
func (d *WizardDefinition) Step(id string) (StepDefinition, bool) {
	for _, s := range d.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return StepDefinition{}, false
}
