package wizard

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fitdesk/enrollkit/internal/rules"
	"github.com/fitdesk/enrollkit/pkg/schema"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneRegex = regexp.MustCompile(`^\+?[0-9][0-9 ()-]{5,20}$`)
)

// StepResult reports the outcome of a navigation attempt. A blocked Next
// carries field-keyed errors; it is not a Go error because validation
// failure is local and recoverable.
type StepResult struct {
	Advanced    bool
	Index       int
	StepID      string
	LastStep    bool
	FieldErrors map[string][]string
}

// OK reports whether the step's fields all validated.
func (r *StepResult) OK() bool {
	return len(r.FieldErrors) == 0
}

// Sequencer owns the ordered applicable step list and the current index,
// and gates forward navigation on the active step's validation. Validated
// values are merged into the draft; unrelated fields are never re-validated.
type Sequencer struct {
	def    *schema.WizardDefinition
	mode   schema.Mode
	branch string

	steps []schema.StepDefinition
	index int

	draft *Draft
	cel   *rules.CELEngine
	exprs *rules.ExprEngine

	finalValidated bool
}

// NewSequencer computes the applicable step sequence for the given mode and
// returns a sequencer positioned at the first step. Applicability is a pure
// function of the mode: it is computed once here and never mutated
// mid-sequence.
func NewSequencer(def *schema.WizardDefinition, mode schema.Mode, branch string, draft *Draft, cel *rules.CELEngine, exprs *rules.ExprEngine) (*Sequencer, error) {
	if len(def.Steps) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "wizard definition has no steps")
	}

	scope := rules.Scope{Mode: mode, Branch: branch, Metadata: def.Metadata}
	var steps []schema.StepDefinition
	for _, step := range def.Steps {
		if step.AppliesIf != "" {
			applies, err := cel.EvaluateBool(context.Background(), step.AppliesIf, scope.Data())
			if err != nil {
				return nil, err
			}
			if !applies {
				continue
			}
		}
		steps = append(steps, step)
	}
	if len(steps) == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"no applicable steps for mode %q", mode)
	}

	return &Sequencer{
		def:    def,
		mode:   mode,
		branch: branch,
		steps:  steps,
		draft:  draft,
		cel:    cel,
		exprs:  exprs,
	}, nil
}

// Index returns the current step index within the applicable sequence.
func (s *Sequencer) Index() int { return s.index }

// StepCount returns the number of applicable steps, not the static count.
func (s *Sequencer) StepCount() int { return len(s.steps) }

// Current returns the active step definition.
func (s *Sequencer) Current() schema.StepDefinition { return s.steps[s.index] }

// OnLastStep reports whether the active step is the final one.
func (s *Sequencer) OnLastStep() bool { return s.index == len(s.steps)-1 }

// FinalValidated reports whether the last step has passed validation at
// least once, i.e. the draft is assemblable into a submission payload.
func (s *Sequencer) FinalValidated() bool { return s.finalValidated }

// Next validates exactly the active step's fields against the given values.
// On success it merges the validated values into the draft and advances,
// unless already on the last step. On failure the index is unchanged, the
// draft is untouched, and field errors are returned for correction.
//
// The returned error is reserved for engine failures (e.g. a rule that does
// not compile); validation failure is reported through StepResult.
func (s *Sequencer) Next(ctx context.Context, values map[string]any) (*StepResult, error) {
	step := s.steps[s.index]

	validated, fieldErrs, err := s.validateStep(ctx, step, values)
	if err != nil {
		return nil, err
	}

	result := &StepResult{
		Index:    s.index,
		StepID:   step.ID,
		LastStep: s.OnLastStep(),
	}

	if len(fieldErrs) > 0 {
		result.FieldErrors = fieldErrs
		return result, nil
	}

	s.draft.Merge(validated)

	if s.OnLastStep() {
		s.finalValidated = true
	} else {
		s.index++
		result.Advanced = true
		result.Index = s.index
		result.LastStep = s.OnLastStep()
	}
	return result, nil
}

// Back decrements the index if possible. It never re-validates and never
// discards already-merged draft values.
func (s *Sequencer) Back() int {
	if s.index > 0 {
		s.index--
	}
	return s.index
}

// JumpTo unconditionally sets the index, for clickable step indicators in
// non-linear contexts. Jumping to a linear step is rejected.
func (s *Sequencer) JumpTo(index int) error {
	if index < 0 || index >= len(s.steps) {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"step index %d out of range [0,%d)", index, len(s.steps))
	}
	if index > s.index && s.steps[index].Linear {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"step %q only reachable through sequential navigation", s.steps[index].ID)
	}
	s.index = index
	return nil
}

// validateStep checks the step's fields against the merged view of draft
// plus incoming values. It returns the subset of values owned by the step
// (dates normalized) and any field errors.
func (s *Sequencer) validateStep(ctx context.Context, step schema.StepDefinition, values map[string]any) (map[string]any, map[string][]string, error) {
	// Merged view so requiredness predicates see everything entered so far.
	merged := s.draft.Get()
	for k, v := range values {
		merged[k] = v
	}
	scope := rules.Scope{Values: merged, Mode: s.mode, Branch: s.branch, Metadata: s.def.Metadata}

	validated := make(map[string]any, len(step.Fields))
	fieldErrs := make(map[string][]string)

	for _, f := range step.Fields {
		value, present := merged[f.Name]

		required := f.Required
		if f.RequiredIf != "" {
			req, err := s.cel.EvaluateBool(ctx, f.RequiredIf, scope.Data())
			if err != nil {
				return nil, nil, err
			}
			required = req
		}

		if isEmpty(value) {
			if required {
				fieldErrs[f.Name] = append(fieldErrs[f.Name], "is required")
			}
			// Optional empty fields still merge so a cleared value
			// overwrites a previously entered one.
			if present {
				validated[f.Name] = value
			}
			continue
		}

		normalized, msgs, err := s.checkField(ctx, f, value, merged)
		if err != nil {
			return nil, nil, err
		}
		if len(msgs) > 0 {
			fieldErrs[f.Name] = append(fieldErrs[f.Name], msgs...)
			continue
		}
		validated[f.Name] = normalized
	}

	return validated, fieldErrs, nil
}

// checkField applies format, range, length, and rule checks to a non-empty
// value. It returns the normalized value (dates become CalendarDate) and
// user-facing messages.
func (s *Sequencer) checkField(ctx context.Context, f schema.FieldSpec, value any, merged map[string]any) (any, []string, error) {
	var msgs []string
	normalized := value

	switch f.Format {
	case schema.FormatEmail:
		str, ok := value.(string)
		if !ok || !emailRegex.MatchString(str) {
			msgs = append(msgs, "is not a valid email")
		}
	case schema.FormatPhone:
		str, ok := value.(string)
		if !ok || !phoneRegex.MatchString(str) {
			msgs = append(msgs, "is not a valid phone number")
		}
	case schema.FormatDate:
		switch t := value.(type) {
		case schema.CalendarDate:
			if !t.Valid() {
				msgs = append(msgs, "is not a valid date")
			}
		case string:
			d, err := schema.ParseCalendarDate(t)
			if err != nil {
				msgs = append(msgs, "is not a valid date")
			} else {
				normalized = d
			}
		default:
			msgs = append(msgs, "is not a valid date")
		}
	case schema.FormatNumeric:
		n, ok := toFloat(value)
		if !ok {
			msgs = append(msgs, "is not a number")
			break
		}
		normalized = n
		if f.Min != nil && n < *f.Min {
			msgs = append(msgs, fmt.Sprintf("must be at least %v", *f.Min))
		}
		if f.Max != nil && n > *f.Max {
			msgs = append(msgs, fmt.Sprintf("must be at most %v", *f.Max))
		}
	}

	if f.MaxLen > 0 {
		if str, ok := value.(string); ok && len([]rune(str)) > f.MaxLen {
			msgs = append(msgs, fmt.Sprintf("must be at most %d characters", f.MaxLen))
		}
	}

	if f.Rule != "" && len(msgs) == 0 {
		out, err := s.exprs.Evaluate(ctx, f.Rule, map[string]any{
			"value":  normalized,
			"values": merged,
		})
		if err != nil {
			return nil, nil, err
		}
		if ok, isBool := out.(bool); !isBool || !ok {
			msgs = append(msgs, "is invalid")
		}
	}

	return normalized, msgs, nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
