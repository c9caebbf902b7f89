package validation

import (
	"context"
	"fmt"

	"github.com/fitdesk/enrollkit/internal/rules"
	"github.com/fitdesk/enrollkit/pkg/schema"
)

// maxFilesWarnThreshold is where a slot's file cap stops looking like a
// configuration and starts looking like a typo.
const maxFilesWarnThreshold = 20

// checkSemantics enforces the rules JSON Schema cannot express: unique step
// IDs, single-step field ownership, and no collision between slot keys and
// field names. All issues are collected, not just the first.
func checkSemantics(def *schema.WizardDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	stepIDs := make(map[string]struct{}, len(def.Steps))
	fieldOwner := make(map[string]string)

	for i, step := range def.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		if _, exists := stepIDs[step.ID]; exists {
			result.AddError(path+".id", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate step id %q", step.ID))
		}
		stepIDs[step.ID] = struct{}{}

		for j, f := range step.Fields {
			if owner, exists := fieldOwner[f.Name]; exists {
				result.AddError(fmt.Sprintf("%s.fields[%d].name", path, j), schema.ErrCodeValidation,
					fmt.Sprintf("field %q declared by both step %q and step %q", f.Name, owner, step.ID))
				continue
			}
			fieldOwner[f.Name] = step.ID
		}
	}

	slotKeys := make(map[string]struct{}, len(def.Slots))
	for i, slot := range def.Slots {
		path := fmt.Sprintf("slots[%d]", i)
		if _, exists := slotKeys[slot.Key]; exists {
			result.AddError(path+".key", schema.ErrCodeValidation,
				fmt.Sprintf("duplicate slot key %q", slot.Key))
		}
		slotKeys[slot.Key] = struct{}{}

		// The assembled attachment section owns this payload key.
		if owner, exists := fieldOwner[slot.Key]; exists {
			result.AddError(path+".key", schema.ErrCodeValidation,
				fmt.Sprintf("slot key %q collides with a field of step %q", slot.Key, owner))
		}

		if slot.MaxFiles > maxFilesWarnThreshold {
			result.AddWarning(path+".max_files", schema.ErrCodeValidation,
				fmt.Sprintf("max_files %d is unusually large", slot.MaxFiles))
		}
	}

	return result
}

// CheckRules compiles every expression in the definition so a typo surfaces
// at registration time, not in the middle of a user's enrollment. It needs
// the engines because compile errors are engine-specific.
func CheckRules(ctx context.Context, def *schema.WizardDefinition, cel *rules.CELEngine, exprs *rules.ExprEngine) error {
	probe := rules.Scope{Values: map[string]any{}, Metadata: def.Metadata}

	for _, step := range def.Steps {
		if step.AppliesIf != "" {
			if _, err := cel.EvaluateBool(ctx, step.AppliesIf, probe.Data()); err != nil {
				if werr := wrapRuleError(err, fmt.Sprintf("step %q applies_if", step.ID)); werr != nil {
					return werr
				}
			}
		}
		for _, f := range step.Fields {
			if f.RequiredIf != "" {
				if _, err := cel.EvaluateBool(ctx, f.RequiredIf, probe.Data()); err != nil {
					if werr := wrapRuleError(err, fmt.Sprintf("field %q required_if", f.Name)); werr != nil {
						return werr
					}
				}
			}
			if f.Rule != "" {
				if _, err := exprs.Evaluate(ctx, f.Rule, map[string]any{
					"value":  nil,
					"values": map[string]any{},
				}); err != nil {
					if werr := wrapRuleError(err, fmt.Sprintf("field %q rule", f.Name)); werr != nil {
						return werr
					}
				}
			}
		}
	}
	return nil
}

// wrapRuleError keeps compile errors fatal but tolerates runtime errors:
// a probe evaluation over empty values may legitimately fail at runtime
// (e.g. a type mismatch on a missing key) even though the rule is sound.
func wrapRuleError(err error, where string) error {
	enErr, ok := err.(*schema.EnrollError)
	if ok && enErr.Code == schema.ErrCodeExecution {
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeValidation,
		"%s does not compile", where).WithCause(err)
}
