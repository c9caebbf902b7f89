package wizard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitdesk/enrollkit/internal/rules"
	"github.com/fitdesk/enrollkit/pkg/schema"
)

func floatPtr(f float64) *float64 { return &f }

func newTestSequencer(t *testing.T, def *schema.WizardDefinition, mode schema.Mode) (*Sequencer, *Draft) {
	t.Helper()
	cel, err := rules.NewCELEngine()
	require.NoError(t, err)
	draft := NewDraft(nil)
	seq, err := NewSequencer(def, mode, "branch-1", draft, cel, rules.NewExprEngine())
	require.NoError(t, err)
	return seq, draft
}

func memberDefinition() *schema.WizardDefinition {
	return &schema.WizardDefinition{
		Name: "member-enrollment",
		Steps: []schema.StepDefinition{
			{
				ID:    "identity",
				Title: "Identity",
				Fields: []schema.FieldSpec{
					{Name: "name", Required: true},
					{Name: "email", Required: true, Format: schema.FormatEmail},
				},
			},
			{
				ID:    "membership",
				Title: "Membership",
				Fields: []schema.FieldSpec{
					{Name: "role", Required: true},
				},
			},
		},
	}
}

func TestSequencer_TwoStepWalkthrough(t *testing.T) {
	seq, draft := newTestSequencer(t, memberDefinition(), schema.ModeCreate)
	ctx := context.Background()

	// Empty first step blocks with per-field errors and no movement.
	result, err := seq.Next(ctx, map[string]any{})
	require.NoError(t, err)
	assert.False(t, result.OK())
	assert.Contains(t, result.FieldErrors, "name")
	assert.Contains(t, result.FieldErrors, "email")
	assert.Equal(t, 0, seq.Index())
	assert.Equal(t, 0, draft.Len())

	// Bad email is still blocked; the valid name is not merged.
	result, err = seq.Next(ctx, map[string]any{"name": "Ada", "email": "not-an-email"})
	require.NoError(t, err)
	assert.Equal(t, []string{"is not a valid email"}, result.FieldErrors["email"])
	assert.NotContains(t, result.FieldErrors, "name")
	assert.Equal(t, 0, draft.Len())

	// Valid values merge and advance.
	result, err = seq.Next(ctx, map[string]any{"name": "Ada", "email": "ada@example.com"})
	require.NoError(t, err)
	assert.True(t, result.Advanced)
	assert.Equal(t, 1, result.Index)
	assert.True(t, result.LastStep)
	assert.Equal(t, "Ada", mustValue(t, draft, "name"))

	// Last step validates without advancing past the end.
	result, err = seq.Next(ctx, map[string]any{"role": "member"})
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.False(t, result.Advanced)
	assert.Equal(t, 1, seq.Index())
	assert.True(t, seq.FinalValidated())
	assert.Equal(t, "member", mustValue(t, draft, "role"))
}

func mustValue(t *testing.T, d *Draft, key string) any {
	t.Helper()
	v, ok := d.Value(key)
	require.True(t, ok, "draft missing %q", key)
	return v
}

func TestSequencer_BackNeverRevalidates(t *testing.T) {
	seq, draft := newTestSequencer(t, memberDefinition(), schema.ModeCreate)
	ctx := context.Background()

	_, err := seq.Next(ctx, map[string]any{"name": "Ada", "email": "ada@example.com"})
	require.NoError(t, err)
	require.Equal(t, 1, seq.Index())

	assert.Equal(t, 0, seq.Back())
	assert.Equal(t, 0, seq.Back())
	assert.Equal(t, "Ada", mustValue(t, draft, "name"))
}

func TestSequencer_ApplicabilityByMode(t *testing.T) {
	def := memberDefinition()
	def.Steps = append(def.Steps, schema.StepDefinition{
		ID:        "credentials",
		AppliesIf: `mode == "create"`,
		Fields:    []schema.FieldSpec{{Name: "password", Required: true}},
	})

	create, _ := newTestSequencer(t, def, schema.ModeCreate)
	assert.Equal(t, 3, create.StepCount())

	edit, _ := newTestSequencer(t, def, schema.ModeEdit)
	assert.Equal(t, 2, edit.StepCount())
}

func TestSequencer_ConditionalRequiredness(t *testing.T) {
	def := &schema.WizardDefinition{
		Name: "guardian",
		Steps: []schema.StepDefinition{
			{
				ID: "guardian",
				Fields: []schema.FieldSpec{
					{Name: "age", Required: true, Format: schema.FormatNumeric},
					{Name: "guardian_name", RequiredIf: `double(values.age) < 18.0`},
				},
			},
		},
	}
	seq, _ := newTestSequencer(t, def, schema.ModeCreate)
	ctx := context.Background()

	result, err := seq.Next(ctx, map[string]any{"age": 15})
	require.NoError(t, err)
	assert.Contains(t, result.FieldErrors, "guardian_name")

	result, err = seq.Next(ctx, map[string]any{"age": 21})
	require.NoError(t, err)
	assert.True(t, result.OK())
}

func TestSequencer_NumericRangeAndRule(t *testing.T) {
	def := &schema.WizardDefinition{
		Name: "plan",
		Steps: []schema.StepDefinition{
			{
				ID: "plan",
				Fields: []schema.FieldSpec{
					{Name: "sessions", Format: schema.FormatNumeric, Min: floatPtr(1), Max: floatPtr(30)},
					{Name: "code", Rule: `len(value) == 6`, MaxLen: 6},
				},
			},
		},
	}
	seq, draft := newTestSequencer(t, def, schema.ModeCreate)
	ctx := context.Background()

	result, err := seq.Next(ctx, map[string]any{"sessions": 45, "code": "AB"})
	require.NoError(t, err)
	assert.Equal(t, []string{"must be at most 30"}, result.FieldErrors["sessions"])
	assert.Equal(t, []string{"is invalid"}, result.FieldErrors["code"])

	result, err = seq.Next(ctx, map[string]any{"sessions": "12", "code": "AB1234"})
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Equal(t, float64(12), mustValue(t, draft, "sessions"))
}

func TestSequencer_DateNormalization(t *testing.T) {
	def := &schema.WizardDefinition{
		Name: "dates",
		Steps: []schema.StepDefinition{
			{ID: "dates", Fields: []schema.FieldSpec{{Name: "birth_date", Format: schema.FormatDate}}},
		},
	}
	seq, draft := newTestSequencer(t, def, schema.ModeCreate)
	ctx := context.Background()

	result, err := seq.Next(ctx, map[string]any{"birth_date": "1990-03-14"})
	require.NoError(t, err)
	require.True(t, result.OK())
	assert.Equal(t, schema.CalendarDate{Year: 1990, Month: 3, Day: 14}, mustValue(t, draft, "birth_date"))

	result, err = seq.Next(ctx, map[string]any{"birth_date": "14/03/1990"})
	require.NoError(t, err)
	assert.Equal(t, []string{"is not a valid date"}, result.FieldErrors["birth_date"])
}

func TestSequencer_ClearedOptionalValueOverwrites(t *testing.T) {
	def := &schema.WizardDefinition{
		Name: "notes",
		Steps: []schema.StepDefinition{
			{ID: "notes", Fields: []schema.FieldSpec{{Name: "notes"}}},
		},
	}
	seq, draft := newTestSequencer(t, def, schema.ModeCreate)
	ctx := context.Background()

	_, err := seq.Next(ctx, map[string]any{"notes": "call back"})
	require.NoError(t, err)
	assert.Equal(t, "call back", mustValue(t, draft, "notes"))

	_, err = seq.Next(ctx, map[string]any{"notes": ""})
	require.NoError(t, err)
	assert.Equal(t, "", mustValue(t, draft, "notes"))
}

func TestSequencer_JumpTo(t *testing.T) {
	def := memberDefinition()
	def.Steps[1].Linear = true
	seq, _ := newTestSequencer(t, def, schema.ModeCreate)

	err := seq.JumpTo(1)
	require.Error(t, err)
	var enErr *schema.EnrollError
	require.ErrorAs(t, err, &enErr)
	assert.Equal(t, schema.ErrCodeValidation, enErr.Code)

	require.Error(t, seq.JumpTo(5))
	require.NoError(t, seq.JumpTo(0))
}
