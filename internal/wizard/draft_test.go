package wizard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitdesk/enrollkit/pkg/schema"
)

func TestDraft_MergeLastWriteWins(t *testing.T) {
	d := NewDraft(nil)

	d.Merge(map[string]any{"name": "Ada", "email": "ada@example.com"})
	d.Merge(map[string]any{"name": "Ada Lovelace"})

	got := d.Get()
	assert.Equal(t, "Ada Lovelace", got["name"])
	assert.Equal(t, "ada@example.com", got["email"])
	assert.Equal(t, 2, d.Len())
}

func TestDraft_MergeUntouchedKeysSurvive(t *testing.T) {
	d := NewDraft(map[string]any{"plan": "monthly"})

	d.Merge(map[string]any{"name": "Ada"})

	v, ok := d.Value("plan")
	require.True(t, ok)
	assert.Equal(t, "monthly", v)
}

func TestDraft_GetReturnsCopy(t *testing.T) {
	d := NewDraft(nil)
	d.Merge(map[string]any{"name": "Ada"})

	snap := d.Get()
	snap["name"] = "mutated"

	v, _ := d.Value("name")
	assert.Equal(t, "Ada", v)
}

func TestDraft_ResetRestoresInitial(t *testing.T) {
	d := NewDraft(map[string]any{"branch": "north"})
	d.Merge(map[string]any{"name": "Ada", "branch": "south"})

	d.Reset()

	got := d.Get()
	assert.Equal(t, map[string]any{"branch": "north"}, got)
}

func TestDraft_NormalizesTimeValues(t *testing.T) {
	born := time.Date(1990, time.March, 14, 23, 59, 0, 0, time.UTC)
	d := NewDraft(nil)

	d.Merge(map[string]any{"birth_date": born, "joined": &born, "gone": (*time.Time)(nil)})

	v, _ := d.Value("birth_date")
	assert.Equal(t, schema.CalendarDate{Year: 1990, Month: 3, Day: 14}, v)
	v, _ = d.Value("joined")
	assert.Equal(t, schema.CalendarDate{Year: 1990, Month: 3, Day: 14}, v)
	v, _ = d.Value("gone")
	assert.Nil(t, v)
}
