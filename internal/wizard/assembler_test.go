package wizard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitdesk/enrollkit/pkg/schema"
)

func TestAssemble_KeepsOnlyDoneRecords(t *testing.T) {
	slots := map[string][]*schema.AttachmentRecord{
		"images": {
			{LocalID: "a", SlotKey: "images", Status: schema.AttachmentStatusDone, IsNew: true, TempID: "tmp-1", URL: "/t/1", Name: "front.png", Size: 100},
			{LocalID: "b", SlotKey: "images", Status: schema.AttachmentStatusUploading, IsNew: true},
			{LocalID: "c", SlotKey: "images", Status: schema.AttachmentStatusError, IsNew: true},
			{LocalID: "d", SlotKey: "images", Status: schema.AttachmentStatusDone, IsExisting: true, ExistingID: "77", Name: "old.png", URL: "/f/77"},
		},
	}

	payload := Assemble(map[string]any{"name": "Ada"}, slots, schema.ModeCreate, "branch-1", "")

	require.Contains(t, payload.Attachments, "images")
	images := payload.Attachments["images"]
	require.Len(t, images.New, 1)
	assert.Equal(t, "tmp-1", images.New[0].TempID)
	require.Len(t, images.Existing, 1)
	assert.Equal(t, "77", images.Existing[0].ID)
}

func TestAssemble_EmptySlotYieldsEmptyArrays(t *testing.T) {
	slots := map[string][]*schema.AttachmentRecord{"images": nil}

	payload := Assemble(map[string]any{}, slots, schema.ModeCreate, "branch-1", "")

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	images, ok := decoded["images"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{}, images["new"])
	assert.Equal(t, []any{}, images["existing"])
}

func TestAssemble_StripsSlotKeysFromFields(t *testing.T) {
	slots := map[string][]*schema.AttachmentRecord{"images": nil}
	fields := map[string]any{"name": "Ada", "images": []any{"stale-ui-state"}}

	payload := Assemble(fields, slots, schema.ModeCreate, "branch-1", "")

	assert.NotContains(t, payload.Fields, "images")
	assert.Equal(t, "Ada", payload.Fields["name"])
	// The caller's map is not mutated.
	assert.Contains(t, fields, "images")
}

func TestAssemble_EditModeCarriesRecordID(t *testing.T) {
	payload := Assemble(map[string]any{}, nil, schema.ModeEdit, "branch-1", "rec-9")

	assert.Equal(t, schema.ModeEdit, payload.Mode)
	assert.Equal(t, "branch-1", payload.BranchID)
	assert.Equal(t, "rec-9", payload.RecordID)
}

func TestAssemble_TempIDsListsNewUploadsOnly(t *testing.T) {
	slots := map[string][]*schema.AttachmentRecord{
		"images": {
			{Status: schema.AttachmentStatusDone, IsNew: true, TempID: "tmp-1"},
			{Status: schema.AttachmentStatusDone, IsExisting: true, ExistingID: "77"},
		},
		"contract": {
			{Status: schema.AttachmentStatusDone, IsNew: true, TempID: "tmp-2"},
		},
	}

	payload := Assemble(map[string]any{}, slots, schema.ModeCreate, "b", "")

	assert.ElementsMatch(t, []string{"tmp-1", "tmp-2"}, payload.TempIDs())
}
