package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarDate_ParseAndString(t *testing.T) {
	d, err := ParseCalendarDate("1994-07-23")
	require.NoError(t, err)
	assert.Equal(t, CalendarDate{Year: 1994, Month: 7, Day: 23}, d)
	assert.Equal(t, "1994-07-23", d.String())
}

func TestCalendarDate_ParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "23/07/1994", "1994-13-01", "1994-02-30", "not a date"} {
		_, err := ParseCalendarDate(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestCalendarDate_JSONRoundTrip(t *testing.T) {
	d := CalendarDate{Year: 2001, Month: 12, Day: 9}
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2001-12-09"`, string(raw))

	var back CalendarDate
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, d, back)
}

func TestCalendarDate_Valid(t *testing.T) {
	assert.True(t, CalendarDate{Year: 2024, Month: 2, Day: 29}.Valid())
	assert.False(t, CalendarDate{Year: 2023, Month: 2, Day: 29}.Valid())
	assert.False(t, CalendarDate{Year: 2023, Month: 0, Day: 1}.Valid())
}

func TestSubmissionPayload_MarshalFlattens(t *testing.T) {
	p := SubmissionPayload{
		Fields: map[string]any{"name": "Ana", "email": "a@c.com"},
		Attachments: map[string]SlotAttachments{
			"images": {
				New:      []NewAttachment{{TempID: "tmp-1", URL: "/u/1", Name: "face.png", Size: 512}},
				Existing: []ExistingAttachment{{ID: "9", Name: "old.png", URL: "/u/9"}},
			},
		},
		Mode:     ModeEdit,
		BranchID: "branch-3",
		RecordID: "42",
	}

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))

	assert.Equal(t, "Ana", body["name"])
	assert.Equal(t, "a@c.com", body["email"])
	assert.Equal(t, "edit", body["mode"])
	assert.Equal(t, "branch-3", body["branch_id"])
	assert.Equal(t, "42", body["id"])

	images, ok := body["images"].(map[string]any)
	require.True(t, ok)
	newList, ok := images["new"].([]any)
	require.True(t, ok)
	require.Len(t, newList, 1)
	first := newList[0].(map[string]any)
	assert.Equal(t, "tmp-1", first["temp_id"])
	assert.Equal(t, float64(512), first["size"])
}

func TestSubmissionPayload_OmitsEmptyMetadata(t *testing.T) {
	p := SubmissionPayload{Fields: map[string]any{"name": "Ana"}, Mode: ModeCreate}

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	_, hasBranch := body["branch_id"]
	_, hasID := body["id"]
	assert.False(t, hasBranch)
	assert.False(t, hasID)
}

func TestSubmissionPayload_TempIDs(t *testing.T) {
	p := SubmissionPayload{
		Attachments: map[string]SlotAttachments{
			"images":   {New: []NewAttachment{{TempID: "a"}, {TempID: "b"}}},
			"document": {New: []NewAttachment{{TempID: "c"}}},
		},
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, p.TempIDs())
}

func TestAttachmentRecord_Submittable(t *testing.T) {
	assert.True(t, (&AttachmentRecord{Status: AttachmentStatusDone, IsNew: true}).Submittable())
	assert.True(t, (&AttachmentRecord{Status: AttachmentStatusDone, IsExisting: true}).Submittable())
	assert.False(t, (&AttachmentRecord{Status: AttachmentStatusUploading, IsNew: true}).Submittable())
	assert.False(t, (&AttachmentRecord{Status: AttachmentStatusError, IsNew: true}).Submittable())
	// both flags set is a corrupt record and never submits
	assert.False(t, (&AttachmentRecord{Status: AttachmentStatusDone, IsNew: true, IsExisting: true}).Submittable())
}

func TestEnrollError_Format(t *testing.T) {
	err := NewErrorf(ErrCodeValidation, "is required").WithField("email")
	assert.Equal(t, "[VALIDATION_ERROR] field email: is required", err.Error())

	slotErr := NewError(ErrCodeAdmissionRejected, "too large").WithSlot("images")
	assert.Equal(t, "[ADMISSION_REJECTED] slot images: too large", slotErr.Error())
}

func TestEnrollError_Unwrap(t *testing.T) {
	cause := assert.AnError
	err := NewError(ErrCodeUploadFailed, "boom").WithCause(cause)
	assert.ErrorIs(t, err, cause)
}

func TestValidationResult_ToError(t *testing.T) {
	r := &ValidationResult{}
	r.AddError("steps[0].fields[1]", ErrCodeValidation, "duplicate field name")
	r.AddWarning("slots[0]", ErrCodeValidation, "large max_files")

	err := r.ToError()
	require.NotNil(t, err)

	enErr, ok := err.(*EnrollError)
	require.True(t, ok)
	assert.Equal(t, ErrCodeValidation, enErr.Code)
	assert.Equal(t, "duplicate field name", enErr.Message)
	assert.Equal(t, 1, enErr.Details["error_count"])
	assert.Equal(t, 1, enErr.Details["warning_count"])
}

func TestDefaultSlots(t *testing.T) {
	img := DefaultImageSlot("images", "image_file")
	assert.Equal(t, 10, img.MaxFiles)
	assert.Equal(t, int64(10*1024*1024), img.MaxSizeBytes())

	pdf := DefaultPDFSlot("document", "pdf_file")
	assert.Equal(t, 1, pdf.MaxFiles)
	assert.Equal(t, int64(5*1024*1024), pdf.MaxSizeBytes())
}
