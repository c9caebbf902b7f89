package schema

import "time"

// AttachmentRecord tracks one file across its staging lifecycle, from
// selection (or edit-mode hydration) until removal or wizard teardown.
// Exactly one of IsNew/IsExisting is true for any record that reaches done.
type AttachmentRecord struct {
	// LocalID is client-generated and stable for list rendering.
	LocalID string           `json:"local_id"`
	SlotKey string           `json:"slot_key"`
	Status  AttachmentStatus `json:"status"`

	IsNew      bool   `json:"is_new"`
	IsExisting bool   `json:"is_existing"`
	ExistingID string `json:"existing_id,omitempty"`

	// TempID is the server-issued handle, present only once a new upload
	// reaches done.
	TempID string `json:"temp_id,omitempty"`

	URL  string `json:"url,omitempty"`
	Name string `json:"name"`
	Size int64  `json:"size"`

	// Width/Height are captured during image admission; zero for non-images.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Submittable reports whether the record contributes to a submission payload.
func (r *AttachmentRecord) Submittable() bool {
	return r.Status == AttachmentStatusDone && (r.IsNew != r.IsExisting)
}

// ExistingAttachmentDesc is the collaborator's descriptor for an attachment
// already persisted on the record, used to hydrate edit-mode sessions.
type ExistingAttachmentDesc struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ValidAttachmentTransitions defines the allowed status transitions for
// staged attachments. Removal is allowed from every non-terminal state;
// removed records never resurrect.
var ValidAttachmentTransitions = map[AttachmentStatus][]AttachmentStatus{
	AttachmentStatusPending:   {AttachmentStatusUploading, AttachmentStatusRemoved},
	AttachmentStatusUploading: {AttachmentStatusDone, AttachmentStatusError, AttachmentStatusRemoved},
	AttachmentStatusDone:      {AttachmentStatusRemoved},
	AttachmentStatusError:     {AttachmentStatusRemoved},
	AttachmentStatusRemoved:   {},
}

// ValidWizardTransitions defines the allowed lifecycle transitions for a
// wizard session. A failed submission returns the session to active with
// all state preserved.
var ValidWizardTransitions = map[WizardStatus][]WizardStatus{
	WizardStatusActive:     {WizardStatusSubmitting, WizardStatusClosed},
	WizardStatusSubmitting: {WizardStatusActive, WizardStatusCompleted},
	WizardStatusCompleted:  {WizardStatusClosed},
	WizardStatusClosed:     {},
}
