package schema

// Event type constants for the wizard activity log.
const (
	EventWizardStarted   = "wizard_started"
	EventWizardCompleted = "wizard_completed"
	EventWizardClosed    = "wizard_closed"

	EventStepAdvanced = "step_advanced"
	EventStepBlocked  = "step_blocked"
	EventStepBack     = "step_back"
	EventStepJumped   = "step_jumped"

	EventDraftReset    = "draft_reset"
	EventDraftSaved    = "draft_saved"
	EventDraftRestored = "draft_restored"

	EventUploadAdmitted    = "upload_admitted"
	EventUploadRejected    = "upload_rejected"
	EventUploadStarted     = "upload_started"
	EventUploadDone        = "upload_done"
	EventUploadFailed      = "upload_failed"
	EventAttachmentRemoved = "attachment_removed"
	EventSlotHydrated      = "slot_hydrated"

	EventSubmitStarted   = "submit_started"
	EventSubmitSucceeded = "submit_succeeded"
	EventSubmitFailed    = "submit_failed"

	EventTempHandleIssued     = "temp_handle_issued"
	EventTempHandleClaimed    = "temp_handle_claimed"
	EventTempHandlesDiscarded = "temp_handles_discarded"
)

// WizardStatus represents the lifecycle state of a wizard session.
type WizardStatus string

const (
	WizardStatusActive     WizardStatus = "active"
	WizardStatusSubmitting WizardStatus = "submitting"
	WizardStatusCompleted  WizardStatus = "completed"
	WizardStatusClosed     WizardStatus = "closed"
)

// AttachmentStatus represents the lifecycle state of a staged attachment.
type AttachmentStatus string

const (
	AttachmentStatusPending   AttachmentStatus = "pending"
	AttachmentStatusUploading AttachmentStatus = "uploading"
	AttachmentStatusDone      AttachmentStatus = "done"
	AttachmentStatusError     AttachmentStatus = "error"
	AttachmentStatusRemoved   AttachmentStatus = "removed"
)
