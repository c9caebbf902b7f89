package schema

import "encoding/json"

// NewAttachment is the minimal shape the collaborator expects for a freshly
// uploaded file referenced by its temporary handle.
type NewAttachment struct {
	TempID string `json:"temp_id"`
	URL    string `json:"url"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
}

// ExistingAttachment is the minimal shape for an attachment already attached
// to the persisted record.
type ExistingAttachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// SlotAttachments is the normalized attachments section for one slot,
// partitioned into newly uploaded and pre-existing files.
type SlotAttachments struct {
	New      []NewAttachment      `json:"new"`
	Existing []ExistingAttachment `json:"existing"`
}

// SubmissionPayload is the single outbound body for the final create/update
// call. It is constructed once by the assembler and never mutated afterward.
type SubmissionPayload struct {
	Fields      map[string]any
	Attachments map[string]SlotAttachments
	Mode        Mode
	BranchID    string
	RecordID    string
}

// MarshalJSON flattens the draft fields to the top level and merges each
// slot's attachments section under its field key, matching the wire shape
// the collaborator expects.
func (p SubmissionPayload) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(p.Fields)+len(p.Attachments)+3)
	for k, v := range p.Fields {
		body[k] = v
	}
	for key, slot := range p.Attachments {
		body[key] = slot
	}
	body["mode"] = string(p.Mode)
	if p.BranchID != "" {
		body["branch_id"] = p.BranchID
	}
	if p.RecordID != "" {
		body["id"] = p.RecordID
	}
	return json.Marshal(body)
}

// TempIDs returns every temporary handle referenced by the payload.
// Used to mark handles as claimed after a successful submission.
func (p SubmissionPayload) TempIDs() []string {
	var ids []string
	for _, slot := range p.Attachments {
		for _, n := range slot.New {
			ids = append(ids, n.TempID)
		}
	}
	return ids
}
