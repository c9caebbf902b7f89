package wizard

import (
	"context"
	"encoding/json"

	"github.com/fitdesk/enrollkit/pkg/schema"
)

// Submitter is the external collaborator that performs the final record
// create/update call. The returned error should carry the server-provided
// message when one is present.
type Submitter interface {
	Submit(ctx context.Context, payload schema.SubmissionPayload) (json.RawMessage, error)
}

// Assemble composes exactly one SubmissionPayload from the draft and the
// stagers' current record lists. Per slot it keeps records at done only,
// partitions them by new vs existing, and projects each to the minimal wire
// shape. It performs no I/O and the result is never mutated afterward.
//
// A record still uploading when assembly runs is excluded entirely; an
// upload completing afterwards is not merged in after the fact.
func Assemble(draft map[string]any, slots map[string][]*schema.AttachmentRecord, mode schema.Mode, branchID, recordID string) schema.SubmissionPayload {
	fields := make(map[string]any, len(draft))
	for k, v := range draft {
		fields[k] = v
	}
	// Slot keys are owned by the attachments section; a stale draft value
	// under the same key must not leak into the payload.
	for key := range slots {
		delete(fields, key)
	}

	attachments := make(map[string]schema.SlotAttachments, len(slots))
	for key, records := range slots {
		section := schema.SlotAttachments{
			New:      []schema.NewAttachment{},
			Existing: []schema.ExistingAttachment{},
		}
		for _, r := range records {
			if !r.Submittable() {
				continue
			}
			if r.IsNew {
				section.New = append(section.New, schema.NewAttachment{
					TempID: r.TempID,
					URL:    r.URL,
					Name:   r.Name,
					Size:   r.Size,
				})
			} else {
				section.Existing = append(section.Existing, schema.ExistingAttachment{
					ID:   r.ExistingID,
					Name: r.Name,
					URL:  r.URL,
				})
			}
		}
		attachments[key] = section
	}

	return schema.SubmissionPayload{
		Fields:      fields,
		Attachments: attachments,
		Mode:        mode,
		BranchID:    branchID,
		RecordID:    recordID,
	}
}
