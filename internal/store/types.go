package store

import (
	"time"

	"github.com/fitdesk/enrollkit/pkg/schema"
)

// Event is an immutable entry in the wizard activity log.
type Event struct {
	ID        int64          `json:"id"`
	WizardID  string         `json:"wizard_id"`
	StepID    string         `json:"step_id,omitempty"`
	Slot      string         `json:"slot,omitempty"`
	Type      string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Sequence  int64          `json:"sequence"`
}

// DraftSnapshot is a persisted point-in-time copy of a wizard session's
// draft, used to resume an interrupted enrollment. Fields are encoded as a
// msgpack blob.
type DraftSnapshot struct {
	WizardID   string      `json:"wizard_id"`
	Definition string      `json:"definition"`
	Mode       schema.Mode `json:"mode"`
	BranchID   string      `json:"branch_id,omitempty"`
	RecordID   string      `json:"record_id,omitempty"`
	StepIndex  int         `json:"step_index"`
	Fields     []byte      `json:"-"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// TempHandle tracks a server-issued temporary upload handle from issuance
// until it is claimed by a successful submission or discarded by the janitor.
type TempHandle struct {
	TempID    string     `json:"temp_id"`
	WizardID  string     `json:"wizard_id"`
	Slot      string     `json:"slot"`
	URL       string     `json:"url,omitempty"`
	Name      string     `json:"name,omitempty"`
	IssuedAt  time.Time  `json:"issued_at"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}
