package store

import (
	"context"
	"time"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Drafts (autosave / resume)
	SaveDraft(ctx context.Context, snap *DraftSnapshot) error
	GetDraft(ctx context.Context, wizardID string) (*DraftSnapshot, error)
	DeleteDraft(ctx context.Context, wizardID string) error
	ListDrafts(ctx context.Context) ([]*DraftSnapshot, error)

	// Activity log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, wizardID string, since int64) ([]*Event, error)

	// Temp upload handles
	RecordTempHandle(ctx context.Context, h *TempHandle) error
	ClaimTempHandles(ctx context.Context, tempIDs []string) error
	UnclaimedTempHandles(ctx context.Context, issuedBefore time.Time) ([]*TempHandle, error)
	DeleteTempHandles(ctx context.Context, tempIDs []string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
