package wizard

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fitdesk/enrollkit/internal/catalog"
	"github.com/fitdesk/enrollkit/internal/logging"
	"github.com/fitdesk/enrollkit/internal/rules"
	"github.com/fitdesk/enrollkit/internal/staging"
	"github.com/fitdesk/enrollkit/internal/store"
	"github.com/fitdesk/enrollkit/pkg/schema"
)

// RecordFetcher retrieves the full record for edit-mode hydration.
type RecordFetcher interface {
	FetchRecord(ctx context.Context, recordID string) (map[string]any, error)
}

// DraftStore is the optional persistence surface for autosave/resume and
// temp-handle tracking. Satisfied by store.LibSQLStore.
type DraftStore interface {
	EventAppender
	SaveDraft(ctx context.Context, snap *store.DraftSnapshot) error
	GetDraft(ctx context.Context, wizardID string) (*store.DraftSnapshot, error)
	DeleteDraft(ctx context.Context, wizardID string) error
	RecordTempHandle(ctx context.Context, h *store.TempHandle) error
	ClaimTempHandles(ctx context.Context, tempIDs []string) error
}

// SessionConfig wires one wizard session. Uploader and Submitter are
// required; everything else is optional except Fetcher in edit mode.
type SessionConfig struct {
	Definition *schema.WizardDefinition
	Mode       schema.Mode
	BranchID   string
	RecordID   string

	// Initial seeds the draft (create-mode defaults).
	Initial map[string]any

	Uploader  staging.Uploader
	Submitter Submitter
	Fetcher   RecordFetcher

	// HydrationMapping is an optional jq expression reshaping the fetched
	// record into draft field names. Attachment slot keys are consumed
	// separately and must survive the mapping (or be absent from it).
	HydrationMapping string

	Catalog  *catalog.Provider
	Appender EventAppender
	Store    DraftStore
	Logger   *slog.Logger
}

// Session is one wizard instance: it exclusively owns its draft, its step
// sequence, and its attachment stagers for its lifetime. Create one per
// hosting modal or page; sessions are never shared.
type Session struct {
	id  string
	cfg SessionConfig

	draft    *Draft
	seq      *Sequencer
	stagers  map[string]*staging.Stager
	slotKeys []string

	fsm      *FSM
	statusMu sync.Mutex
	status   schema.WizardStatus

	cel   *rules.CELEngine
	exprs *rules.ExprEngine
	jq    *rules.GoJQEngine

	logger *slog.Logger
}

// noopAppender drops events when no appender is configured.
type noopAppender struct{}

func (noopAppender) AppendEvent(context.Context, *store.Event) error { return nil }

// NewSession builds a session for the given definition and mode. The
// applicable step list is computed here and stays fixed for the session's
// lifetime.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Definition == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "nil wizard definition")
	}
	if cfg.Uploader == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "uploader is required")
	}
	if cfg.Submitter == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "submitter is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = schema.ModeCreate
	}
	if cfg.Mode == schema.ModeEdit && cfg.Fetcher == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "edit mode requires a record fetcher")
	}
	if cfg.Appender == nil {
		if cfg.Store != nil {
			cfg.Appender = cfg.Store
		} else {
			cfg.Appender = noopAppender{}
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	cel, err := rules.NewCELEngine()
	if err != nil {
		return nil, err
	}
	exprs := rules.NewExprEngine()

	draft := NewDraft(cfg.Initial)
	seq, err := NewSequencer(cfg.Definition, cfg.Mode, cfg.BranchID, draft, cel, exprs)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		draft:   draft,
		seq:     seq,
		stagers: make(map[string]*staging.Stager, len(cfg.Definition.Slots)),
		fsm:     NewFSM(cfg.Appender),
		status:  schema.WizardStatusActive,
		cel:     cel,
		exprs:   exprs,
		jq:      rules.NewGoJQEngine(),
		logger:  cfg.Logger,
	}

	for _, slot := range cfg.Definition.Slots {
		slot := slot
		s.slotKeys = append(s.slotKeys, slot.Key)
		s.stagers[slot.Key] = staging.NewStager(staging.Config{
			Slot:     slot,
			Uploader: cfg.Uploader,
			WizardID: s.id,
			Appender: cfg.Appender,
			Logger:   cfg.Logger,
			OnTempIssued: func(rec schema.AttachmentRecord) {
				s.recordTempHandle(rec)
			},
		})
	}

	s.emit(context.Background(), schema.EventWizardStarted, "", map[string]any{
		"definition": cfg.Definition.Name,
		"mode":       string(cfg.Mode),
	})
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Mode returns the session's mode.
func (s *Session) Mode() schema.Mode { return s.cfg.Mode }

// Definition returns the wizard definition the session was built from.
func (s *Session) Definition() *schema.WizardDefinition { return s.cfg.Definition }

// Status returns the session lifecycle state.
func (s *Session) Status() schema.WizardStatus {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// transition atomically checks and applies a lifecycle transition, so two
// racing Submit calls cannot both pass the active→submitting guard.
func (s *Session) transition(ctx context.Context, to schema.WizardStatus) error {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if err := s.fsm.Transition(ctx, s.id, s.status, to); err != nil {
		return err
	}
	s.status = to
	return nil
}

// Catalog returns the injected reference-data provider, if any.
func (s *Session) Catalog() *catalog.Provider { return s.cfg.Catalog }

// Step returns the active step definition.
func (s *Session) Step() schema.StepDefinition { return s.seq.Current() }

// Index returns the active step index within the applicable sequence.
func (s *Session) Index() int { return s.seq.Index() }

// StepCount returns the number of applicable steps for the session's mode.
func (s *Session) StepCount() int { return s.seq.StepCount() }

// Draft returns a copy of everything entered so far.
func (s *Session) Draft() map[string]any { return s.draft.Get() }

// Slot returns the stager for the given slot key.
func (s *Session) Slot(key string) (*staging.Stager, bool) {
	st, ok := s.stagers[key]
	return st, ok
}

// SelectFiles stages files into a slot, starting their uploads immediately.
func (s *Session) SelectFiles(ctx context.Context, slotKey string, files ...staging.File) ([]schema.AttachmentRecord, []error) {
	st, ok := s.stagers[slotKey]
	if !ok {
		return nil, []error{schema.NewErrorf(schema.ErrCodeNotFound, "unknown slot %q", slotKey).WithSlot(slotKey)}
	}
	return st.Select(logging.WithWizardID(ctx, s.id), files...)
}

// UploadsInFlight reports whether any slot still has a pending or uploading
// record. Hosts should disable the final submit control while true.
func (s *Session) UploadsInFlight() bool {
	for _, st := range s.stagers {
		if st.InFlight() {
			return true
		}
	}
	return false
}

// Next validates the active step against the given values and advances on
// success. Validation failure is reported through the StepResult, never as
// a Go error.
func (s *Session) Next(ctx context.Context, values map[string]any) (*StepResult, error) {
	ctx = logging.WithWizardID(ctx, s.id)
	result, err := s.seq.Next(ctx, values)
	if err != nil {
		return nil, err
	}
	if result.OK() {
		s.emit(ctx, schema.EventStepAdvanced, result.StepID, map[string]any{"index": result.Index})
	} else {
		fields := make([]string, 0, len(result.FieldErrors))
		for f := range result.FieldErrors {
			fields = append(fields, f)
		}
		s.emit(ctx, schema.EventStepBlocked, result.StepID, map[string]any{"fields": fields})
	}
	return result, nil
}

// Back moves to the previous step without re-validating or discarding
// already-merged draft values.
func (s *Session) Back(ctx context.Context) int {
	index := s.seq.Back()
	s.emit(ctx, schema.EventStepBack, s.seq.Current().ID, map[string]any{"index": index})
	return index
}

// JumpTo sets the step index directly, for non-linear step indicators.
func (s *Session) JumpTo(ctx context.Context, index int) error {
	if err := s.seq.JumpTo(index); err != nil {
		return err
	}
	s.emit(ctx, schema.EventStepJumped, s.seq.Current().ID, map[string]any{"index": index})
	return nil
}

// Hydrate populates the draft and the stagers from the collaborator's
// record. Edit mode only; call once, before the user starts editing.
func (s *Session) Hydrate(ctx context.Context) error {
	if s.cfg.Mode != schema.ModeEdit {
		return schema.NewError(schema.ErrCodeValidation, "hydrate is only valid in edit mode")
	}
	ctx = logging.WithWizardID(ctx, s.id)

	record, err := s.cfg.Fetcher.FetchRecord(ctx, s.cfg.RecordID)
	if err != nil {
		return err
	}

	// Attachment descriptors are consumed per slot before field mapping.
	for _, key := range s.slotKeys {
		descs, err := attachmentDescs(record[key])
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"malformed attachment list for slot %q", key).WithSlot(key).WithCause(err)
		}
		if len(descs) > 0 {
			s.stagers[key].HydrateExisting(ctx, descs)
		}
		delete(record, key)
	}

	fields := record
	if s.cfg.HydrationMapping != "" {
		fields, err = s.jq.EvaluateObject(ctx, s.cfg.HydrationMapping, record)
		if err != nil {
			return err
		}
	}
	s.normalizeDates(fields)
	s.draft.Merge(fields)

	s.emit(ctx, schema.EventDraftRestored, "", map[string]any{"record_id": s.cfg.RecordID})
	return nil
}

// Submit assembles the one submission payload and hands it to the external
// submitter. On success the whole wizard state is torn down; on failure the
// draft and attachments are preserved for correction and the in-flight
// guard is released so resubmission is possible.
func (s *Session) Submit(ctx context.Context) (json.RawMessage, error) {
	if !s.seq.FinalValidated() {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"final step has not been validated")
	}
	ctx = logging.WithWizardID(ctx, s.id)

	// The active→submitting edge is the double-submission guard: while a
	// call is outstanding the transition is invalid and this returns
	// immediately with no second network call.
	if err := s.transition(ctx, schema.WizardStatusSubmitting); err != nil {
		return nil, err
	}

	payload := Assemble(s.draft.Get(), s.slotLists(), s.cfg.Mode, s.cfg.BranchID, s.cfg.RecordID)

	response, err := s.cfg.Submitter.Submit(ctx, payload)
	if err != nil {
		// Preserve all user state; only the guard is released.
		if terr := s.transition(ctx, schema.WizardStatusActive); terr != nil {
			s.logger.ErrorContext(ctx, "release submit guard", slog.String("error", terr.Error()))
		}
		if _, ok := err.(*schema.EnrollError); ok {
			return nil, err
		}
		return nil, schema.NewErrorf(schema.ErrCodeSubmitFailed,
			"submission failed, please try again").WithCause(err)
	}

	if ids := payload.TempIDs(); len(ids) > 0 {
		if s.cfg.Store != nil {
			if cerr := s.cfg.Store.ClaimTempHandles(ctx, ids); cerr != nil {
				s.logger.WarnContext(ctx, "claim temp handles", slog.String("error", cerr.Error()))
			}
		}
		s.emit(ctx, schema.EventTempHandleClaimed, "", map[string]any{"temp_ids": ids})
	}
	if s.cfg.Store != nil {
		if derr := s.cfg.Store.DeleteDraft(ctx, s.id); derr != nil {
			s.logger.WarnContext(ctx, "delete saved draft", slog.String("error", derr.Error()))
		}
	}

	s.draft.Reset()
	for _, st := range s.stagers {
		st.Clear()
	}
	s.emit(ctx, schema.EventDraftReset, "", nil)
	if terr := s.transition(ctx, schema.WizardStatusCompleted); terr != nil {
		s.logger.ErrorContext(ctx, "complete session", slog.String("error", terr.Error()))
	}
	s.emit(ctx, schema.EventWizardCompleted, "", nil)
	return response, nil
}

// SaveDraft persists a resumable snapshot of the session.
func (s *Session) SaveDraft(ctx context.Context) error {
	if s.cfg.Store == nil {
		return schema.NewError(schema.ErrCodeStore, "no draft store configured")
	}
	blob, err := store.EncodeFields(s.draft.Get())
	if err != nil {
		return err
	}
	snap := &store.DraftSnapshot{
		WizardID:   s.id,
		Definition: s.cfg.Definition.Name,
		Mode:       s.cfg.Mode,
		BranchID:   s.cfg.BranchID,
		RecordID:   s.cfg.RecordID,
		StepIndex:  s.seq.Index(),
		Fields:     blob,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.cfg.Store.SaveDraft(ctx, snap); err != nil {
		return err
	}
	s.emit(ctx, schema.EventDraftSaved, "", nil)
	return nil
}

// RestoreDraft merges a previously saved snapshot into the session and
// repositions the sequencer.
func (s *Session) RestoreDraft(ctx context.Context, wizardID string) error {
	if s.cfg.Store == nil {
		return schema.NewError(schema.ErrCodeStore, "no draft store configured")
	}
	snap, err := s.cfg.Store.GetDraft(ctx, wizardID)
	if err != nil {
		return err
	}
	fields, err := store.DecodeFields(snap.Fields)
	if err != nil {
		return err
	}
	s.draft.Merge(fields)
	if snap.StepIndex > 0 && snap.StepIndex < s.seq.StepCount() {
		s.seq.index = snap.StepIndex
	}
	s.emit(ctx, schema.EventDraftRestored, "", map[string]any{"wizard_id": wizardID})
	return nil
}

// Close tears the session down. Local state is discarded; requests already
// issued are not aborted.
func (s *Session) Close(ctx context.Context) error {
	if s.Status() == schema.WizardStatusClosed {
		return nil
	}
	if err := s.transition(ctx, schema.WizardStatusClosed); err != nil {
		return err
	}
	for _, st := range s.stagers {
		st.Clear()
	}
	return nil
}

func (s *Session) slotLists() map[string][]*schema.AttachmentRecord {
	lists := make(map[string][]*schema.AttachmentRecord, len(s.stagers))
	for key, st := range s.stagers {
		lists[key] = st.List()
	}
	return lists
}

// normalizeDates converts wire-format date strings to CalendarDate for
// fields declared with the date format.
func (s *Session) normalizeDates(fields map[string]any) {
	for _, step := range s.cfg.Definition.Steps {
		for _, f := range step.Fields {
			if f.Format != schema.FormatDate {
				continue
			}
			if raw, ok := fields[f.Name].(string); ok && raw != "" {
				if d, err := schema.ParseCalendarDate(raw); err == nil {
					fields[f.Name] = d
				}
			}
		}
	}
}

func (s *Session) recordTempHandle(rec schema.AttachmentRecord) {
	ctx := context.Background()
	s.emit(ctx, schema.EventTempHandleIssued, "", map[string]any{
		"temp_id": rec.TempID,
		"slot":    rec.SlotKey,
	})
	if s.cfg.Store == nil {
		return
	}
	h := &store.TempHandle{
		TempID:   rec.TempID,
		WizardID: s.id,
		Slot:     rec.SlotKey,
		URL:      rec.URL,
		Name:     rec.Name,
		IssuedAt: time.Now().UTC(),
	}
	if err := s.cfg.Store.RecordTempHandle(ctx, h); err != nil {
		s.logger.Warn("record temp handle", slog.String("temp_id", rec.TempID), slog.String("error", err.Error()))
	}
}

func (s *Session) emit(ctx context.Context, eventType, stepID string, payload map[string]any) {
	event := &store.Event{
		WizardID: s.id,
		StepID:   stepID,
		Type:     eventType,
		Payload:  payload,
	}
	if err := s.cfg.Appender.AppendEvent(ctx, event); err != nil {
		s.logger.Warn("append event", slog.String("type", eventType), slog.String("error", err.Error()))
	}
}

// attachmentDescs coerces a hydration record's slot entry into descriptors.
func attachmentDescs(v any) ([]schema.ExistingAttachmentDesc, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var descs []schema.ExistingAttachmentDesc
	if err := json.Unmarshal(raw, &descs); err != nil {
		return nil, err
	}
	return descs, nil
}
