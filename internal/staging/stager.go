// Package staging decouples file upload from form submission: each selected
// file is transferred to the collaborator immediately, and the wizard only
// ever holds lightweight references once upload completes.
package staging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fitdesk/enrollkit/internal/logging"
	"github.com/fitdesk/enrollkit/internal/store"
	"github.com/fitdesk/enrollkit/pkg/schema"
)

// File is a client-side snapshot of a selected file. The stager holds the
// raw bytes only until the upload resolves.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Data        []byte
}

// UploadResult is the collaborator's answer to an accepted upload.
type UploadResult struct {
	TempID string
	URL    string
	Name   string
	Size   int64
}

// Uploader performs the actual transfer. Implemented by transport.Client and
// by test doubles.
type Uploader interface {
	Upload(ctx context.Context, slot schema.SlotConfig, file File) (*UploadResult, error)
}

// EventAppender receives stager lifecycle events.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.Event) error
}

// Config wires a Stager.
type Config struct {
	Slot     schema.SlotConfig
	Uploader Uploader
	WizardID string

	// Appender and Logger are optional.
	Appender EventAppender
	Logger   *slog.Logger

	// OnTempIssued is called once per upload that reaches done, with the
	// finished record. Used to track temp handles for the janitor.
	OnTempIssued func(rec schema.AttachmentRecord)
}

// Stager manages one attachment slot: admission checks, immediate upload,
// removal, and edit-mode hydration. Uploads run concurrently; the record
// list is guarded by a mutex since completions land on other goroutines.
type Stager struct {
	cfg Config

	mu      sync.Mutex
	records []*schema.AttachmentRecord
	files   map[string]File

	wg sync.WaitGroup
}

// NewStager creates a stager for the given slot.
func NewStager(cfg Config) *Stager {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Stager{
		cfg:   cfg,
		files: make(map[string]File),
	}
}

// Slot returns the slot configuration.
func (s *Stager) Slot() schema.SlotConfig { return s.cfg.Slot }

// Select runs admission checks on each file and starts an upload for every
// accepted one. Rejected files never enter the list; their errors are
// returned in input order alongside the accepted records.
func (s *Stager) Select(ctx context.Context, files ...File) ([]schema.AttachmentRecord, []error) {
	var accepted []schema.AttachmentRecord
	var rejected []error

	for _, f := range files {
		rec, err := s.admit(ctx, f)
		if err != nil {
			rejected = append(rejected, err)
			s.emit(ctx, schema.EventUploadRejected, "", map[string]any{
				"name":   f.Name,
				"reason": err.Error(),
			})
			continue
		}
		accepted = append(accepted, *rec)
		s.emit(ctx, schema.EventUploadAdmitted, rec.LocalID, nil)

		s.wg.Add(1)
		go func(localID string) {
			defer s.wg.Done()
			s.upload(ctx, localID)
		}(rec.LocalID)
	}

	return accepted, rejected
}

// admit validates type, size, and count, then appends a pending record.
func (s *Stager) admit(ctx context.Context, f File) (*schema.AttachmentRecord, *schema.EnrollError) {
	slot := s.cfg.Slot

	if !typeAllowed(slot.Accept, f.ContentType) {
		return nil, schema.NewErrorf(schema.ErrCodeAdmissionRejected,
			"%s: type %q not accepted", f.Name, f.ContentType).WithSlot(slot.Key)
	}
	if f.Size > slot.MaxSizeBytes() {
		return nil, schema.NewErrorf(schema.ErrCodeAdmissionRejected,
			"%s: exceeds %dMB limit", f.Name, slot.MaxSizeMB).WithSlot(slot.Key)
	}

	var width, height int
	if strings.HasPrefix(f.ContentType, "image/") {
		w, h, err := sniffImage(f.Data)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeAdmissionRejected,
				"%s: not a decodable image", f.Name).WithSlot(slot.Key).WithCause(err)
		}
		width, height = w, h
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) >= slot.MaxFiles {
		return nil, schema.NewErrorf(schema.ErrCodeAdmissionRejected,
			"slot already holds %d file(s)", slot.MaxFiles).WithSlot(slot.Key)
	}

	rec := &schema.AttachmentRecord{
		LocalID:   uuid.NewString(),
		SlotKey:   slot.Key,
		Status:    schema.AttachmentStatusPending,
		IsNew:     true,
		Name:      f.Name,
		Size:      f.Size,
		Width:     width,
		Height:    height,
		CreatedAt: time.Now().UTC(),
	}
	s.records = append(s.records, rec)
	s.files[rec.LocalID] = f
	return rec, nil
}

// upload drives one record through uploading→done/error. Failures surface
// on the record; there is no automatic retry.
func (s *Stager) upload(ctx context.Context, localID string) {
	s.mu.Lock()
	rec := s.find(localID)
	if rec == nil || rec.Status != schema.AttachmentStatusPending {
		s.mu.Unlock()
		return
	}
	file := s.files[localID]
	if err := s.transition(rec, schema.AttachmentStatusUploading); err != nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.emit(ctx, schema.EventUploadStarted, localID, nil)

	result, err := s.cfg.Uploader.Upload(ctx, s.cfg.Slot, file)

	s.mu.Lock()
	rec = s.find(localID)
	if rec == nil {
		// Removed while in flight; the response is dropped.
		s.mu.Unlock()
		return
	}
	delete(s.files, localID)

	if err != nil {
		_ = s.transition(rec, schema.AttachmentStatusError)
		rec.Error = err.Error()
		s.mu.Unlock()
		s.emit(ctx, schema.EventUploadFailed, localID, map[string]any{"error": err.Error()})
		logging.LogWith(logging.WithSlot(ctx, s.cfg.Slot.Key), s.cfg.Logger).
			Warn("upload failed", slog.String("name", rec.Name), slog.String("error", err.Error()))
		return
	}

	_ = s.transition(rec, schema.AttachmentStatusDone)
	rec.TempID = result.TempID
	rec.URL = result.URL
	if result.Name != "" {
		rec.Name = result.Name
	}
	if result.Size > 0 {
		rec.Size = result.Size
	}
	done := *rec
	s.mu.Unlock()

	s.emit(ctx, schema.EventUploadDone, localID, map[string]any{"temp_id": done.TempID})
	if s.cfg.OnTempIssued != nil {
		s.cfg.OnTempIssued(done)
	}
}

// Remove deletes the record from the list regardless of its status. It does
// not issue a server-side delete for completed uploads; orphan cleanup is
// the janitor's concern.
func (s *Stager) Remove(ctx context.Context, localID string) bool {
	s.mu.Lock()
	rec := s.find(localID)
	if rec == nil {
		s.mu.Unlock()
		return false
	}
	_ = s.transition(rec, schema.AttachmentStatusRemoved)
	delete(s.files, localID)
	for i, r := range s.records {
		if r.LocalID == localID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.emit(ctx, schema.EventAttachmentRemoved, localID, nil)
	return true
}

// HydrateExisting converts collaborator attachment descriptors into done,
// existing records. Used only when opening in edit mode.
func (s *Stager) HydrateExisting(ctx context.Context, descs []schema.ExistingAttachmentDesc) []schema.AttachmentRecord {
	s.mu.Lock()
	var added []schema.AttachmentRecord
	for _, d := range descs {
		rec := &schema.AttachmentRecord{
			LocalID:    uuid.NewString(),
			SlotKey:    s.cfg.Slot.Key,
			Status:     schema.AttachmentStatusDone,
			IsExisting: true,
			ExistingID: d.ID,
			Name:       d.Name,
			URL:        d.URL,
			CreatedAt:  time.Now().UTC(),
		}
		s.records = append(s.records, rec)
		added = append(added, *rec)
	}
	s.mu.Unlock()

	s.emit(ctx, schema.EventSlotHydrated, "", map[string]any{"count": len(added)})
	return added
}

// List returns an ordered snapshot of the slot's records.
func (s *Stager) List() []*schema.AttachmentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*schema.AttachmentRecord, len(s.records))
	for i, r := range s.records {
		cp := *r
		out[i] = &cp
	}
	return out
}

// InFlight reports whether any record is still pending or uploading.
func (s *Stager) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Status == schema.AttachmentStatusPending || r.Status == schema.AttachmentStatusUploading {
			return true
		}
	}
	return false
}

// Wait blocks until all in-flight uploads have resolved.
func (s *Stager) Wait() { s.wg.Wait() }

// Clear empties the slot. Invoked after a confirmed successful submission
// or on wizard teardown.
func (s *Stager) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.files = make(map[string]File)
}

// transition enforces the attachment status table. Caller holds s.mu.
func (s *Stager) transition(rec *schema.AttachmentRecord, to schema.AttachmentStatus) error {
	allowed := schema.ValidAttachmentTransitions[rec.Status]
	for _, a := range allowed {
		if a == to {
			rec.Status = to
			return nil
		}
	}
	return schema.NewErrorf(schema.ErrCodeInvalidTransition,
		"invalid attachment transition: %s -> %s", rec.Status, to).WithSlot(s.cfg.Slot.Key)
}

func (s *Stager) find(localID string) *schema.AttachmentRecord {
	for _, r := range s.records {
		if r.LocalID == localID {
			return r
		}
	}
	return nil
}

func (s *Stager) emit(ctx context.Context, eventType, localID string, payload map[string]any) {
	if s.cfg.Appender == nil {
		return
	}
	if localID != "" {
		if payload == nil {
			payload = map[string]any{}
		}
		payload["local_id"] = localID
	}
	event := &store.Event{
		WizardID: s.cfg.WizardID,
		Slot:     s.cfg.Slot.Key,
		Type:     eventType,
		Payload:  payload,
	}
	if err := s.cfg.Appender.AppendEvent(ctx, event); err != nil {
		s.cfg.Logger.Warn("append event", slog.String("type", eventType), slog.String("error", err.Error()))
	}
}

// typeAllowed matches a content type against the accept set; entries may use
// a "type/*" prefix wildcard.
func typeAllowed(accept []string, contentType string) bool {
	for _, allowed := range accept {
		if allowed == "*/*" || allowed == contentType {
			return true
		}
		if strings.HasSuffix(allowed, "/*") &&
			strings.HasPrefix(contentType, strings.TrimSuffix(allowed, "/*")) {
			return true
		}
	}
	return false
}
