package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/fitdesk/enrollkit/internal/catalog"
)

// tempUpload is a staged file awaiting claim by a submission.
type tempUpload struct {
	ID          string
	Slot        string
	Name        string
	Size        int64
	ContentType string
	IssuedAt    time.Time
}

// stubState is the in-memory backend. Everything is lost on restart,
// which is the point.
type stubState struct {
	mu      sync.Mutex
	nextID  int
	records map[string]map[string]any
	uploads map[string]*tempUpload
	catalog map[string]map[string][]catalog.Option
}

func newStubState() *stubState {
	return &stubState{
		nextID:  1,
		records: make(map[string]map[string]any),
		uploads: make(map[string]*tempUpload),
		catalog: make(map[string]map[string][]catalog.Option),
	}
}

func (s *stubState) addUpload(u *tempUpload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[u.ID] = u
}

func (s *stubState) discardUploads(tempIDs []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range tempIDs {
		if _, ok := s.uploads[id]; ok {
			delete(s.uploads, id)
			n++
		}
	}
	return n
}

// claimUploads removes the temp entries referenced by a submitted record.
func (s *stubState) claimUploads(tempIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range tempIDs {
		delete(s.uploads, id)
	}
}

func (s *stubState) createRecord(fields map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("%d", s.nextID)
	s.nextID++
	fields["id"] = id
	s.records[id] = fields
	return id
}

func (s *stubState) updateRecord(id string, fields map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false
	}
	fields["id"] = id
	s.records[id] = fields
	return true
}

func (s *stubState) getRecord(id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

func (s *stubState) catalogFor(branchID string) map[string][]catalog.Option {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.catalog[branchID]; ok {
		return c
	}
	return s.catalog[""]
}

// seedCatalog loads fixture select options so a fresh stub is usable.
func seedCatalog(s *stubState) {
	s.catalog[""] = map[string][]catalog.Option{
		"membership_types": {
			{ID: "1", Name: "Monthly"},
			{ID: "2", Name: "Quarterly"},
			{ID: "3", Name: "Annual"},
		},
		"branches": {
			{ID: "north", Name: "North Branch"},
			{ID: "south", Name: "South Branch"},
		},
		"trainers": {
			{ID: "10", Name: "R. Vega"},
			{ID: "11", Name: "M. Osei"},
		},
	}
}
