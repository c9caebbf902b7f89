package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const maxUploadBytes = 32 << 20

type stubServer struct {
	cfg    Config
	state  *stubState
	hub    *eventHub
	logger *slog.Logger
}

func (s *stubServer) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/antiforgery", s.handleAntiforgery)
	r.Get("/catalog", s.handleCatalog)
	r.Get("/records/{recordID}", s.handleGetRecord)
	r.Get("/events", s.hub.handleSubscribe)

	r.Group(func(r chi.Router) {
		r.Use(s.verifyToken)
		r.Post("/uploads/temp", s.handleUpload)
		r.Post("/uploads/discard", s.handleDiscard)
		r.Post("/records", s.handleCreateRecord)
		r.Put("/records/{recordID}", s.handleUpdateRecord)
	})

	return r
}

// verifyToken checks the antiforgery header on mutating requests. Disabled
// unless RequireToken is set so quick manual testing stays frictionless.
func (s *stubServer) verifyToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.RequireToken {
			raw := r.Header.Get("RequestVerificationToken")
			if raw == "" {
				writeError(w, http.StatusForbidden, "antiforgery token missing")
				return
			}
			_, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
				return []byte(s.cfg.TokenSecret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil {
				writeError(w, http.StatusForbidden, "antiforgery token invalid")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *stubServer) handleAntiforgery(w http.ResponseWriter, _ *http.Request) {
	claims := jwt.RegisteredClaims{
		Subject:   "enrollstub",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(8 * time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.TokenSecret))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": signed})
}

func (s *stubServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false, "message": "malformed multipart body",
		})
		return
	}
	// The wizard sends the file under the slot's configured field name
	// (employee_pdf, member_photo, ...), so take whichever file part came.
	var header *multipart.FileHeader
	for _, headers := range r.MultipartForm.File {
		if len(headers) > 0 {
			header = headers[0]
			break
		}
	}
	if header == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false, "message": "file is required",
		})
		return
	}
	file, err := header.Open()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false, "message": "failed to open file",
		})
		return
	}
	defer file.Close()

	size, err := io.Copy(io.Discard, file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false, "message": "failed to read file",
		})
		return
	}

	up := &tempUpload{
		ID:          uuid.NewString(),
		Slot:        r.FormValue("slot"),
		Name:        header.Filename,
		Size:        size,
		ContentType: header.Header.Get("Content-Type"),
		IssuedAt:    time.Now(),
	}
	s.state.addUpload(up)
	s.hub.broadcast(activityEvent{
		Type: "upload", TempID: up.ID, Slot: up.Slot, Name: up.Name, Size: up.Size,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"temp_id":       up.ID,
		"url":           "/uploads/temp/" + up.ID,
		"original_name": up.Name,
		"size":          up.Size,
	})
}

func (s *stubServer) handleDiscard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TempIDs []string `json:"temp_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	n := s.state.discardUploads(body.TempIDs)
	s.hub.broadcast(activityEvent{Type: "discard", Count: n})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "discarded": n})
}

func (s *stubServer) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	fields, tempIDs, ok := s.decodeSubmission(w, r)
	if !ok {
		return
	}
	id := s.state.createRecord(fields)
	s.state.claimUploads(tempIDs)
	s.hub.broadcast(activityEvent{Type: "submit", RecordID: id})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (s *stubServer) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "recordID")
	fields, tempIDs, ok := s.decodeSubmission(w, r)
	if !ok {
		return
	}
	if !s.state.updateRecord(id, fields) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"success": false, "message": fmt.Sprintf("record %s not found", id),
		})
		return
	}
	s.state.claimUploads(tempIDs)
	s.hub.broadcast(activityEvent{Type: "submit", RecordID: id})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (s *stubServer) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "recordID")
	rec, ok := s.state.getRecord(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("record %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *stubServer) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.catalogFor(r.URL.Query().Get("branch_id")))
}

// decodeSubmission reads the flat submission body, collapses each slot's
// attachments section (new + existing) into the persisted descriptor list,
// and collects the temp handles being claimed.
func (s *stubServer) decodeSubmission(w http.ResponseWriter, r *http.Request) (map[string]any, []string, bool) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false, "message": "malformed submission body",
		})
		return nil, nil, false
	}

	var tempIDs []string
	for key, value := range body {
		section, ok := value.(map[string]any)
		if !ok {
			continue
		}
		newList, hasNew := section["new"].([]any)
		existingList, hasExisting := section["existing"].([]any)
		if !hasNew && !hasExisting {
			continue
		}

		persisted := make([]map[string]any, 0, len(newList)+len(existingList))
		for _, item := range existingList {
			if att, ok := item.(map[string]any); ok {
				persisted = append(persisted, att)
			}
		}
		for _, item := range newList {
			att, ok := item.(map[string]any)
			if !ok {
				continue
			}
			tempID, _ := att["temp_id"].(string)
			if tempID != "" {
				tempIDs = append(tempIDs, tempID)
			}
			persisted = append(persisted, map[string]any{
				"id":   tempID,
				"name": att["name"],
				"url":  att["url"],
			})
		}
		body[key] = persisted
	}

	delete(body, "mode")
	return body, tempIDs, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
