package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fitdesk/enrollkit/internal/catalog"
	"github.com/fitdesk/enrollkit/internal/staging"
	"github.com/fitdesk/enrollkit/internal/wizard"
	"github.com/fitdesk/enrollkit/pkg/schema"
)

const (
	defaultHeaderName       = "RequestVerificationToken"
	defaultMaxResponseBytes = 4 << 20
	defaultTimeout          = 30 * time.Second
)

// Config configures a Client. BaseURL is required; everything else has a
// working default.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenSource
	Logger     *slog.Logger

	// HeaderName carries the anti-forgery token on mutating requests.
	HeaderName       string
	MaxResponseBytes int64

	UploadPath  string
	SubmitPath  string
	RecordPath  string
	CatalogPath string
	DiscardPath string
}

// Client is the single HTTP surface of a wizard: temp uploads, catalog and
// record fetches, final submission, and temp-handle discards all go through
// it. It implements staging.Uploader, wizard.Submitter, wizard.RecordFetcher,
// and catalog.Fetcher.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a client, filling in defaults for unset config fields.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "base URL is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = defaultHeaderName
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxResponseBytes
	}
	if cfg.UploadPath == "" {
		cfg.UploadPath = "/uploads/temp"
	}
	if cfg.SubmitPath == "" {
		cfg.SubmitPath = "/records"
	}
	if cfg.RecordPath == "" {
		cfg.RecordPath = "/records"
	}
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = "/catalog"
	}
	if cfg.DiscardPath == "" {
		cfg.DiscardPath = "/uploads/discard"
	}
	return &Client{cfg: cfg, http: cfg.HTTPClient}, nil
}

type uploadResponse struct {
	Success      bool   `json:"success"`
	TempID       string `json:"temp_id"`
	URL          string `json:"url"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
	Message      string `json:"message"`
}

// Upload posts one file as multipart form data and returns the server's
// temporary handle. Any non-2xx status or success:false body is a failure;
// the attachment never silently passes.
func (c *Client) Upload(ctx context.Context, slot schema.SlotConfig, file staging.File) (*staging.UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("slot", slot.Key); err != nil {
		return nil, err
	}
	// The file travels under the slot's configured field name so the
	// collaborator can route it by type.
	partName := slot.FieldName
	if partName == "" {
		partName = "file"
	}
	part, err := mw.CreateFormFile(partName, file.Name)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.cfg.UploadPath, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, status, err := c.do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeUploadFailed,
			"upload failed").WithSlot(slot.Key).WithCause(err)
	}

	var parsed uploadResponse
	if jerr := json.Unmarshal(body, &parsed); jerr != nil && status < 300 {
		return nil, schema.NewErrorf(schema.ErrCodeUploadFailed,
			"malformed upload response").WithSlot(slot.Key).WithCause(jerr)
	}
	if status >= 300 || !parsed.Success {
		msg := parsed.Message
		if msg == "" {
			msg = fmt.Sprintf("upload rejected with status %d", status)
		}
		return nil, schema.NewError(schema.ErrCodeUploadFailed, msg).WithSlot(slot.Key)
	}

	return &staging.UploadResult{
		TempID: parsed.TempID,
		URL:    parsed.URL,
		Name:   parsed.OriginalName,
		Size:   parsed.Size,
	}, nil
}

// Submit sends the assembled payload: POST for create, PUT to the record's
// path for edit. The raw response body is returned on success so hosts can
// read server-assigned identifiers.
func (c *Client) Submit(ctx context.Context, payload schema.SubmissionPayload) (json.RawMessage, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	method := http.MethodPost
	path := c.cfg.SubmitPath
	if payload.Mode == schema.ModeEdit {
		method = http.MethodPut
		path = c.cfg.SubmitPath + "/" + url.PathEscape(payload.RecordID)
	}

	req, err := c.newRequest(ctx, method, path, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeSubmitFailed,
			"submission failed, please try again").WithCause(err)
	}

	var envelope struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &envelope)

	if status >= 300 || (envelope.Success != nil && !*envelope.Success) {
		msg := envelope.Message
		if msg == "" {
			msg = "submission failed, please try again"
		}
		return nil, schema.NewError(schema.ErrCodeSubmitFailed, msg).
			WithDetails(map[string]any{"status": status})
	}
	return body, nil
}

// FetchRecord retrieves the full record used for edit-mode hydration.
func (c *Client) FetchRecord(ctx context.Context, recordID string) (map[string]any, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.cfg.RecordPath+"/"+url.PathEscape(recordID), nil)
	if err != nil {
		return nil, err
	}
	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "record %q not found", recordID)
	}
	if status >= 300 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"fetch record returned %d", status)
	}
	var record map[string]any
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, err
	}
	return record, nil
}

// FetchCatalog retrieves all reference catalogs for a branch, keyed by
// catalog name.
func (c *Client) FetchCatalog(ctx context.Context, branchID string) (map[string][]catalog.Option, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.cfg.CatalogPath+"?branch_id="+url.QueryEscape(branchID), nil)
	if err != nil {
		return nil, err
	}
	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"fetch catalog returned %d", status)
	}
	var catalogs map[string][]catalog.Option
	if err := json.Unmarshal(body, &catalogs); err != nil {
		return nil, err
	}
	return catalogs, nil
}

// DiscardTempUploads tells the server to drop unclaimed temporary uploads.
// Used by the janitor; best-effort on the server side.
func (c *Client) DiscardTempUploads(ctx context.Context, tempIDs []string) error {
	if len(tempIDs) == 0 {
		return nil
	}
	encoded, err := json.Marshal(map[string]any{"temp_ids": tempIDs})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.cfg.DiscardPath, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	_, status, err := c.do(req)
	if err != nil {
		return err
	}
	if status >= 300 {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"discard temp uploads returned %d", status)
	}
	return nil
}

// newRequest builds a request against the base URL and attaches the
// anti-forgery token to mutating methods.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if method != http.MethodGet && c.cfg.Tokens != nil {
		token, terr := c.cfg.Tokens.Token(ctx)
		if terr != nil {
			return nil, terr
		}
		if token != "" {
			req.Header.Set(c.cfg.HeaderName, token)
		}
	}
	return req, nil
}

// do executes a request and reads a size-capped response body. Transport
// errors are returned as-is; HTTP status interpretation is the caller's.
func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

var (
	_ staging.Uploader     = (*Client)(nil)
	_ wizard.Submitter     = (*Client)(nil)
	_ wizard.RecordFetcher = (*Client)(nil)
	_ catalog.Fetcher      = (*Client)(nil)
)
