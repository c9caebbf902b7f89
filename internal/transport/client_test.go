package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitdesk/enrollkit/internal/staging"
	"github.com/fitdesk/enrollkit/pkg/schema"
)

func newTestClient(t *testing.T, handler http.Handler, tokens TokenSource) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL, Tokens: tokens})
	require.NoError(t, err)
	return c, srv
}

func TestClient_UploadSuccess(t *testing.T) {
	var gotToken, gotSlot, gotName, gotPart string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/uploads/temp", r.URL.Path)
		gotToken = r.Header.Get("RequestVerificationToken")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotSlot = r.FormValue("slot")
		for name, headers := range r.MultipartForm.File {
			gotPart = name
			gotName = headers[0].Filename
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true, "temp_id": "tmp-1", "url": "/tmp/1",
			"original_name": gotName, "size": 8,
		})
	})
	c, _ := newTestClient(t, handler, StaticToken("tok-123"))

	result, err := c.Upload(context.Background(), schema.DefaultPDFSlot("contract", "employee_pdf"),
		staging.File{Name: "contract.pdf", Size: 8, ContentType: "application/pdf", Data: []byte("%PDF-1.4")})
	require.NoError(t, err)

	assert.Equal(t, "tmp-1", result.TempID)
	assert.Equal(t, "contract.pdf", result.Name)
	assert.Equal(t, "tok-123", gotToken)
	assert.Equal(t, "contract", gotSlot)
	// The file must travel under the slot's field name, not a generic part.
	assert.Equal(t, "employee_pdf", gotPart)
	assert.Equal(t, "contract.pdf", gotName)
}

func TestClient_UploadServerRejection(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "file type not allowed"})
	})
	c, _ := newTestClient(t, handler, nil)

	_, err := c.Upload(context.Background(), schema.DefaultPDFSlot("contract", "contract"),
		staging.File{Name: "x.pdf", Data: []byte("x")})
	require.Error(t, err)
	var enErr *schema.EnrollError
	require.ErrorAs(t, err, &enErr)
	assert.Equal(t, schema.ErrCodeUploadFailed, enErr.Code)
	assert.Equal(t, "file type not allowed", enErr.Message)
}

func TestClient_UploadNon2xxIsFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	c, _ := newTestClient(t, handler, nil)

	_, err := c.Upload(context.Background(), schema.DefaultPDFSlot("contract", "contract"),
		staging.File{Name: "x.pdf", Data: []byte("x")})
	require.Error(t, err)
	var enErr *schema.EnrollError
	require.ErrorAs(t, err, &enErr)
	assert.Equal(t, schema.ErrCodeUploadFailed, enErr.Code)
}

func TestClient_SubmitCreateAndEdit(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{"success": true, "id": 42})
	})
	c, _ := newTestClient(t, handler, nil)
	ctx := context.Background()

	payload := schema.SubmissionPayload{
		Fields:   map[string]any{"name": "Ada"},
		Mode:     schema.ModeCreate,
		BranchID: "north",
	}
	response, err := c.Submit(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/records", gotPath)
	assert.Equal(t, "Ada", gotBody["name"])
	assert.JSONEq(t, `{"success":true,"id":42}`, string(response))

	payload.Mode = schema.ModeEdit
	payload.RecordID = "rec-9"
	_, err = c.Submit(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/records/rec-9", gotPath)
}

func TestClient_SubmitFailureMessageVerbatim(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "Email already registered"})
	})
	c, _ := newTestClient(t, handler, nil)

	_, err := c.Submit(context.Background(), schema.SubmissionPayload{Mode: schema.ModeCreate})
	require.Error(t, err)
	var enErr *schema.EnrollError
	require.ErrorAs(t, err, &enErr)
	assert.Equal(t, schema.ErrCodeSubmitFailed, enErr.Code)
	assert.Equal(t, "Email already registered", enErr.Message)
}

func TestClient_SubmitSuccessFalseOn200(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "branch closed"})
	})
	c, _ := newTestClient(t, handler, nil)

	_, err := c.Submit(context.Background(), schema.SubmissionPayload{Mode: schema.ModeCreate})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "branch closed")
}

func TestClient_FetchRecord(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/records/rec-9" {
			json.NewEncoder(w).Encode(map[string]any{"name": "Ada"})
			return
		}
		http.NotFound(w, r)
	})
	c, _ := newTestClient(t, handler, nil)
	ctx := context.Background()

	record, err := c.FetchRecord(ctx, "rec-9")
	require.NoError(t, err)
	assert.Equal(t, "Ada", record["name"])

	_, err = c.FetchRecord(ctx, "missing")
	require.Error(t, err)
	var enErr *schema.EnrollError
	require.ErrorAs(t, err, &enErr)
	assert.Equal(t, schema.ErrCodeNotFound, enErr.Code)
}

func TestClient_FetchCatalog(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "north", r.URL.Query().Get("branch_id"))
		json.NewEncoder(w).Encode(map[string]any{
			"plans": []map[string]string{{"id": "p1", "name": "Monthly"}},
		})
	})
	c, _ := newTestClient(t, handler, nil)

	catalogs, err := c.FetchCatalog(context.Background(), "north")
	require.NoError(t, err)
	require.Contains(t, catalogs, "plans")
	assert.Equal(t, "Monthly", catalogs["plans"][0].Name)
}

func TestClient_DiscardTempUploads(t *testing.T) {
	var gotIDs []string
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var body struct {
			TempIDs []string `json:"temp_ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotIDs = body.TempIDs
		w.WriteHeader(http.StatusNoContent)
	})
	c, _ := newTestClient(t, handler, nil)
	ctx := context.Background()

	require.NoError(t, c.DiscardTempUploads(ctx, []string{"tmp-1", "tmp-2"}))
	assert.Equal(t, []string{"tmp-1", "tmp-2"}, gotIDs)

	// Empty list makes no request at all.
	require.NoError(t, c.DiscardTempUploads(ctx, nil))
	assert.Equal(t, 1, calls)
}

func TestTokenChain_Priority(t *testing.T) {
	jar := &staticJar{cookies: []*http.Cookie{{Name: "XSRF-TOKEN", Value: url.QueryEscape("from cookie+value")}}}
	base, _ := url.Parse("https://api.example.com")

	cookie := &CookieToken{Jar: jar, URL: base, Name: "XSRF-TOKEN"}

	chain := Chain{StaticToken(""), cookie}
	token, err := chain.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from cookie+value", token)

	chain = Chain{StaticToken("static-wins"), cookie}
	token, err = chain.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "static-wins", token)
}

func TestEndpointToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "fresh"})
	}))
	t.Cleanup(srv.Close)

	src := &EndpointToken{URL: srv.URL}
	token, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
}

type staticJar struct {
	cookies []*http.Cookie
}

func (j *staticJar) SetCookies(*url.URL, []*http.Cookie) {}
func (j *staticJar) Cookies(*url.URL) []*http.Cookie     { return j.cookies }
