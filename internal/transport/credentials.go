package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/fitdesk/enrollkit/pkg/schema"
)

// TokenSource yields the anti-forgery token attached to mutating requests.
// An empty token with a nil error means this source has nothing to offer.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed token, typically injected at construction by the
// hosting application.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// CookieToken reads the token from a cookie jar. Cookie values arrive
// URL-encoded and are decoded before use.
type CookieToken struct {
	Jar  http.CookieJar
	URL  *url.URL
	Name string
}

func (c *CookieToken) Token(context.Context) (string, error) {
	if c.Jar == nil || c.URL == nil {
		return "", nil
	}
	for _, ck := range c.Jar.Cookies(c.URL) {
		if ck.Name == c.Name {
			decoded, err := url.QueryUnescape(ck.Value)
			if err != nil {
				return "", schema.NewErrorf(schema.ErrCodeValidation,
					"malformed token cookie %q", c.Name).WithCause(err)
			}
			return decoded, nil
		}
	}
	return "", nil
}

// EndpointToken fetches a fresh token from a dedicated endpoint returning
// {"token": "..."}.
type EndpointToken struct {
	Client *http.Client
	URL    string
}

func (e *EndpointToken) Token(ctx context.Context) (string, error) {
	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", schema.NewErrorf(schema.ErrCodeExecution,
			"token endpoint returned %d", resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return "", err
	}
	return body.Token, nil
}

// Chain tries each source in priority order and returns the first non-empty
// token. A source error stops the chain; exhausting it yields an empty token,
// in which case the header is simply omitted.
type Chain []TokenSource

func (c Chain) Token(ctx context.Context) (string, error) {
	for _, src := range c {
		token, err := src.Token(ctx)
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}
	}
	return "", nil
}
