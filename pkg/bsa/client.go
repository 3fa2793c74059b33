// Package bsa is the gateway to the remote BSA CRM. It owns the request
// envelope, response normalization, and error surfacing; it never retries —
// retry policy belongs to the effect runner.
package bsa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single gateway call.
const DefaultTimeout = 10 * time.Second

// CredentialProvider supplies the opaque short-lived PassKey on demand.
// Implementations refresh expired tokens transparently. The core never
// inspects or logs the token.
type CredentialProvider interface {
	GetCredential(ctx context.Context) (string, error)
}

// Client posts typed requests to BSA endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a gateway client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Auth binds a gateway call to one organization and credential source.
type Auth struct {
	OrgID string
	Creds CredentialProvider
}

// envelope is the raw BSA response shape. Responses arrive either as a
// single object or as an array wrapping one.
type envelope struct {
	Valid           bool            `json:"Valid"`
	ResponseMessage string          `json:"ResponseMessage,omitempty"`
	StackMessage    string          `json:"StackMessage,omitempty"`
	Data            json.RawMessage `json:"Data,omitempty"`
	Results         json.RawMessage `json:"Results,omitempty"`
}

// Post sends a payload to an endpoint with the credential envelope injected
// and returns the normalized response body.
func (c *Client) Post(ctx context.Context, auth Auth, endpoint string, payload map[string]any) (*envelope, error) {
	passKey, err := auth.Creds.GetCredential(ctx)
	if err != nil {
		return nil, &AuthError{Message: fmt.Sprintf("credential provider: %v", err)}
	}

	body := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	body["OrganizationId"] = auth.OrgID
	body["PassKey"] = passKey

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Code: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Message: fmt.Sprintf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, &NetworkError{Code: resp.StatusCode, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	return normalize(respBody)
}

// normalize accepts both response shapes — a single envelope object or a
// one-element array wrapping it — and surfaces Valid=false as an error.
func normalize(body []byte) (*envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var arr []envelope
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return nil, fmt.Errorf("failed to decode array response: %w", err)
		}
		if len(arr) == 0 {
			return nil, &ExternalError{Kind: "invalid_response", Message: "empty array response"}
		}
		return checkValid(&arr[0])
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return checkValid(&env)
}

func checkValid(env *envelope) (*envelope, error) {
	if !env.Valid {
		msg := env.ResponseMessage
		if msg == "" {
			msg = env.StackMessage
		}
		if msg == "" {
			msg = "request rejected"
		}
		return nil, &ExternalError{Kind: "invalid_response", Message: msg}
	}
	return env, nil
}

// payload returns Data when present, Results otherwise.
func (e *envelope) payload() json.RawMessage {
	if len(e.Data) > 0 {
		return e.Data
	}
	return e.Results
}

// decode unmarshals the envelope payload into target. A payload that is an
// array wrapping a single object is unwrapped when target is not a slice.
func decode[T any](env *envelope) (T, error) {
	var out T
	raw := env.payload()
	if len(raw) == 0 {
		return out, &ExternalError{Kind: "invalid_response", Message: "missing payload"}
	}
	if err := json.Unmarshal(raw, &out); err == nil {
		return out, nil
	}
	// Single-object target but array-wrapped payload.
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil || len(arr) == 0 {
		return out, &ExternalError{Kind: "invalid_response", Message: "unexpected payload shape"}
	}
	if err := json.Unmarshal(arr[0], &out); err != nil {
		return out, fmt.Errorf("failed to decode payload: %w", err)
	}
	return out, nil
}
