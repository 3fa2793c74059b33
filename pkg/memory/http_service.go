package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/advisorkit/maestro/pkg/models"
)

// HTTPService talks to a vector-memory provider over JSON POST. Every
// failure is demoted to a warning; callers always get a usable (possibly
// empty) result.
type HTTPService struct {
	baseURL string
	http    *http.Client
}

// NewHTTPService creates a memory client for the provider URL.
func NewHTTPService(baseURL string, timeout time.Duration) *HTTPService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPService{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type recallRequest struct {
	Query     string  `json:"query"`
	OrgID     string  `json:"org_id"`
	UserID    string  `json:"user_id"`
	Limit     int     `json:"limit"`
	Threshold float64 `json:"threshold"`
}

type recallResponse struct {
	Memories []Memory `json:"memories"`
}

// Recall fetches scored memories for a query. Returns nil on any failure.
func (s *HTTPService) Recall(ctx context.Context, query, orgID, userID string, opts RecallOptions) []Memory {
	var resp recallResponse
	if err := s.post(ctx, "/recall", recallRequest{
		Query:     query,
		OrgID:     orgID,
		UserID:    userID,
		Limit:     opts.Limit,
		Threshold: opts.Threshold,
	}, &resp); err != nil {
		slog.Warn("Memory recall failed", "error", err)
		return nil
	}
	return resp.Memories
}

type synthesizeRequest struct {
	Messages []models.Message `json:"messages"`
	OrgID    string           `json:"org_id"`
	UserID   string           `json:"user_id"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// Synthesize submits conversation turns for background summarization.
func (s *HTTPService) Synthesize(ctx context.Context, messages []models.Message, orgID, userID string, metadata map[string]any) {
	if err := s.post(ctx, "/synthesize", synthesizeRequest{
		Messages: messages,
		OrgID:    orgID,
		UserID:   userID,
		Metadata: metadata,
	}, nil); err != nil {
		slog.Warn("Memory synthesis failed", "error", err)
	}
}

func (s *HTTPService) post(ctx context.Context, path string, body, target any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
