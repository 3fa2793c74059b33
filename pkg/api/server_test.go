package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/config"
	"github.com/advisorkit/maestro/pkg/coordinator"
	"github.com/advisorkit/maestro/pkg/planner"
	"github.com/advisorkit/maestro/pkg/resilience"
	"github.com/advisorkit/maestro/pkg/services"
)

func testServer(t *testing.T) (*Server, *bsa.StubGateway) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	stub := bsa.NewStubGateway()
	cfg := config.Default()
	cfg.BSA.Stub = true

	coord := coordinator.New(coordinator.Options{
		Config:      cfg,
		Checkpoints: services.NewMemCheckpointService(),
		DedupeStore: services.NewMemDedupeService(),
		Executor: resilience.NewExecutor(resilience.Settings{
			MaxRetries:   1,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   2,
		}),
		Planner: planner.New(nil),
		Gateway: func(bsa.Auth) bsa.Gateway { return stub },
	})

	return NewServer(coord, nil), stub
}

func doJSON(t *testing.T, s *Server, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Authorization", "Bearer pk-test")
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHandleQuery_Success(t *testing.T) {
	s, _ := testServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/query", `{
		"query": "What's on my calendar today?",
		"org_id": "org-1",
		"user_id": "user-1",
		"session_id": "sess-1",
		"thread_id": "thread-1",
		"timezone": "UTC"
	}`, true)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Contains(t, w.Body.String(), "appointments")
}

func TestHandleQuery_MissingFields(t *testing.T) {
	s, _ := testServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/v1/query", `{"query": "hi"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleQuery_MissingCredential(t *testing.T) {
	s, _ := testServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/v1/query", `{
		"query": "hello",
		"org_id": "org-1",
		"user_id": "user-1",
		"session_id": "sess-1",
		"thread_id": "thread-1"
	}`, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleResume_UnknownCheckpoint(t *testing.T) {
	s, _ := testServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/v1/resume", `{
		"checkpoint_id": "nope",
		"payload": {"type": "approval_required", "decision": "approve"}
	}`, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleHealth(t *testing.T) {
	s, _ := testServer(t)
	w := doJSON(t, s, http.MethodGet, "/health", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.Contains(t, w.Body.String(), "circuits")
}

func TestHandleEndThread(t *testing.T) {
	s, _ := testServer(t)
	w := doJSON(t, s, http.MethodDelete, "/api/v1/threads/thread-1", "", false)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
