// Package api provides the HTTP surface for the coordinator: query,
// resume, and health endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/advisorkit/maestro/pkg/bsa"
	"github.com/advisorkit/maestro/pkg/coordinator"
	"github.com/advisorkit/maestro/pkg/database"
	"github.com/advisorkit/maestro/pkg/models"
	"github.com/advisorkit/maestro/pkg/services"
	"github.com/advisorkit/maestro/pkg/version"
)

// Server is the HTTP API server.
type Server struct {
	router      *gin.Engine
	coordinator *coordinator.Coordinator
	dbClient    *database.Client // nil in stub mode
}

// NewServer creates the API server and registers routes.
func NewServer(coord *coordinator.Coordinator, dbClient *database.Client) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		router:      router,
		coordinator: coord,
		dbClient:    dbClient,
	}
	s.setupRoutes()
	return s
}

// Router exposes the underlying engine (used by tests and main).
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.POST("/query", s.handleQuery)
	v1.POST("/resume", s.handleResume)
	v1.DELETE("/threads/:id", s.handleEndThread)
}

// queryRequest is the wire shape of a fresh query.
type queryRequest struct {
	Query     string `json:"query" binding:"required"`
	OrgID     string `json:"org_id" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
	SessionID string `json:"session_id" binding:"required"`
	ThreadID  string `json:"thread_id" binding:"required"`
	Timezone  string `json:"timezone"`
}

// resumeRequest is the wire shape of a resume call.
type resumeRequest struct {
	CheckpointID string                `json:"checkpoint_id" binding:"required"`
	Payload      *models.ResumePayload `json:"payload" binding:"required"`
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	creds, ok := credentialsFromHeader(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer credential"})
		return
	}

	result, err := s.coordinator.ProcessQuery(c.Request.Context(), models.QueryRequest{
		Query:     req.Query,
		OrgID:     req.OrgID,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		ThreadID:  req.ThreadID,
		Timezone:  req.Timezone,
	}, creds)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleResume(c *gin.Context) {
	var req resumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	creds, ok := credentialsFromHeader(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer credential"})
		return
	}

	result, err := s.coordinator.Resume(c.Request.Context(), models.ResumeRequest{
		CheckpointID: req.CheckpointID,
		Payload:      req.Payload,
	}, creds)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleEndThread(c *gin.Context) {
	s.coordinator.EndThread(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status":   "healthy",
		"version":  version.Full(),
		"circuits": s.coordinator.BreakerStates(),
	}

	if s.dbClient != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		dbStatus := s.dbClient.Health(ctx)
		resp["database"] = dbStatus
		if !dbStatus.Healthy {
			resp["status"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}

// statusFor maps coordinator errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case services.IsValidationError(err):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// credentialsFromHeader builds a credential provider from the request's
// bearer token. The token is opaque to the core and never logged.
func credentialsFromHeader(c *gin.Context) (bsa.CredentialProvider, bool) {
	header := c.GetHeader("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		return nil, false
	}
	return staticCredential(token), true
}

// staticCredential is a per-request provider wrapping an already-issued
// token.
type staticCredential string

// GetCredential returns the wrapped token.
func (t staticCredential) GetCredential(context.Context) (string, error) {
	return string(t), nil
}

// requestLogger is a minimal structured request log middleware.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/health" {
			return
		}
		logRequest(c, time.Since(start))
	}
}
