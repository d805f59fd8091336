package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/peercode/interview-service/internal/errs"
	"github.com/peercode/interview-service/internal/model"
	"github.com/peercode/interview-service/internal/room"
	"github.com/peercode/interview-service/internal/service"
)

// SessionHandler handles the REST API for sessions.
type SessionHandler struct {
	svc      service.SessionServicer
	registry *room.Registry
	cfg      *service.WSConfig
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(svc service.SessionServicer, registry *room.Registry, wsBaseURL string) *SessionHandler {
	return &SessionHandler{
		svc:      svc,
		registry: registry,
		cfg:      &service.WSConfig{BaseURL: wsBaseURL},
	}
}

// CreateSession godoc
// POST /sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req model.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}
	if req.Kind != model.RoomKindPeer && req.Kind != model.RoomKindAIInterview {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be peer or ai-interview"})
		return
	}
	sess, err := h.svc.Create(req.Kind)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	c.JSON(http.StatusCreated, model.CreateSessionResponse{
		SessionID: sess.ID,
		WSURL:     h.cfg.WSURL(sess.ID),
		Status:    sess.Status,
	})
}

// GetSession godoc
// GET /sessions/:id — session info including violation counts. Counts come
// from the live room while it exists, from the database afterwards.
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}
	sess, err := h.svc.Get(sessionID)
	if err != nil {
		if errors.Is(err, errs.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get session"})
		return
	}

	var counts map[model.ViolationType]int
	if rm, err := h.registry.Get(sessionID); err == nil {
		counts = rm.ViolationCounts()
	} else if counts, err = h.svc.ViolationCounts(sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get violations"})
		return
	}

	c.JSON(http.StatusOK, model.SessionInfoResponse{
		SessionID:       sess.ID,
		Kind:            model.RoomKind(sess.Kind),
		Status:          model.SessionStatus(sess.Status),
		CreatedAt:       sess.CreatedAt,
		FinishedAt:      sess.FinishedAt,
		ViolationCounts: counts,
	})
}

// DeleteSession godoc
// DELETE /sessions/:id — finishes the session and closes its room.
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}
	if err := h.svc.Finish(sessionID); err != nil {
		if errors.Is(err, errs.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to finish session"})
		return
	}
	h.registry.Release(sessionID)
	c.Status(http.StatusNoContent)
}
