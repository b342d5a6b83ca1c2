package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"erpquery/internal/logger"
	"erpquery/internal/model"
	"erpquery/internal/service"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// SessionHandler exposes the conversation context of a session
type SessionHandler struct {
	sessions *service.SessionStore
	history  service.QueryHistory
	log      *zap.Logger
}

// NewSessionHandler creates a new session handler. history may be nil when
// the query audit log is disabled.
func NewSessionHandler(sessions *service.SessionStore, history service.QueryHistory, log *zap.Logger) *SessionHandler {
	log = logger.OrNop(log)
	return &SessionHandler{sessions: sessions, history: history, log: log}
}

// Get handles GET /api/v1/session/:id
func (h *SessionHandler) Get(c *gin.Context) {
	id := c.Param("id")
	ctx, ok := h.sessions.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sessionId": id, "context": ctx})
}

// Delete handles DELETE /api/v1/session/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if !h.sessions.Delete(id) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Session cleared"})
}

// History handles GET /api/v1/session/:id/history
func (h *SessionHandler) History(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Query history is not enabled"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	id := c.Param("id")
	entries, err := h.history.RecentQueries(c.Request.Context(), id, limit)
	if err != nil {
		h.log.Error("failed to load query history",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("session_id", id),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to load query history"})
		return
	}
	if entries == nil {
		entries = []model.QueryLogEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"sessionId": id,
		"history":   entries,
		"total":     len(entries),
	})
}
