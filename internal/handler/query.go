package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"erpquery/internal/apperrors"
	"erpquery/internal/logger"
	"erpquery/internal/model"
	"erpquery/internal/service"
)

const msgQueryRequired = "Query parameter is required and must be a non-empty string"

// QueryHandler handles natural-language query requests
type QueryHandler struct {
	queryService *service.QueryService
	log          *zap.Logger
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(queryService *service.QueryService, log *zap.Logger) *QueryHandler {
	log = logger.OrNop(log)
	return &QueryHandler{queryService: queryService, log: log}
}

// Query handles POST /api/v1/query
func (h *QueryHandler) Query(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msgQueryRequired})
		return
	}

	resp, err := h.queryService.Query(c.Request.Context(), &req)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msgQueryRequired})
			return
		}
		h.log.Error("query failed", zap.String("request_id", c.GetString(requestIDKey)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "An error occurred while processing your request.",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}
