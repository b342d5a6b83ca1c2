package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"erpquery/internal/service"
)

// DiagnosticsHandler checks connectivity to the remote services
type DiagnosticsHandler struct {
	queryService *service.QueryService
}

// NewDiagnosticsHandler creates a new diagnostics handler
func NewDiagnosticsHandler(queryService *service.QueryService) *DiagnosticsHandler {
	return &DiagnosticsHandler{queryService: queryService}
}

// Entities handles GET /api/v1/diagnostics/entities
func (h *DiagnosticsHandler) Entities(c *gin.Context) {
	results := h.queryService.CheckEntities(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Entity test completed",
		"results":  results,
		"services": h.queryService.SummarizeServices(results),
	})
}
