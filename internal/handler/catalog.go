package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"erpquery/internal/catalog"
)

// serviceInfo is one entry of the service listing
type serviceInfo struct {
	Name             string   `json:"name"`
	Title            string   `json:"title"`
	Entities         []string `json:"entities"`
	ParameterBased   bool     `json:"parameterBased"`
	MandatoryFilters []string `json:"mandatoryFilters,omitempty"`
}

// CatalogHandler lists the whitelisted services
type CatalogHandler struct {
	catalog *catalog.Catalog
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(c *catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: c}
}

// Services handles GET /api/v1/services
func (h *CatalogHandler) Services(c *gin.Context) {
	services := make([]serviceInfo, 0, len(h.catalog.Services))
	for _, s := range h.catalog.Services {
		info := serviceInfo{Name: s.Name, Title: s.Title, Entities: s.Entities}
		if p, ok := h.catalog.ParameterAPI(s.Name); ok {
			info.ParameterBased = true
			info.MandatoryFilters = p.MandatoryFilters
		}
		services = append(services, info)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "services": services, "total": len(services)})
}
