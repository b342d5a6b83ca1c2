package main

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// setupStaticFiles serves the widget bundle from dir at /widget when dir exists
func setupStaticFiles(router *gin.Engine, dir string, log *zap.Logger) {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			router.Static("/widget", dir)
			log.Info("serving widget assets", zap.String("dir", dir))
		} else {
			log.Warn("widget directory not found, /widget disabled", zap.String("dir", dir))
		}
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "API endpoint not found"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Not found"})
	})
}
