package autosync

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/autosync_backend/config"
)

// OpsTokenMiddleware guards the internal endpoints with the x-ops-token header.
// An empty token leaves them open.
func OpsTokenMiddleware(token string) gin.HandlerFunc {
	token = strings.TrimSpace(token)
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := c.GetHeader("x-ops-token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func StatusHandler(m *Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := gin.H{"status": m.Status()}
		workers, err := m.ClusterStatus(c.Request.Context())
		if err != nil {
			config.LogError(m.logger, moduleName, "StatusHandler", "list worker statuses", m.workerId, err)
		} else if len(workers) > 0 {
			resp["workers"] = workers
		}
		c.JSON(http.StatusOK, resp)
	}
}

func RunHandler(m *Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientId := strings.TrimSpace(c.Query("client_id"))
		if clientId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required"})
			return
		}
		result, err := m.RunTenantNow(c.Request.Context(), clientId)
		switch {
		case errors.Is(err, ErrTenantNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
		case errors.Is(err, ErrLockNotObtained):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
		default:
			c.JSON(http.StatusOK, result)
		}
	}
}

// RegisterRoutes mounts the ops surface under /internal/autosync.
func RegisterRoutes(r gin.IRouter, m *Monitor, opsToken string) {
	g := r.Group("/internal/autosync", OpsTokenMiddleware(opsToken))
	g.GET("/status", StatusHandler(m))
	g.POST("/run", RunHandler(m))
}
