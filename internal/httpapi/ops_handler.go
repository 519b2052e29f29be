package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SkinMatchProject5/camera-backend/internal/registry"
)

// OpsHandler serves read-only operational endpoints over the registry.
type OpsHandler struct {
	registry *registry.Registry
}

type sessionConnectionsResponse struct {
	SessionID     string   `json:"session_id"`
	ConnectionIDs []string `json:"connection_ids"`
	Count         int      `json:"count"`
}

func NewOpsHandler(reg *registry.Registry) *OpsHandler {
	return &OpsHandler{registry: reg}
}

func NewRouter(cameraWS *CameraWSHandler, ops *OpsHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", ops.Health)
	router.GET("/api/v1/connections/stats", ops.ConnectionStats)
	router.GET("/api/v1/sessions/:session_id/connections", ops.SessionConnections)
	router.GET("/ws/camera/:session_id", cameraWS.HandleSession)
	router.GET("/ws/camera", cameraWS.HandleGeneratedSession)
	return router
}

func (h *OpsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "camera-backend"})
}

func (h *OpsHandler) ConnectionStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Stats())
}

func (h *OpsHandler) SessionConnections(c *gin.Context) {
	sessionID := c.Param("session_id")
	ids := h.registry.SessionConnections(sessionID)
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, sessionConnectionsResponse{
		SessionID:     sessionID,
		ConnectionIDs: ids,
		Count:         len(ids),
	})
}
