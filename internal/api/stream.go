package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/brokerguard/internal/middleware"
	"github.com/lalith-99/brokerguard/internal/realtime"
	"go.uber.org/zap"
)

// StreamHandler upgrades broker sessions to a websocket carrying the
// tenant's audit events as they happen.
type StreamHandler struct {
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewStreamHandler accepts any origin. The route sits behind the bearer
// token and tenant header checks, which a cross-site page cannot supply.
func NewStreamHandler(hub *realtime.Hub, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Stream handles GET /admin/broker/ws
func (h *StreamHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.Attach(c.Request.Context(), conn, middleware.GetTenantID(c))
}
