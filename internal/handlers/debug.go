package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketplace-chat/internal/ws"
)

// PresenceSource exposes who is connected.
type PresenceSource interface {
	ListOnlineUsers() []string
	ConnectionCount() int
	Snapshot() []*ws.Connection
	Get(connID string) (*ws.Connection, bool)
}

type connResponse struct {
	ConnID        string   `json:"conn_id"`
	UserID        string   `json:"user_id"`
	DeviceID      string   `json:"device_id,omitempty"`
	IP            string   `json:"ip"`
	Alive         bool     `json:"alive"`
	Closed        bool     `json:"closed"`
	Subscriptions []string `json:"subscriptions"`
}

func describeConnection(conn *ws.Connection) connResponse {
	return connResponse{
		ConnID:        conn.ID,
		UserID:        conn.UserID,
		DeviceID:      conn.Info.DeviceID,
		IP:            conn.Info.IP,
		Alive:         conn.IsAlive(),
		Closed:        conn.IsClosed(),
		Subscriptions: conn.Subscriptions(),
	}
}

// OnlineUsers lists the users holding at least one live connection.
func OnlineUsers(registry PresenceSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"users":       registry.ListOnlineUsers(),
			"connections": registry.ConnectionCount(),
		})
	}
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRouter, registry PresenceSource, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/connections", func(c *gin.Context) {
		conns := registry.Snapshot()
		resp := make([]connResponse, 0, len(conns))
		for _, conn := range conns {
			resp = append(resp, describeConnection(conn))
		}
		c.JSON(http.StatusOK, gin.H{"connections": resp})
	})

	router.GET("/debug/connections/:conn_id", func(c *gin.Context) {
		conn, ok := registry.Get(c.Param("conn_id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"connection": describeConnection(conn)})
	})
}
