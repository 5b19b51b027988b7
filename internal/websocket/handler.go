package websocket

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs runs one connection until the peer goes away.
func ServeWs(hub *Hub, c *websocket.Conn, ownerID uuid.UUID) {
	client := NewClient(hub, c, ownerID)
	hub.register <- client

	go client.writePump()
	client.readPump()
}
