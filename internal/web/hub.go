// Package web serves the optional live viewer and metrics endpoint.
package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"camwatch/internal/detect"
	"camwatch/internal/logger"
)

// FrameMessage is the JSON payload broadcast to viewer clients.
type FrameMessage struct {
	Camera  string   `json:"camera"`
	Image   string   `json:"image"`
	Objects []string `json:"objects"`
}

// Hub fans annotated frames out to connected websocket viewers.
type Hub struct {
	camera     string
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.RWMutex
	log        *logger.Logger
}

// NewHub creates a hub for the named camera.
func NewHub(camera string, log *logger.Logger) *Hub {
	return &Hub{
		camera:     camera,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 8),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		log:        log,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// disconnects every viewer.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
			}
			h.clients = make(map[*websocket.Conn]bool)
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Info("Viewer connected. Total: %d", total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Info("Viewer disconnected. Total: %d", total)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.log.Error("Error sending frame to viewer: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Publish encodes one annotated frame for the viewers. Frames are dropped
// when the broadcast queue is full or nobody is watching.
func (h *Hub) Publish(jpeg []byte, result detect.Result) {
	if h.ClientCount() == 0 {
		return
	}

	objects := make([]string, 0, len(result.Detections))
	for _, det := range result.Detections {
		objects = append(objects, det.Label)
	}

	msg, err := json.Marshal(FrameMessage{
		Camera:  h.camera,
		Image:   base64.StdEncoding.EncodeToString(jpeg),
		Objects: objects,
	})
	if err != nil {
		h.log.Error("Failed to encode frame message: %v", err)
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		// Live view lags behind; dropping is better than stalling the loop.
	}
}

// Register adds a viewer connection.
func (h *Hub) Register(client *websocket.Conn) {
	h.register <- client
}

// Unregister removes a viewer connection.
func (h *Hub) Unregister(client *websocket.Conn) {
	h.unregister <- client
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
