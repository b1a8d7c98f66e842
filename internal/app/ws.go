package app

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"trellis/api/internal/live"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	// CORS is enforced by the surrounding middleware; the socket itself
	// carries no credentials.
	CheckOrigin: func(*http.Request) bool { return true },
}

type liveFrame struct {
	Path  string          `json:"path"`
	Docs  []live.Document `json:"docs"`
	Error string          `json:"error,omitempty"`
}

// handleLive streams live-query snapshots for one path over a WebSocket.
// The subscription lives until the client disconnects; closing the socket
// cancels it.
func (s *HTTPServer) handleLive(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		writeError(w, http.StatusUnprocessableEntity, codeValidation, "path is required", nil)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live: upgrade: %v", err)
		return
	}

	// The request context ends when this handler returns; the subscription
	// must outlive it and is cancelled from the read loop instead.
	// Snapshots are written only from the subscription's delivery goroutine,
	// so the single-writer rule of the websocket holds.
	handle := s.service.Live().Listen(context.Background(), path, func(snap live.Snapshot) {
		frame := liveFrame{Path: snap.Path, Docs: snap.Docs}
		if snap.Err != nil {
			frame.Error = snap.Err.Error()
		}
		if frame.Docs == nil {
			frame.Docs = []live.Document{}
		}
		payload, err := json.Marshal(frame)
		if err != nil {
			log.Printf("live: encode frame for %s: %v", path, err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("live: write frame for %s: %v", path, err)
		}
	})

	go func() {
		defer handle.Cancel()
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
