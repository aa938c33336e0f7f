package web

import (
	"context"
	_ "embed"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"camwatch/internal/logger"
	"camwatch/internal/metrics"
)

//go:embed index.html
var indexHTML []byte

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server exposes the live viewer page, the frame websocket and the
// Prometheus metrics endpoint.
type Server struct {
	addr    string
	hub     *Hub
	met     *metrics.Metrics
	gallery *Gallery
	log     *logger.Logger
	srv     *http.Server
}

// NewServer creates a viewer server bound to addr. gallery may be nil when
// no metadata database is available.
func NewServer(addr string, hub *Hub, met *metrics.Metrics, gallery *Gallery, log *logger.Logger) *Server {
	return &Server{
		addr:    addr,
		hub:     hub,
		met:     met,
		gallery: gallery,
		log:     log,
	}
}

// Start runs the hub and the HTTP server in the background and shuts both
// down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWebsocket)
	mux.Handle("/metrics", s.met.Handler())
	if s.gallery != nil {
		mux.HandleFunc("/api/images", s.gallery.handleImages)
		mux.HandleFunc("/api/labels", s.gallery.handleLabels)
		mux.HandleFunc("/api/image", s.gallery.handleImage)
	}

	s.srv = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	go s.hub.Run(ctx)
	go func() {
		s.log.Info("Live viewer listening on http://%s", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("Viewer server failed: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Websocket upgrade failed: %v", err)
		return
	}

	s.hub.Register(conn)

	// The reader loop only exists to notice the client going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.hub.Unregister(conn)
				return
			}
		}
	}()
}
