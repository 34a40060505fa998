// Package api exposes the pipeline over HTTP: the annotated MJPEG stream,
// session and status JSON, a pause control, the Prometheus metrics
// endpoint, and a websocket event feed.
package api

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/usage.report/internal/httputil"
	"github.com/banshee-data/usage.report/internal/monitoring"
	"github.com/banshee-data/usage.report/internal/version"
	"github.com/banshee-data/usage.report/internal/vision/pipeline"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// streamInterval paces the MJPEG writer; frames arriving faster than this
// are skipped by sequence number.
const streamInterval = 40 * time.Millisecond

type Server struct {
	runners map[string]*pipeline.Runner
	hub     *Hub
	started time.Time
}

// NewServer creates a Server over the given runners, one per camera.
func NewServer(hub *Hub, runners ...*pipeline.Runner) *Server {
	byCamera := make(map[string]*pipeline.Runner, len(runners))
	for _, r := range runners {
		byCamera[r.Camera()] = r
	}
	return &Server{runners: byCamera, hub: hub, started: time.Now()}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.streamMJPEG)
	mux.HandleFunc("/snapshot.jpg", s.snapshot)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/pause", s.setPaused)
	mux.HandleFunc("/ws/events", s.serveEvents)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// runnerFor resolves the camera query parameter. With a single camera the
// parameter may be omitted.
func (s *Server) runnerFor(r *http.Request) (*pipeline.Runner, error) {
	camera := r.URL.Query().Get("camera")
	if camera == "" {
		if len(s.runners) == 1 {
			for _, runner := range s.runners {
				return runner, nil
			}
		}
		return nil, fmt.Errorf("camera parameter required")
	}
	runner, ok := s.runners[camera]
	if !ok {
		return nil, fmt.Errorf("unknown camera %q", camera)
	}
	return runner, nil
}

// streamMJPEG serves the annotated frames as multipart/x-mixed-replace,
// the format browsers render as a live image.
func (s *Server) streamMJPEG(w http.ResponseWriter, r *http.Request) {
	runner, err := s.runnerFor(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	var served uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			jpeg, seq := runner.LatestJPEG()
			if jpeg == nil || seq == served {
				continue
			}
			served = seq
			_, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg))
			if err == nil {
				_, err = w.Write(jpeg)
			}
			if err == nil {
				_, err = fmt.Fprint(w, "\r\n")
			}
			if err != nil {
				monitoring.Logf("api: stream client gone: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	runner, err := s.runnerFor(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	jpeg, _ := runner.LatestJPEG()
	if jpeg == nil {
		http.Error(w, "no frame yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(jpeg)
}

// SessionAPI is the JSON shape for one open session.
type SessionAPI struct {
	SessionID      int64     `json:"session_id"`
	Box            [4]int    `json:"box"`
	StartedAt      time.Time `json:"started_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	AlertTriggered bool      `json:"alert_triggered"`
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	runner, err := s.runnerFor(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	now := time.Now()
	tolerance := runner.SessionConfig().GapTolerance
	open := runner.Sessions()
	out := make([]SessionAPI, 0, len(open))
	for _, sess := range open {
		out = append(out, SessionAPI{
			SessionID:      sess.ID,
			Box:            [4]int{sess.Box.Min.X, sess.Box.Min.Y, sess.Box.Max.X, sess.Box.Max.Y},
			StartedAt:      sess.StartedAt,
			LastSeenAt:     sess.LastSeenAt,
			ElapsedSeconds: sess.Elapsed(now, tolerance).Seconds(),
			AlertTriggered: sess.AlertFired,
		})
	}

	httputil.WriteJSONOK(w, out)
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	cameras := make(map[string]interface{}, len(s.runners))
	for name, runner := range s.runners {
		_, seq := runner.LatestJPEG()
		cameras[name] = map[string]interface{}{
			"paused":        runner.Paused(),
			"open_sessions": len(runner.Sessions()),
			"frames_served": seq,
		}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"version":        version.Version,
		"uptime_seconds": time.Since(s.started).Seconds(),
		"event_clients":  s.hub.ClientCount(),
		"cameras":        cameras,
	})
}

func (s *Server) setPaused(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	runner, err := s.runnerFor(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	paused, err := strconv.ParseBool(r.FormValue("paused"))
	if err != nil {
		httputil.BadRequest(w, "Invalid 'paused' parameter")
		return
	}
	runner.SetPaused(paused)

	httputil.WriteJSONOK(w, map[string]bool{"paused": runner.Paused()})
}

var upgrader = websocket.Upgrader{
	// The event feed is consumed by dashboards on other origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("api: websocket upgrade: %v", err)
		return
	}
	s.hub.Register(conn)

	// Drain client messages until disconnect; the feed is one-way.
	go func() {
		defer s.hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
