// Package api serves the JSON HTTP API: link status and frame sending, the
// frame log, and stored link configurations.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/packetlink/internal/db"
	"github.com/banshee-data/packetlink/internal/httputil"
	"github.com/banshee-data/packetlink/internal/linkmux"
	"github.com/banshee-data/packetlink/internal/version"
)

// ANSI escape codes for request logging
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

type Server struct {
	link     linkmux.LinkMuxInterface
	db       *db.DB
	seal     bool
	session  string
	maxLimit int
}

// NewServer returns an API server for link. Frames built from API requests
// are sealed with a checksum when seal is set. session is the frame-log
// session of this process.
func NewServer(link linkmux.LinkMuxInterface, database *db.DB, seal bool, session string) *Server {
	return &Server{
		link:     link,
		db:       database,
		seal:     seal,
		session:  session,
		maxLimit: 1000,
	}
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

// LoggingMiddleware logs method, path, status, and duration.
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
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/api/link/status", s.showLinkStatus)
	mux.HandleFunc("/api/link/frames", s.sendFrame)
	mux.HandleFunc("/api/frames", s.listFrames)
	mux.HandleFunc("/api/frames/counts", s.showFrameCounts)
	mux.HandleFunc("/api/links", s.handleLinkConfigsOrCreate)
	mux.HandleFunc("/api/links/", s.handleLinkConfigByID)
	return mux
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, version.Get())
}
