package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/coastalmapping/vdatum/internal/monitoring"
	"github.com/coastalmapping/vdatum/internal/storage/sqlite"
	"github.com/coastalmapping/vdatum/internal/vdatum/registry"
	"github.com/coastalmapping/vdatum/internal/vdatum/transform"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	reg *registry.Registry
	tr  *transform.Transformer
	db  *sqlite.DB // nil disables the audit trail
}

func NewServer(reg *registry.Registry, tr *transform.Transformer, db *sqlite.DB) *Server {
	return &Server{
		reg: reg,
		tr:  tr,
		db:  db,
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

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/transform/point", s.transformPoint)
	mux.HandleFunc("/api/transform/points", s.transformPoints)
	mux.HandleFunc("/api/regions", s.listRegions)
	mux.HandleFunc("/api/datums", s.listDatums)
	mux.HandleFunc("/api/jobs", s.listJobs)
	mux.HandleFunc("/api/healthz", s.healthz)
	return mux
}
