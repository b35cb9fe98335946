// Package server exposes the service's HTTP surface: snapshot file
// upload, worker status, health, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"option-pipeline/internal/archiver"
	"option-pipeline/internal/ingest"
	"option-pipeline/internal/observability"
	"option-pipeline/internal/permuter"
	"option-pipeline/internal/storage"
	"option-pipeline/internal/worker"
)

// Options contains configuration for creating a Server.
type Options struct {
	Addr        string
	IncomingDir string

	// Status sources. Any of these may be nil; the status response
	// simply omits the section.
	Workers  []*worker.Worker
	Ingest   *ingest.Watcher
	Archiver *archiver.Archiver
	Permuter *permuter.Permuter
	Stats    storage.StatsStore

	Logger *log.Logger
}

// Server is the HTTP collaborator surface.
type Server struct {
	opts Options
	http *http.Server
}

// New creates a new Server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	s := &Server{opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload_file", s.handleUpload)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		s.opts.Logger.Printf("[server] listening on %s", s.opts.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.opts.Logger.Printf("[server] error: %v", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// handleUpload accepts a JSON file upload and saves a timestamped copy
// into the incoming folder. The ingest watcher picks it up on its next
// cycle; nothing is written to the store here.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "error", "message": "missing file field",
		})
		return
	}
	defer file.Close()

	base := strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	if base == "" || base == "." {
		base = "upload"
	}
	name := fmt.Sprintf("%s_%s.json", base, time.Now().UTC().Format("20060102_150405.000000"))
	dest := filepath.Join(s.opts.IncomingDir, name)

	out, err := os.Create(dest)
	if err != nil {
		s.opts.Logger.Printf("[server] save upload: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error", "message": "could not save file",
		})
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		s.opts.Logger.Printf("[server] write upload: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error", "message": "could not write file",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "filename": name})
}

// statusResponse is the consistent point-in-time view returned by
// /api/status. Every section is a snapshot copy, safe to build while
// processing cycles are active.
type statusResponse struct {
	Workers  []worker.Status  `json:"workers,omitempty"`
	Ingest   *ingest.Status   `json:"ingest,omitempty"`
	Archiver *archiver.Status `json:"archiver,omitempty"`
	Permuter *permuter.Status `json:"permuter,omitempty"`
	Store    any              `json:"store,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{}
	for _, wk := range s.opts.Workers {
		resp.Workers = append(resp.Workers, wk.Status())
	}
	if s.opts.Ingest != nil {
		st := s.opts.Ingest.Status()
		resp.Ingest = &st
	}
	if s.opts.Archiver != nil {
		st := s.opts.Archiver.Status()
		resp.Archiver = &st
	}
	if s.opts.Permuter != nil {
		st := s.opts.Permuter.Status()
		resp.Permuter = &st
	}
	if s.opts.Stats != nil {
		if sum, err := s.opts.Stats.Summary(r.Context()); err == nil {
			resp.Store = sum
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
