package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"heightmap.ai/internal/persistence/indexdb"
	"heightmap.ai/internal/pipeline"
	"heightmap.ai/internal/protocol"
	"heightmap.ai/internal/raster"
	"heightmap.ai/internal/sim/tuning"
)

const maxRequestBytes = 64 * 1024

type Server struct {
	runner *pipeline.Runner
	index  *indexdb.SQLiteIndex
	base   tuning.Tuning
	log    *log.Logger
}

// NewServer serves generation over plain HTTP. index may be nil.
func NewServer(r *pipeline.Runner, index *indexdb.SQLiteIndex, base tuning.Tuning, logger *log.Logger) *Server {
	return &Server{runner: r, index: index, base: base, log: logger}
}

// Register mounts the handlers on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/generate", s.GenerateHandler())
	mux.HandleFunc("/v1/runs", s.RunsHandler())
	mux.HandleFunc("/v1/runs/{id}", s.RunHandler())
}

// GenerateHandler takes a GENERATE body and answers with the encoded image.
// Run metadata travels in X-Heightmap-* headers.
func (s *Server) GenerateHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
		if err != nil {
			writeError(rw, "", &protocol.RequestError{Code: protocol.ErrProtoBadRequest, Err: err})
			return
		}
		req, err := protocol.DecodeGenerate(body)
		if err != nil {
			writeError(rw, req.RequestID, err)
			return
		}
		t := req.Apply(s.base)
		format, err := raster.ParseFormat(t.Export.Format)
		if err != nil {
			writeError(rw, req.RequestID, &protocol.RequestError{Code: protocol.ErrBadRequest, Err: err})
			return
		}

		res, err := s.runner.Run(r.Context(), pipeline.Request{Tuning: t})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			writeError(rw, req.RequestID, err)
			return
		}

		h := rw.Header()
		h.Set("Content-Type", "image/"+string(format))
		h.Set("X-Heightmap-Run-Id", res.RunID)
		h.Set("X-Heightmap-Seed", strconv.FormatInt(res.Seed, 10))
		h.Set("X-Heightmap-Grid-Size", strconv.Itoa(res.Sizing.Size))
		h.Set("X-Heightmap-Digest", res.Digest)
		if err := raster.Write(rw, res.Heightmap, raster.Options{Format: format, BitDepth: t.Export.BitDepth}); err != nil {
			s.printf("write image run=%s: %v", res.RunID, err)
		}
	}
}

// RunsHandler lists indexed runs, newest first. Loopback only.
func (s *Server) RunsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.indexAllowed(rw, r) {
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 1000 {
			limit = 50
		}
		runs, err := s.index.ListRuns(r.Context(), limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		if runs == nil {
			runs = []indexdb.RunRecord{}
		}
		writeJSON(rw, http.StatusOK, runs)
	}
}

func (s *Server) RunHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.indexAllowed(rw, r) {
			return
		}
		run, err := s.index.FindRun(r.Context(), r.PathValue("id"))
		if errors.Is(err, indexdb.ErrNotFound) {
			http.Error(rw, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(rw, http.StatusOK, run)
	}
}

func (s *Server) indexAllowed(rw http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return false
	}
	if s.index == nil {
		http.Error(rw, "run index disabled", http.StatusNotFound)
		return false
	}
	return true
}

// StatusFor maps a wire error code to an HTTP status.
func StatusFor(code string) int {
	switch code {
	case protocol.ErrProtoBadRequest:
		return http.StatusBadRequest
	case protocol.ErrBadRequest, protocol.ErrSizeExceeded:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(rw http.ResponseWriter, requestID string, err error) {
	msg := protocol.NewError(requestID, err)
	writeJSON(rw, StatusFor(msg.Code), msg)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
