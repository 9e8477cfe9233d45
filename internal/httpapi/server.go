// Package httpapi exposes the operator-facing HTTP surface: issuing merge
// and clear commands, and reading back track snapshots and listener/
// visualizer throughput stats.
package httpapi

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/seawatch/trackhub/internal/dispatcher"
	"github.com/seawatch/trackhub/internal/service"
)

const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server is the thin HTTP facade over the service facade and the store's
// read-only snapshot surface.
type Server struct {
	svc    *service.Service
	reader dispatcher.SnapshotReader
	stats  map[string]func() any
}

// NewServer constructs a Server. stats is an optional name->accessor map
// surfaced verbatim under GET /stats (each collaborator's own Stats method
// wrapped as a thunk, since their concrete return types differ); a nil map
// yields an empty object.
func NewServer(svc *service.Service, reader dispatcher.SnapshotReader, stats map[string]func() any) *Server {
	return &Server{svc: svc, reader: reader, stats: stats}
}

// ServeMux builds the operator HTTP surface.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/commands/merge", s.handleMerge)
	mux.HandleFunc("/commands/clear", s.handleClear)
	mux.HandleFunc("/tracks", s.handleListTracks)
	mux.HandleFunc("/tracks/", s.handleGetTrack)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
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

// LoggingMiddleware logs method, path, status, and duration for every
// request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf("[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

type mergeRequest struct {
	SourceID uint32 `json:"source_id"`
	TargetID uint32 `json:"target_id"`
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if err := s.svc.Merge(req.SourceID, req.TargetID); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	io.WriteString(w, "merge command enqueued")
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.svc.ClearAll(); err != nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	io.WriteString(w, "clear command enqueued")
}

type trackSummary struct {
	ID                 uint32 `json:"id"`
	ExtrapolationCount uint32 `json:"extrapolation_count"`
	PointCount         uint32 `json:"point_count"`
	State              int32  `json:"state"`
}

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ids := s.reader.ActiveIDs()
	out := make([]trackSummary, 0, len(ids))
	for _, id := range ids {
		h, ok := s.reader.Header(id)
		if !ok {
			continue
		}
		out = append(out, trackSummary{
			ID:                 h.ID,
			ExtrapolationCount: h.ExtrapolationCount,
			PointCount:         h.PointCount,
			State:              int32(h.State),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type trackDetail struct {
	trackSummary
	Window []pointJSON `json:"window"`
}

type pointJSON struct {
	Longitude  float64 `json:"longitude"`
	Latitude   float64 `json:"latitude"`
	SOG        float64 `json:"sog"`
	COG        float64 `json:"cog"`
	Angle      float64 `json:"angle"`
	Distance   float64 `json:"distance"`
	Associated bool    `json:"associated"`
	Timestamp  int64   `json:"timestamp"`
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	idStr := r.URL.Path[len("/tracks/"):]
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid track id: "+idStr)
		return
	}
	header, ok := s.reader.Header(uint32(id))
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "unknown track id")
		return
	}
	window, _ := s.reader.Window(uint32(id))
	points := make([]pointJSON, len(window))
	for i, p := range window {
		points[i] = pointJSON{
			Longitude: p.Longitude, Latitude: p.Latitude, SOG: p.SOG, COG: p.COG,
			Angle: p.Angle, Distance: p.Distance, Associated: p.Associated, Timestamp: p.Timestamp,
		}
	}
	s.writeJSON(w, http.StatusOK, trackDetail{
		trackSummary: trackSummary{
			ID:                 header.ID,
			ExtrapolationCount: header.ExtrapolationCount,
			PointCount:         header.PointCount,
			State:              int32(header.State),
		},
		Window: points,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	out := make(map[string]any, len(s.stats))
	for name, get := range s.stats {
		out[name] = get()
	}
	s.writeJSON(w, http.StatusOK, out)
}
