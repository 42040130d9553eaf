package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/jouleworks/gridmind/internal/buildinfo"
	"github.com/jouleworks/gridmind/internal/device"
	"github.com/jouleworks/gridmind/internal/optimize"
	"github.com/jouleworks/gridmind/internal/telemetry"
)

// defaultReadingCount bounds /api/readings when no count is given.
const defaultReadingCount = 60

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.orch.Devices(), s.logger)
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	d, err := s.orch.Device(id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, d, s.logger)
}

// controlRequest is the POST /api/devices/{id}/control body.
type controlRequest struct {
	Action string  `json:"action"`
	Value  float64 `json:"value,omitempty"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	action, err := device.ParseAction(req.Action)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := s.orch.ControlDevice(id, action, req.Value)
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, device.ErrUnknownDevice) {
			code = http.StatusNotFound
		}
		s.errorResponse(w, code, err.Error())
		return
	}
	writeJSON(w, map[string]any{"success": true, "device": d}, s.logger)
}

func (s *Server) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	reading, ok := s.orch.LatestReading()
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "no readings yet")
		return
	}
	writeJSON(w, reading, s.logger)
}

func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var readings []telemetry.Reading
	switch {
	case q.Get("since") != "":
		since, err := time.Parse(time.RFC3339, q.Get("since"))
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid since value: "+err.Error())
			return
		}
		readings = s.orch.ReadingsSince(since)
	case q.Get("count") != "":
		count, err := strconv.Atoi(q.Get("count"))
		if err != nil || count <= 0 {
			s.errorResponse(w, http.StatusBadRequest, "count must be a positive integer")
			return
		}
		readings = s.orch.Readings(count)
	default:
		readings = s.orch.Readings(defaultReadingCount)
	}

	if readings == nil {
		readings = []telemetry.Reading{}
	}
	writeJSON(w, readings, s.logger)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	fc, ok := s.orch.Forecast()
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "no forecast yet")
		return
	}
	writeJSON(w, fc, s.logger)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, ok := s.orch.Analysis()
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "no analysis yet")
		return
	}
	writeJSON(w, analysis, s.logger)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	recs := s.orch.Recommendations()
	if recs == nil {
		recs = []optimize.Recommendation{}
	}
	writeJSON(w, recs, s.logger)
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.orch.ApplyRecommendation(id)
	if err != nil {
		code := http.StatusConflict
		if errors.Is(err, optimize.ErrUnknownRecommendation) {
			code = http.StatusNotFound
		}
		s.errorResponse(w, code, err.Error())
		return
	}
	writeJSON(w, map[string]any{"success": true, "recommendation": rec}, s.logger)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.orch.Stats(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  string(s.orch.Health()),
		"version": buildinfo.Version,
		"uptime":  buildinfo.Uptime().String(),
	}, s.logger)
}
