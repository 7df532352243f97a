package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"dataexplorer/internal/model"
	"dataexplorer/internal/rawtable"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTaglist(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refresh") == "true"

	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	tags, err := s.engine.Taglist(ctx, refresh)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

type fetchDataRequest struct {
	Tags                 []string `json:"tags"`
	StartDateUnixSeconds int64    `json:"startDateUnixSeconds"`
	EndDateUnixSeconds   int64    `json:"endDateUnixSeconds"`
}

func (s *Server) handleFetchData(w http.ResponseWriter, r *http.Request) {
	var req fetchDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if len(req.Tags) == 0 {
		badRequest(w, "tags must be non-empty")
		return
	}
	if req.EndDateUnixSeconds < req.StartDateUnixSeconds {
		badRequest(w, "endDateUnixSeconds must be >= startDateUnixSeconds")
		return
	}

	res, err := s.engine.FetchInto(r.Context(), req.Tags, req.StartDateUnixSeconds, req.EndDateUnixSeconds)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"newData":      res.NewData,
		"redrawNeeded": res.RedrawNeeded,
	})
}

type buildWorkingRequest struct {
	DataOffset  float64 `json:"dataOffset"`
	ForwardFill bool    `json:"forwardFill"`
}

func (s *Server) handleBuildWorkingTable(w http.ResponseWriter, r *http.Request) {
	var req buildWorkingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	rows, redraw, err := s.engine.BuildWorking(req.DataOffset, req.ForwardFill)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":         serializeRows(rows),
		"redrawNeeded": redraw,
	})
}

// serializeRows renders rows the way WORKING/RAW serialization must: a
// uniform null for every absent cell, covering missing, sentinel-masked,
// NaN, and absent values alike.
func serializeRows(rows []rawtable.Row) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		cells := map[string]interface{}{
			"timestampMs":   row.TimestampMs,
			"timestampText": row.TimestampText,
		}
		for tag, v := range row.Values {
			if v == nil {
				cells[tag] = nil
			} else {
				cells[tag] = *v
			}
		}
		out = append(out, cells)
	}
	return out
}

func (s *Server) handleSiteSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.engine.SiteSettings())
	case http.MethodPost:
		var settings model.SiteSettings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			badRequest(w, "invalid JSON body")
			return
		}
		if err := s.engine.SetSiteSettings(settings); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, settings)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleTagSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.engine.TagSettings())
	case http.MethodPost:
		var settings model.TagSettings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			badRequest(w, "invalid JSON body")
			return
		}
		if settings.ScaleFactors == nil {
			settings.ScaleFactors = map[string]float64{}
		}
		if settings.MaxDecimal == nil {
			settings.MaxDecimal = map[string]int{}
		}
		if settings.ErrorValue == nil {
			settings.ErrorValue = map[string]float64{}
		}
		if err := s.engine.SetTagSettings(settings); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, settings)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClearCache(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
	if s.onShutdown != nil {
		go s.onShutdown()
	}
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "restarting"})
	if s.onRestart != nil {
		go s.onRestart()
	}
}

type logEventRequest struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (s *Server) handleLogEvent(w http.ResponseWriter, r *http.Request) {
	var req logEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.Type != "user" && req.Type != "script" {
		badRequest(w, `type must be "user" or "script"`)
		return
	}
	if err := s.engine.LogEvent(req.Type, req.Message); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged"})
}
