package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fpang/poetry-camera/internal/engine"
	"github.com/fpang/poetry-camera/internal/feedback"
	"github.com/fpang/poetry-camera/internal/trigger"
)

type statusResponse struct {
	Engine  engine.Status     `json:"engine"`
	Display *feedback.Status  `json:"display,omitempty"`
	Devices map[string]Device `json:"devices,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Engine: s.opts.Engine.Status()}
	if s.opts.Display != nil {
		d := s.opts.Display.Latest()
		resp.Display = &d
	}
	if s.opts.Devices != nil {
		resp.Devices = s.opts.Devices()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleTrigger acts like a button press, so it only starts a run in manual
// mode. Presses during a run, or in a gesture mode, are dropped by the engine
// and the reply only says it was received.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	s.opts.Triggers.Publish(trigger.Event{
		Source:     trigger.ManualButton,
		Label:      "http",
		Confidence: 1,
		At:         time.Now(),
	})
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "received",
		"phase":  s.opts.Engine.Status().Phase.String(),
	})
}

func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"mode": s.opts.Engine.Mode().String()})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Mode) == "" {
		httpError(w, http.StatusBadRequest, "mode is required")
		return
	}
	mode, err := trigger.ParseMode(req.Mode)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	changed := s.opts.Engine.SetMode(mode)
	if changed && s.opts.OnModeChange != nil {
		s.opts.OnModeChange(mode)
	}
	respondJSON(w, http.StatusOK, map[string]any{"mode": mode.String(), "changed": changed})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ledger == nil {
		httpError(w, http.StatusNotFound, "run history disabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			httpError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	runs, err := s.opts.Ledger.ListRuns(r.Context(), limit)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ledger == nil {
		httpError(w, http.StatusNotFound, "run history disabled")
		return
	}
	run, err := s.opts.Ledger.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	if run == nil {
		httpError(w, http.StatusNotFound, "run not found")
		return
	}
	respondJSON(w, http.StatusOK, run)
}
