// File: internal/service/handlers.go
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/droidpilot/droidpilot-cli/api/schemas"
	"github.com/droidpilot/droidpilot-cli/internal/config"
	"github.com/droidpilot/droidpilot-cli/internal/device"
	"github.com/droidpilot/droidpilot-cli/internal/orchestrator"
)

// startTaskRequest is the wire shape of POST /api/tasks.
type startTaskRequest struct {
	Text   string `json:"text"`
	Mode   string `json:"mode,omitempty"`
	Device string `json:"device,omitempty"`
}

type startTaskResponse struct {
	TaskID string       `json:"task_id"`
	Mode   schemas.Mode `json:"mode"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	var req startTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "text is required"})
		return
	}
	mode, err := schemas.ParseMode(req.Mode)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	// Runs outlive the request; they are bound to the server's lifecycle.
	taskID, err := s.manager.Start(s.taskContext(), req.Text, mode, req.Device)
	if err != nil {
		if errors.Is(err, device.ErrDeviceBusy) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
			return
		}
		s.logger.Warn("Failed to start task", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, startTaskResponse{TaskID: taskID, Mode: mode})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Tasks())
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, status, ok := s.manager.Status(taskID)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown task"})
		return
	}
	writeJSON(w, http.StatusOK, TaskInfo{Task: task, Status: status})
}

func (s *Server) handleAbortTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if !s.manager.Abort(taskID) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown task"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "aborting"})
}

// handleTaskEvents streams a run's full event history and live tail as
// server-sent events. The stream ends after the terminal event.
func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	history, live, ok := s.manager.Subscribe(taskID)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown task"})
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for _, e := range history {
		if err := writeSSE(w, e); err != nil {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, open := <-live:
			if !open {
				return
			}
			if err := writeSSE(w, e); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleGetConfig exposes the effective configuration read-only. Model API
// keys are redacted; everything else mirrors what viper resolved at startup.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	redacted := *s.cfg
	models := make(map[string]config.LLMModelConfig, len(redacted.Agent.LLM.Models))
	for name, m := range redacted.Agent.LLM.Models {
		if m.APIKey != "" {
			m.APIKey = "[redacted]"
		}
		models[name] = m
	}
	redacted.Agent.LLM.Models = models
	writeJSON(w, http.StatusOK, redacted)
}

// handleStatus reports a service-wide summary: task counts per lifecycle
// state and the number of tracked runs.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts := map[TaskStatus]int{}
	infos := s.manager.Tasks()
	for _, info := range infos {
		counts[info.Status]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks":   len(infos),
		"running": counts[StatusRunning],
		"by_status": map[string]int{
			string(StatusRunning):   counts[StatusRunning],
			string(StatusCompleted): counts[StatusCompleted],
			string(StatusError):     counts[StatusError],
			string(StatusAborted):   counts[StatusAborted],
		},
	})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	serials, err := device.ListDevices(r.Context(), s.cfg.Device)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	type deviceInfo struct {
		Serial string `json:"serial"`
		Busy   bool   `json:"busy"`
	}
	out := make([]deviceInfo, 0, len(serials))
	for _, serial := range serials {
		out = append(out, deviceInfo{Serial: serial, Busy: s.components.Registry().Busy(serial)})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeSSE(w http.ResponseWriter, e orchestrator.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind(), data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
