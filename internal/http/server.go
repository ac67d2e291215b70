package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/agenticsorg/sparc-bench/internal/log"
	"github.com/agenticsorg/sparc-bench/pkg/models"
	"github.com/agenticsorg/sparc-bench/pkg/service"
	"github.com/agenticsorg/sparc-bench/pkg/storage"
	"github.com/pkg/errors"
)

// Server exposes the task store operations as a JSON API.
type Server struct {
	svc *service.TaskService
	mux *http.ServeMux
}

func NewServer(svc *service.TaskService) *Server {
	s := &Server{svc: svc, mux: http.NewServeMux()}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/tasks/next", s.handleNextTask)
	s.mux.HandleFunc("/tasks/", s.handleTask)
	s.mux.HandleFunc("/reports/summary", s.handleSummary)
	s.mux.HandleFunc("/reports/repositories", s.handleRepositories)
	s.mux.HandleFunc("/reports/steps", s.handleStepAnalytics)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start runs the server on the given port.
func (s *Server) Start(port string) error {
	log.GetLogger().Infof("Starting sparc-bench server on :%s", port)
	return http.ListenAndServe(":"+port, s)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleNextTask hands out a random unstarted task. Solution fields are
// never part of the response.
func (s *Server) handleNextTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	repo := r.URL.Query().Get("repo")
	var exclude []string
	if raw := r.URL.Query().Get("exclude"); raw != "" {
		exclude = strings.Split(raw, ",")
	}
	task, err := s.svc.GetAvailableTask(repo, exclude)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleTask routes /tasks/{id} and /tasks/{id}/{action}.
func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/tasks/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "missing instance id")
		return
	}
	instanceID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		details, err := s.svc.GetTaskDetails(instanceID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, details)
		return
	}

	switch parts[1] {
	case "start":
		s.handleStart(w, r, instanceID)
	case "steps":
		s.handleLogStep(w, r, instanceID)
	case "status":
		s.handleUpdateStatus(w, r, instanceID)
	case "solution":
		s.handleSolution(w, r, instanceID)
	default:
		writeError(w, http.StatusNotFound, "unknown action")
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request, instanceID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.svc.StartTask(instanceID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"instance_id": instanceID,
		"status":      string(models.InProgressStatus),
	})
}

func (s *Server) handleLogStep(w http.ResponseWriter, r *http.Request, instanceID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Description == "" {
		writeError(w, http.StatusBadRequest, "missing 'description'")
		return
	}
	step, err := s.svc.LogStep(instanceID, body.Description)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"instance_id": instanceID,
		"step":        step,
	})
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request, instanceID string) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		Status  string `json:"status"`
		Details string `json:"details"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.svc.UpdateTaskStatus(instanceID, models.CompletionStatus(body.Status), body.Details); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"instance_id": instanceID,
		"status":      body.Status,
	})
}

func (s *Server) handleSolution(w http.ResponseWriter, r *http.Request, instanceID string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	solution, err := s.svc.GetSolution(instanceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, solution)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.GetCompletionSummary()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRepositories(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.GetRepoStatistics()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStepAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.svc.GetStepAnalytics()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrNotCompleted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.GetLogger().Errorf("Internal error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.GetLogger().Errorf("Failed to encode response: %v", err)
	}
}
