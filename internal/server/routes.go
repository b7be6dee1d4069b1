package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vaultpress/buildworker/internal/common"
	"github.com/vaultpress/buildworker/internal/models"
)

// validate is shared across requests; go-playground/validator caches
// struct metadata internally and is safe for concurrent use.
var validate = validator.New()

// validationMessage turns a validator.ValidationErrors into a short,
// client-facing string naming the first offending field.
func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	return fmt.Sprintf("field %q failed validation: %s", fe.Field(), fe.Tag())
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/process", s.handleProcess)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/jobs/", s.handleJobStatus)
	mux.HandleFunc("/api/jobs", s.handleJobList)
	mux.HandleFunc("/ws", s.logStream.handle)

	return mux
}

// handleProcess accepts POST /process: {jobId, task, data, callbackUrl}.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.SubmitResponse{Status: "error", Message: "invalid request body"})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.SubmitResponse{Status: "error", JobID: req.JobID, Message: validationMessage(err)})
		return
	}

	resp, status := s.manager.Submit(req)
	writeJSONResponse(w, status, resp)
}

// handleHealth serves GET /health: {status, timestamp}.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
	})
}

// handleJobStatus serves GET /api/jobs/{id}.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" {
		http.Error(w, "job id is required", http.StatusBadRequest)
		return
	}

	job, err := s.manager.Get(r.Context(), jobID)
	if err != nil {
		writeJSONResponse(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	writeJSONResponse(w, http.StatusOK, job)
}

// handleJobList serves GET /api/jobs?limit=&offset=.
func (s *Server) handleJobList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 100
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	list, err := s.manager.List(r.Context(), limit, offset)
	if err != nil {
		writeJSONResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSONResponse(w, http.StatusOK, list)
}

func writeJSONResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
