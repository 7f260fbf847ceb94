package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/jobplan/internal/model"
	"github.com/sells-group/jobplan/internal/pipeline"
	"github.com/sells-group/jobplan/internal/plandiff"
	"github.com/sells-group/jobplan/internal/planfile"
	"github.com/sells-group/jobplan/internal/store"
)

type summaryResponse struct {
	AddedCount     int `json:"addedCount"`
	ChangedCount   int `json:"changedCount"`
	CancelledCount int `json:"cancelledCount"`
}

func toSummary(s model.DiffSummary) summaryResponse {
	return summaryResponse{
		AddedCount:     s.AddedCount,
		ChangedCount:   s.ChangedCount,
		CancelledCount: s.CancelledCount,
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID string `json:"customer_id"`
		Name       string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	plan, err := s.svc.CreatePlan(r.Context(), req.CustomerID, req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (s *server) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceFileName string `json:"source_file_name"`
		FileURL        string `json:"file_url"`
	}
	if !decode(w, r, &req) {
		return
	}
	v, err := s.svc.CreateVersion(r.Context(), chi.URLParam(r, "planID"), req.SourceFileName, req.FileURL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListVersions(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []model.PlanVersion{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *server) handleParseVersion(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.ParseVersion(r.Context(), chi.URLParam(r, "planID"), chi.URLParam(r, "versionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if res.Status == planfile.StatusFailed {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"status": res.Status,
			"errors": res.Errors,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    res.Status,
		"rowsCount": res.RowsCount(),
	})
}

func (s *server) handleComputeDiff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromVersionID *string `json:"from_version_id"`
		ToVersionID   string  `json:"to_version_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	diff, _, err := s.svc.ComputeDiff(r.Context(), chi.URLParam(r, "planID"), req.FromVersionID, req.ToVersionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"diffId":  diff.ID,
		"summary": toSummary(diff.Summary),
	})
}

func (s *server) handleGetDiff(w http.ResponseWriter, r *http.Request) {
	diff, items, err := s.svc.GetDiff(r.Context(), chi.URLParam(r, "diffID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"diff":  diff,
		"items": items,
	})
}

func (s *server) handleReviewDiff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Approve *bool `json:"approve"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Approve == nil {
		writeError(w, http.StatusBadRequest, "approve is required")
		return
	}
	diff, err := s.svc.ReviewDiff(r.Context(), chi.URLParam(r, "diffID"), *req.Approve)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

func (s *server) handleApplyDiff(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.ApplyDiff(r.Context(), chi.URLParam(r, "diffID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"appliedCount": res.AppliedCount,
		"outcomes":     res.Outcomes,
	})
}

func (s *server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID     string `json:"customer_id"`
		FileURL        string `json:"file_url"`
		SourceFileName string `json:"source_file_name"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := s.svc.ImportJobs(r.Context(), req.CustomerID, req.SourceFileName, req.FileURL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if res.Status == planfile.StatusFailed {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.JobFilter{
		CustomerID:     q.Get("customer_id"),
		PlanID:         q.Get("plan_id"),
		JobKey:         q.Get("job_key"),
		Source:         model.JobSource(q.Get("source")),
		CustomerStatus: model.CustomerStatus(q.Get("customer_status")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	list, err := s.svc.ListJobs(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []model.Job{}
	}
	writeJSON(w, http.StatusOK, list)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest),
		errors.Is(err, plandiff.ErrVersionMismatch),
		errors.Is(err, plandiff.ErrNotParsed):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, plandiff.ErrPrecondition),
		errors.Is(err, pipeline.ErrAlreadyParsed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
