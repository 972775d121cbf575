package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/groupexec/internal/domain"
	"github.com/shaiso/groupexec/internal/repo"
)

// ListRuns возвращает историю runs с фильтрацией.
// GET /api/v1/runs?controller_id=...&status=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		NotFound(w, "run history is disabled")
		return
	}

	q := r.URL.Query()
	filter := repo.RunFilter{
		ControllerID: q.Get("controller_id"),
	}

	if status := q.Get("status"); status != "" {
		filter.Status = domain.ParseRunStatus(status)
		if filter.Status == "" {
			BadRequest(w, "invalid status")
			return
		}
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit"), repo.DefaultListLimit); err != nil {
		BadRequest(w, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		BadRequest(w, "invalid offset")
		return
	}

	runs, err := h.runs.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// GetRun возвращает run из истории.
// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		NotFound(w, "run history is disabled")
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid run id")
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(*run))
}

// intParam парсит неотрицательное целое из query; пусто — def.
func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
