package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stocksentry/stocksentry/internal/ledger"
	"github.com/stocksentry/stocksentry/pkg/types"
)

// ListExecutions returns execution history, newest first. Query params:
// ruleId, status, from, to (RFC 3339), limit.
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	filter := types.ExecutionFilter{
		RuleID: r.URL.Query().Get("ruleId"),
		Status: types.ExecutionStatus(r.URL.Query().Get("status")),
	}

	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "from must be RFC 3339", nil)
			return
		}
		filter.From = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "to must be RFC 3339", nil)
			return
		}
		filter.To = t
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", nil)
			return
		}
		filter.Limit = n
	}

	executions, err := h.ledger.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list executions", err)
		return
	}
	if executions == nil {
		executions = []types.Execution{}
	}
	_ = json.NewEncoder(w).Encode(executions)
}

// GetExecution returns a single execution.
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := h.ledger.Get(r.Context(), chi.URLParam(r, "executionID"))
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "execution not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to load execution", err)
		return
	}
	_ = json.NewEncoder(w).Encode(exec)
}

// CancelExecution requests cooperative cancellation of a running
// execution. Completed work is not rolled back.
func (h *Handlers) CancelExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executionID")

	exec, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "execution not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to load execution", err)
		return
	}
	if exec.Status != types.ExecutionRunning {
		h.writeError(w, http.StatusConflict, "execution is not running", nil)
		return
	}

	if !h.orch.Cancel(id) {
		// Recorded running but no in-flight context: the watchdog will
		// pick it up.
		h.writeError(w, http.StatusConflict, "execution is not cancellable", nil)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "cancelling", "executionId": id})
}
