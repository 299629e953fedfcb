package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stocksentry/stocksentry/internal/dispatcher"
	"github.com/stocksentry/stocksentry/internal/rulestore"
	"github.com/stocksentry/stocksentry/pkg/types"
)

// ListRules returns all rules.
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.List(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	if rules == nil {
		rules = []types.Rule{}
	}
	_ = json.NewEncoder(w).Encode(rules)
}

// CreateRule stores a new rule. Rules are created as drafts unless the
// body asks for active, in which case activation validation applies.
func (h *Handlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule types.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	if rule.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	wantActive := rule.Status == types.RuleActive
	if wantActive {
		if err := rulestore.ValidateForActivation(rule); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}

	created, err := h.store.Create(r.Context(), rule)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to create rule", err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(created)
}

// GetRule returns a single rule.
func (h *Handlers) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.store.Get(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		if errors.Is(err, rulestore.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "rule not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to load rule", err)
		return
	}
	_ = json.NewEncoder(w).Encode(rule)
}

// UpdateRule replaces a rule's definition. Active rules must still pass
// activation validation after the change.
func (h *Handlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ruleID")
	existing, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, rulestore.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "rule not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to load rule", err)
		return
	}

	var rule types.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	rule.ID = id
	if rule.Status == "" {
		rule.Status = existing.Status
	}
	if rule.Status == types.RuleActive {
		if err := rulestore.ValidateForActivation(rule); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}

	updated, err := h.store.Update(r.Context(), rule)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to update rule", err)
		return
	}
	_ = json.NewEncoder(w).Encode(updated)
}

// DeleteRule removes a rule. Its execution history stays in the ledger.
func (h *Handlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	err := h.store.Delete(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		if errors.Is(err, rulestore.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "rule not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusRequest struct {
	Status types.RuleStatus `json:"status"`
}

// SetRuleStatus activates or deactivates a rule.
func (h *Handlers) SetRuleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ruleID")

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}

	var (
		rule types.Rule
		err  error
	)
	switch req.Status {
	case types.RuleActive:
		rule, err = rulestore.Activate(r.Context(), h.store, id)
	case types.RuleInactive:
		rule, err = rulestore.Deactivate(r.Context(), h.store, id)
	default:
		h.writeError(w, http.StatusBadRequest, "status must be active or inactive", nil)
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, rulestore.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "rule not found", nil)
		case errors.Is(err, rulestore.ErrValidation):
			h.writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
		default:
			h.writeError(w, http.StatusInternalServerError, "failed to change rule status", err)
		}
		return
	}
	_ = json.NewEncoder(w).Encode(rule)
}

type runRequest struct {
	RecordIDs []string `json:"recordIds"`
}

// RunRule makes the rule an immediate execution candidate, optionally
// scoped to specific records. The run is asynchronous; 202 means the
// trigger was accepted.
func (h *Handlers) RunRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ruleID")

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}

	var err error
	if len(req.RecordIDs) > 0 {
		var batch []types.Record
		batch, err = h.orch.Records(r.Context(), types.RecordFilter{IDs: req.RecordIDs})
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "failed to load records", err)
			return
		}
		err = h.dispatcher.RunNowScoped(r.Context(), id, batch)
	} else {
		err = h.dispatcher.RunNow(r.Context(), id)
	}
	if err != nil {
		switch {
		case errors.Is(err, rulestore.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "rule not found", nil)
		case errors.Is(err, dispatcher.ErrNotActive):
			h.writeError(w, http.StatusConflict, "rule is not active", nil)
		default:
			h.writeError(w, http.StatusInternalServerError, "failed to trigger rule", err)
		}
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "queued", "ruleId": id})
}

// RuleStatistics returns ledger-derived statistics for a rule.
func (h *Handlers) RuleStatistics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "ruleID")
	if _, err := h.store.Get(r.Context(), id); err != nil {
		if errors.Is(err, rulestore.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "rule not found", nil)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to load rule", err)
		return
	}

	stats, err := h.ledger.Stats(r.Context(), id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load statistics", err)
		return
	}
	_ = json.NewEncoder(w).Encode(stats)
}

type ruleSummary struct {
	Total      int                       `json:"total"`
	ByStatus   map[types.RuleStatus]int  `json:"byStatus"`
	ByType     map[types.RuleType]int    `json:"byType"`
	ByTrigger  map[types.TriggerType]int `json:"byTrigger"`
	RuleCounts []ruleSummaryEntry        `json:"rules"`
}

type ruleSummaryEntry struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Type     types.RuleType   `json:"type"`
	Status   types.RuleStatus `json:"status"`
	Priority int              `json:"priority"`
}

// RulesSummary returns counts by status, type and trigger plus a compact
// per-rule listing.
func (h *Handlers) RulesSummary(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.List(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}

	summary := ruleSummary{
		Total:      len(rules),
		ByStatus:   make(map[types.RuleStatus]int),
		ByType:     make(map[types.RuleType]int),
		ByTrigger:  make(map[types.TriggerType]int),
		RuleCounts: make([]ruleSummaryEntry, 0, len(rules)),
	}
	for _, rule := range rules {
		summary.ByStatus[rule.Status]++
		summary.ByType[rule.Type]++
		summary.ByTrigger[rule.Trigger.Type]++
		summary.RuleCounts = append(summary.RuleCounts, ruleSummaryEntry{
			ID:       rule.ID,
			Name:     rule.Name,
			Type:     rule.Type,
			Status:   rule.Status,
			Priority: rule.Priority,
		})
	}
	_ = json.NewEncoder(w).Encode(summary)
}
