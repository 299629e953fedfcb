// Package handlers implements HTTP request handlers for the StockSentry API.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/stocksentry/stocksentry/internal/dispatcher"
	"github.com/stocksentry/stocksentry/internal/ledger"
	"github.com/stocksentry/stocksentry/internal/orchestrator"
	"github.com/stocksentry/stocksentry/internal/rulestore"
)

// Handlers contains all HTTP handler dependencies.
type Handlers struct {
	store      rulestore.Store
	ledger     ledger.Ledger
	dispatcher *dispatcher.Dispatcher
	orch       *orchestrator.Orchestrator
	logger     *slog.Logger
}

// New creates a new Handlers instance.
func New(store rulestore.Store, led ledger.Ledger, disp *dispatcher.Dispatcher, orch *orchestrator.Orchestrator) *Handlers {
	return &Handlers{
		store:      store,
		ledger:     led,
		dispatcher: disp,
		orch:       orch,
		logger:     slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (h *Handlers) SetLogger(l *slog.Logger) {
	if l != nil {
		h.logger = l
	}
}

// writeError logs the internal error and returns a sanitized JSON error to
// the client.
func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		h.logger.Error(msg, "error", err, "status", status)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
