package server

import (
	"github.com/go-chi/chi/v5"

	"github.com/stocksentry/stocksentry/internal/server/handlers"
)

func (s *Server) registerRoutes(r chi.Router, deps Deps) {
	h := handlers.New(deps.Store, deps.Ledger, deps.Dispatcher, deps.Orch)
	h.SetLogger(s.logger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Rules
		r.Get("/rules", h.ListRules)
		r.Post("/rules", h.CreateRule)
		r.Get("/rules/summary", h.RulesSummary)
		r.Get("/rules/{ruleID}", h.GetRule)
		r.Patch("/rules/{ruleID}", h.UpdateRule)
		r.Delete("/rules/{ruleID}", h.DeleteRule)
		r.Post("/rules/{ruleID}/status", h.SetRuleStatus)
		r.Post("/rules/{ruleID}/run", h.RunRule)
		r.Get("/rules/{ruleID}/statistics", h.RuleStatistics)

		// Executions
		r.Get("/executions", h.ListExecutions)
		r.Get("/executions/{executionID}", h.GetExecution)
		r.Post("/executions/{executionID}/cancel", h.CancelExecution)
	})
}
