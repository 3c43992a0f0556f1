package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(correlationIDMiddleware, handler.loggingMiddleware, handler.recoveryMiddleware)

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Portfolio routes
	api.HandleFunc("/portfolios/{id}", handler.GetPortfolio).Methods("GET")
	api.HandleFunc("/portfolios/{id}/refresh", handler.RefreshPortfolio).Methods("POST")
	api.HandleFunc("/portfolios/{id}/commands", handler.ExecuteCommand).Methods("POST")
	api.HandleFunc("/portfolios/{id}/trades", handler.ExecuteTrade).Methods("POST")
	api.HandleFunc("/portfolios/{id}/transactions", handler.GetTransactions).Methods("GET")

	// Market data
	api.HandleFunc("/quotes/{symbol}", handler.GetQuote).Methods("GET")

	// Groups and group chat
	api.HandleFunc("/groups", handler.ListGroups).Methods("GET")
	api.HandleFunc("/groups", handler.CreateGroup).Methods("POST")
	api.HandleFunc("/groups/{id}/members", handler.JoinGroup).Methods("POST")
	api.HandleFunc("/groups/{id}/messages", handler.GetMessages).Methods("GET")
	api.HandleFunc("/rankings", handler.GetRankings).Methods("GET")

	return r
}
