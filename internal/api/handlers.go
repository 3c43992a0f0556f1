package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/trogers1052/investverse/internal/command"
	"github.com/trogers1052/investverse/internal/groups"
	"github.com/trogers1052/investverse/internal/models"
	"github.com/trogers1052/investverse/internal/portfolio"
	"github.com/trogers1052/investverse/internal/quotes"
)

// PortfolioService is the portfolio behaviour exposed over HTTP
type PortfolioService interface {
	ExecuteCommand(ctx context.Context, portfolioID, text string) (*portfolio.Execution, error)
	ExecuteTrade(ctx context.Context, portfolioID string, intent models.TradeIntent) (*portfolio.Execution, error)
	Snapshot(ctx context.Context, portfolioID string) (*models.PortfolioSnapshot, error)
	History(ctx context.Context, portfolioID string, limit int) ([]*models.Transaction, error)
}

// GroupDirectory lists, ranks and joins investment groups
type GroupDirectory interface {
	Create(ctx context.Context, g *models.InvestmentGroup) error
	List(ctx context.Context, category string) ([]models.GroupSummary, error)
	Rankings(ctx context.Context, limit int) ([]models.RankingEntry, error)
	Join(ctx context.Context, groupID, userID string) (*models.GroupMember, bool, error)
}

// ChatStore records and lists group chat messages
type ChatStore interface {
	CreateChatMessage(ctx context.Context, m *models.ChatMessage) error
	GetChatHistory(ctx context.Context, groupID string, limit int) ([]*models.ChatMessage, error)
}

// SnapshotPublisher announces refreshed portfolio valuations
type SnapshotPublisher interface {
	PublishPortfolioUpdated(ctx context.Context, snapshot *models.PortfolioSnapshot) error
}

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	service   PortfolioService
	groups    GroupDirectory
	quotes    portfolio.QuoteProvider
	chat      ChatStore
	publisher SnapshotPublisher
	db        Pinger
	logger    zerolog.Logger
}

// NewHandler creates a new Handler. chat, publisher and db may be nil.
func NewHandler(service PortfolioService, groupDir GroupDirectory, quoteProvider portfolio.QuoteProvider, chat ChatStore, publisher SnapshotPublisher, db Pinger, logger zerolog.Logger) *Handler {
	return &Handler{
		service:   service,
		groups:    groupDir,
		quotes:    quoteProvider,
		chat:      chat,
		publisher: publisher,
		db:        db,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

type commandRequest struct {
	Text       string `json:"text"`
	SenderName string `json:"sender_name"`
}

type tradeRequest struct {
	Action     string `json:"action"`
	Symbol     string `json:"symbol"`
	Amount     string `json:"amount"`
	SenderName string `json:"sender_name"`
}

type createGroupRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Host     string `json:"host"`
	EntryFee string `json:"entry_fee"`
	Category string `json:"category"`
}

type joinGroupRequest struct {
	UserID string `json:"user_id"`
}

type joinGroupResponse struct {
	Member *models.GroupMember `json:"member"`
	Joined bool                `json:"joined"`
}

type executionResponse struct {
	Executed    bool                      `json:"executed"`
	Kind        string                    `json:"kind,omitempty"`
	Transaction *models.Transaction       `json:"transaction,omitempty"`
	Snapshot    *models.PortfolioSnapshot `json:"snapshot,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// GetPortfolio handles GET /portfolios/{id}
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	snapshot, err := h.service.Snapshot(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}

// RefreshPortfolio handles POST /portfolios/{id}/refresh
func (h *Handler) RefreshPortfolio(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	snapshot, err := h.service.Snapshot(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishPortfolioUpdated(r.Context(), snapshot); err != nil {
			h.logger.Error().Err(err).Str("portfolio_id", id).Msg("Failed to publish portfolio update")
		}
	}

	respondJSON(w, http.StatusOK, snapshot)
}

// ExecuteCommand handles POST /portfolios/{id}/commands. Text that does not
// parse as a trade command, including one with an unreadable amount, is stored
// as plain chat and answered with executed=false and the parse failure kind.
func (h *Handler) ExecuteCommand(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: "bad_request"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "text is required", Kind: "bad_request"})
		return
	}

	exec, err := h.service.ExecuteCommand(r.Context(), id, req.Text)
	if errors.Is(err, command.ErrMalformedCommand) || errors.Is(err, command.ErrMalformedAmount) {
		h.recordChat(r.Context(), id, req.SenderName, req.Text, false)
		respondJSON(w, http.StatusOK, executionResponse{Executed: false, Kind: portfolio.ErrorKind(err)})
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.recordChat(r.Context(), id, req.SenderName, req.Text, true)
	respondJSON(w, http.StatusOK, executionResponse{
		Executed:    true,
		Transaction: &exec.Transaction,
		Snapshot:    &exec.Snapshot,
	})
}

// ExecuteTrade handles POST /portfolios/{id}/trades, the trading panel form
func (h *Handler) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: "bad_request"})
		return
	}

	action, err := models.ParseTradeAction(req.Action)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: portfolio.KindMalformedCommand})
		return
	}
	amount, err := command.ParseAmount(req.Amount)
	if err != nil {
		h.respondError(w, err)
		return
	}

	// Round-trip through the chat grammar so the form accepts exactly what chat accepts.
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	text := command.Format(models.TradeIntent{Action: action, Symbol: symbol, Amount: amount})
	intent, err := command.Parse(text)
	if err == nil && intent.Symbol != symbol {
		err = command.ErrMalformedCommand
	}
	if err != nil {
		h.respondError(w, err)
		return
	}

	exec, err := h.service.ExecuteTrade(r.Context(), id, intent)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.recordChat(r.Context(), id, req.SenderName, text, true)
	respondJSON(w, http.StatusOK, executionResponse{
		Executed:    true,
		Transaction: &exec.Transaction,
		Snapshot:    &exec.Snapshot,
	})
}

// GetTransactions handles GET /portfolios/{id}/transactions
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	txs, err := h.service.History(r.Context(), id, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}

	respondJSON(w, http.StatusOK, txs)
}

// GetQuote handles GET /quotes/{symbol}
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	q, err := h.quotes.GetQuote(r.Context(), symbol)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, quotes.ErrQuoteNotFound) {
			status = http.StatusNotFound
		}
		h.logger.Warn().Err(err).Str("symbol", symbol).Msg("Quote lookup failed")
		respondJSON(w, status, errorResponse{Error: err.Error(), Kind: portfolio.KindQuoteUnavailable})
		return
	}

	respondJSON(w, http.StatusOK, q)
}

// GetMessages handles GET /groups/{id}/messages
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if h.chat == nil {
		respondJSON(w, http.StatusOK, []*models.ChatMessage{})
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	messages, err := h.chat.GetChatHistory(r.Context(), id, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if messages == nil {
		messages = []*models.ChatMessage{}
	}

	respondJSON(w, http.StatusOK, messages)
}

// ListGroups handles GET /groups?category=
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.groups.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		h.respondGroupError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, summaries)
}

// CreateGroup handles POST /groups
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: "bad_request"})
		return
	}

	g := &models.InvestmentGroup{
		ID:       strings.TrimSpace(req.ID),
		Name:     req.Name,
		Host:     req.Host,
		EntryFee: req.EntryFee,
		Category: req.Category,
	}
	if err := h.groups.Create(r.Context(), g); err != nil {
		h.respondGroupError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, g)
}

// JoinGroup handles POST /groups/{id}/members
func (h *Handler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req joinGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Kind: "bad_request"})
		return
	}

	member, joined, err := h.groups.Join(r.Context(), id, req.UserID)
	if err != nil {
		h.respondGroupError(w, err)
		return
	}

	status := http.StatusOK
	if joined {
		status = http.StatusCreated
	}
	respondJSON(w, status, joinGroupResponse{Member: member, Joined: joined})
}

// GetRankings handles GET /rankings?limit=, groups ordered by current portfolio return
func (h *Handler) GetRankings(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	entries, err := h.groups.Rankings(r.Context(), limit)
	if err != nil {
		h.respondGroupError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, entries)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// recordChat stores panel and API submissions alongside chat messages
func (h *Handler) recordChat(ctx context.Context, groupID, sender, text string, isCommand bool) {
	if h.chat == nil {
		return
	}
	m := &models.ChatMessage{
		GroupID:             groupID,
		Content:             text,
		SenderName:          sender,
		IsInvestmentCommand: isCommand,
	}
	if err := h.chat.CreateChatMessage(ctx, m); err != nil {
		h.logger.Error().Err(err).Str("group_id", groupID).Msg("Failed to record chat message")
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	kind := portfolio.ErrorKind(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("Request failed")
	}
	respondJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func (h *Handler) respondGroupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, groups.ErrGroupNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Kind: "group_not_found"})
	case errors.Is(err, groups.ErrInvalidGroup):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "bad_request"})
	default:
		h.respondError(w, err)
	}
}

func statusForKind(kind string) int {
	switch kind {
	case portfolio.KindMalformedCommand, portfolio.KindMalformedAmount, portfolio.KindInvalidIntent:
		return http.StatusBadRequest
	case portfolio.KindInsufficientShares:
		return http.StatusConflict
	case portfolio.KindQuoteUnavailable:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer", Kind: "bad_request"})
		return 0, false
	}
	return limit, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
