package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/investverse/internal/groups"
	"github.com/trogers1052/investverse/internal/models"
	"github.com/trogers1052/investverse/internal/portfolio"
	"github.com/trogers1052/investverse/internal/quotes"
)

type memStore struct {
	mu      sync.Mutex
	data    map[string][]models.Holding
	loadErr error
}

func (m *memStore) LoadHoldings(ctx context.Context, portfolioID string) ([]models.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return append([]models.Holding(nil), m.data[portfolioID]...), nil
}

func (m *memStore) SaveHoldings(ctx context.Context, portfolioID string, holdings []models.Holding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[portfolioID] = append([]models.Holding(nil), holdings...)
	return nil
}

type mockChat struct {
	mu       sync.Mutex
	messages []*models.ChatMessage
}

func (m *mockChat) CreateChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockChat) GetChatHistory(ctx context.Context, groupID string, limit int) ([]*models.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ChatMessage
	for _, msg := range m.messages {
		if msg.GroupID == groupID {
			out = append(out, msg)
		}
	}
	return out, nil
}

// memGroups implements groups.Store for testing
type memGroups struct {
	mu      sync.Mutex
	groups  []*models.InvestmentGroup
	members map[string]map[string]bool
}

func (m *memGroups) CreateGroup(ctx context.Context, g *models.InvestmentGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == "" {
		g.ID = "generated"
	}
	m.groups = append(m.groups, g)
	return nil
}

func (m *memGroups) GetGroup(ctx context.Context, id string) (*models.InvestmentGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		if g.ID == id {
			out := *g
			out.MemberCount = len(m.members[id])
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memGroups) ListGroups(ctx context.Context, category string) ([]*models.InvestmentGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.InvestmentGroup
	for _, g := range m.groups {
		if category == "" || g.Category == category {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memGroups) AddGroupMember(ctx context.Context, member *models.GroupMember) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[member.GroupID][member.UserID] {
		return false, nil
	}
	if m.members[member.GroupID] == nil {
		m.members[member.GroupID] = make(map[string]bool)
	}
	m.members[member.GroupID][member.UserID] = true
	return true, nil
}

type mockSnapshotPublisher struct {
	published []*models.PortfolioSnapshot
}

func (m *mockSnapshotPublisher) PublishPortfolioUpdated(ctx context.Context, s *models.PortfolioSnapshot) error {
	m.published = append(m.published, s)
	return nil
}

type mockPinger struct{ err error }

func (m mockPinger) Ping(ctx context.Context) error { return m.err }

type testEnv struct {
	router    http.Handler
	store     *memStore
	prices    *quotes.Static
	chat      *mockChat
	publisher *mockSnapshotPublisher
	groups    *memGroups
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := &memStore{data: map[string][]models.Holding{
		"group-1": {
			{Symbol: "AAPL", Shares: decimal.NewFromInt(100), AverageCost: decimal.NewFromInt(150)},
		},
		"group-2": {
			{Symbol: "NVDA", Shares: decimal.NewFromInt(10), AverageCost: decimal.NewFromInt(400)},
		},
	}}
	groupStore := &memGroups{
		groups: []*models.InvestmentGroup{
			{ID: "group-1", Name: "科技股研究會", Host: "amy", Category: "科技股"},
			{ID: "group-2", Name: "AI 追蹤", Host: "bo", Category: "科技股"},
			{ID: "group-3", Name: "綠能先鋒", Host: "cy", Category: "綠能"},
		},
		members: make(map[string]map[string]bool),
	}
	prices := quotes.NewStatic(quotes.DemoPrices())
	service := portfolio.NewService(store, nil, nil, prices, zerolog.Nop())
	chat := &mockChat{}
	publisher := &mockSnapshotPublisher{}
	groupDir := groups.NewService(groupStore, service, zerolog.Nop())
	handler := NewHandler(service, groupDir, prices, chat, publisher, nil, zerolog.Nop())

	return &testEnv{
		router:    SetupRoutes(handler),
		store:     store,
		prices:    prices,
		chat:      chat,
		publisher: publisher,
		groups:    groupStore,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body: %s", w.Body.String())
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	h := NewHandler(nil, nil, nil, nil, nil, mockPinger{err: errors.New("connection refused")}, zerolog.Nop())
	w = httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetPortfolio(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/portfolios/group-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot models.PortfolioSnapshot
	decodeBody(t, w, &snapshot)
	assert.Equal(t, "group-1", snapshot.PortfolioID)
	assert.True(t, decimal.NewFromInt(16000).Equal(snapshot.TotalValue))
	assert.True(t, decimal.NewFromInt(15000).Equal(snapshot.TotalCost))
	require.Len(t, snapshot.Holdings, 1)
	assert.Equal(t, "6.67", snapshot.Holdings[0].ReturnPct.StringFixed(2))
}

func TestRefreshPortfolio_PublishesSnapshot(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/portfolios/group-1/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, env.publisher.published, 1)
	assert.Equal(t, "group-1", env.publisher.published[0].PortfolioID)
}

func TestExecuteCommand(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantStatus   int
		wantExecuted bool
		wantKind     string
	}{
		{
			name:         "buy executes",
			body:         `{"text":"[買入] AAPL 1.6K","sender_name":"amy"}`,
			wantStatus:   http.StatusOK,
			wantExecuted: true,
		},
		{
			name:         "plain chat is not executed",
			body:         `{"text":"hello everyone"}`,
			wantStatus:   http.StatusOK,
			wantExecuted: false,
			wantKind:     portfolio.KindMalformedCommand,
		},
		{
			name:         "malformed amount is plain chat",
			body:         `{"text":"[買入] AAPL 1.2.3K"}`,
			wantStatus:   http.StatusOK,
			wantExecuted: false,
			wantKind:     portfolio.KindMalformedAmount,
		},
		{
			name:         "trailing punctuation executes",
			body:         `{"text":"[買入] AAPL 1.6K！大家跟上"}`,
			wantStatus:   http.StatusOK,
			wantExecuted: true,
		},
		{
			name:       "oversell",
			body:       `{"text":"[賣出] AAPL 100K"}`,
			wantStatus: http.StatusConflict,
			wantKind:   portfolio.KindInsufficientShares,
		},
		{
			name:       "unknown symbol",
			body:       `{"text":"[買入] ZZZZ 100"}`,
			wantStatus: http.StatusBadGateway,
			wantKind:   portfolio.KindQuoteUnavailable,
		},
		{
			name:       "empty text",
			body:       `{"text":"  "}`,
			wantStatus: http.StatusBadRequest,
			wantKind:   "bad_request",
		},
		{
			name:       "invalid json",
			body:       `{"text":`,
			wantStatus: http.StatusBadRequest,
			wantKind:   "bad_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.do(t, "POST", "/api/v1/portfolios/group-1/commands", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, "body: %s", w.Body.String())

			var resp struct {
				Executed    bool                      `json:"executed"`
				Kind        string                    `json:"kind"`
				Transaction *models.Transaction       `json:"transaction"`
				Snapshot    *models.PortfolioSnapshot `json:"snapshot"`
			}
			decodeBody(t, w, &resp)
			assert.Equal(t, tt.wantExecuted, resp.Executed)
			assert.Equal(t, tt.wantKind, resp.Kind)
			if tt.wantExecuted {
				require.NotNil(t, resp.Snapshot)
				require.NotNil(t, resp.Transaction)
				assert.True(t, decimal.NewFromInt(10).Equal(resp.Transaction.Shares))
			}
		})
	}
}

func TestExecuteCommand_RecordsChat(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, "POST", "/api/v1/portfolios/group-1/commands", `{"text":"[賣出] AAPL 800","sender_name":"bo"}`)
	env.do(t, "POST", "/api/v1/portfolios/group-1/commands", `{"text":"sold some","sender_name":"bo"}`)

	w := env.do(t, "GET", "/api/v1/groups/group-1/messages", "")
	require.Equal(t, http.StatusOK, w.Code)

	var messages []models.ChatMessage
	decodeBody(t, w, &messages)
	require.Len(t, messages, 2)
	assert.True(t, messages[0].IsInvestmentCommand)
	assert.False(t, messages[1].IsInvestmentCommand)
	assert.Equal(t, "bo", messages[0].SenderName)
}

func TestExecuteCommand_MalformedAmountStoredAsChat(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/portfolios/group-1/commands", `{"text":"[賣出] AAPL 1..5K","sender_name":"bo"}`)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	require.Len(t, env.chat.messages, 1)
	assert.Equal(t, "[賣出] AAPL 1..5K", env.chat.messages[0].Content)
	assert.False(t, env.chat.messages[0].IsInvestmentCommand)

	holdings, err := env.store.LoadHoldings(context.Background(), "group-1")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.True(t, decimal.NewFromInt(100).Equal(holdings[0].Shares))
}

func TestExecuteTrade(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantKind   string
	}{
		{name: "lowercase action", body: `{"action":"buy","symbol":"NVDA","amount":"4.5k"}`, wantStatus: http.StatusOK},
		{name: "sell", body: `{"action":"SELL","symbol":"AAPL","amount":"1600"}`, wantStatus: http.StatusOK},
		{name: "bad action", body: `{"action":"hold","symbol":"AAPL","amount":"1"}`, wantStatus: http.StatusBadRequest, wantKind: portfolio.KindMalformedCommand},
		{name: "bad amount", body: `{"action":"buy","symbol":"AAPL","amount":"lots"}`, wantStatus: http.StatusBadRequest, wantKind: portfolio.KindMalformedAmount},
		{name: "lowercase symbol", body: `{"action":"buy","symbol":" aapl ","amount":"100"}`, wantStatus: http.StatusOK},
		{name: "symbol with digits", body: `{"action":"buy","symbol":"BRK1","amount":"100"}`, wantStatus: http.StatusBadRequest, wantKind: portfolio.KindMalformedCommand},
		{name: "symbol with spaces", body: `{"action":"buy","symbol":"AAPL 5","amount":"100"}`, wantStatus: http.StatusBadRequest, wantKind: portfolio.KindMalformedCommand},
		{name: "zero amount", body: `{"action":"buy","symbol":"AAPL","amount":"0"}`, wantStatus: http.StatusBadRequest, wantKind: portfolio.KindInvalidIntent},
		{name: "oversell", body: `{"action":"sell","symbol":"AAPL","amount":"1M"}`, wantStatus: http.StatusConflict, wantKind: portfolio.KindInsufficientShares},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.do(t, "POST", "/api/v1/portfolios/group-1/trades", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, "body: %s", w.Body.String())

			if tt.wantKind != "" {
				var resp errorResponse
				decodeBody(t, w, &resp)
				assert.Equal(t, tt.wantKind, resp.Kind)
				assert.NotEmpty(t, resp.Error)
				assert.Empty(t, env.chat.messages)
				return
			}
			require.Len(t, env.chat.messages, 1)
			assert.True(t, strings.HasPrefix(env.chat.messages[0].Content, "["))
		})
	}
}

func TestExecuteTrade_RecordsFormattedCommand(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/portfolios/group-1/trades", `{"action":"buy","symbol":"TSLA","amount":"2.5K"}`)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, env.chat.messages, 1)
	assert.Equal(t, "[買入] TSLA 2500", env.chat.messages[0].Content)
	assert.True(t, env.chat.messages[0].IsInvestmentCommand)

	holdings, err := env.store.LoadHoldings(context.Background(), "group-1")
	require.NoError(t, err)
	assert.Len(t, holdings, 2)
}

func TestExecuteTrade_UppercasesSymbol(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/portfolios/group-1/trades", `{"action":"sell","symbol":"aapl","amount":"800"}`)
	require.Equal(t, http.StatusOK, w.Code, "body: %s", w.Body.String())

	require.Len(t, env.chat.messages, 1)
	assert.Equal(t, "[賣出] AAPL 800", env.chat.messages[0].Content)

	holdings, err := env.store.LoadHoldings(context.Background(), "group-1")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.True(t, decimal.NewFromInt(95).Equal(holdings[0].Shares))
}

func TestGetPortfolio_InternalError(t *testing.T) {
	env := newTestEnv(t)
	env.store.loadErr = errors.New("connection refused")

	w := env.do(t, "GET", "/api/v1/portfolios/group-1", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp errorResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, portfolio.KindInternal, resp.Kind)
}

func TestGetTransactions(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/portfolios/group-1/transactions?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = env.do(t, "GET", "/api/v1/portfolios/group-1/transactions?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetQuote(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/quotes/nvda", "")
	require.Equal(t, http.StatusOK, w.Code)

	var q models.Quote
	decodeBody(t, w, &q)
	assert.Equal(t, "NVDA", q.Symbol)
	assert.True(t, decimal.NewFromInt(450).Equal(q.Price))

	w = env.do(t, "GET", "/api/v1/quotes/ZZZZ", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListGroups(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/groups", "")
	require.Equal(t, http.StatusOK, w.Code)

	var all []models.GroupSummary
	decodeBody(t, w, &all)
	require.Len(t, all, 3)
	assert.Equal(t, "科技股研究會", all[0].Name)
	assert.Equal(t, "6.67", all[0].ReturnPct.StringFixed(2))
	assert.True(t, all[2].ReturnPct.IsZero())

	w = env.do(t, "GET", "/api/v1/groups?category="+url.QueryEscape("綠能"), "")
	require.Equal(t, http.StatusOK, w.Code)
	var green []models.GroupSummary
	decodeBody(t, w, &green)
	require.Len(t, green, 1)
	assert.Equal(t, "group-3", green[0].ID)
}

func TestGetRankings(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/v1/rankings", "")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []models.RankingEntry
	decodeBody(t, w, &entries)
	require.Len(t, entries, 3)
	// NVDA 400 -> 450 is 12.5%, AAPL 150 -> 160 is 6.67%, group-3 holds nothing.
	assert.Equal(t, "group-2", entries[0].GroupID)
	assert.Equal(t, "12.5", entries[0].ReturnPct.String())
	assert.Equal(t, "group-1", entries[1].GroupID)
	assert.Equal(t, "group-3", entries[2].GroupID)
	assert.Equal(t, 3, entries[2].Rank)

	w = env.do(t, "GET", "/api/v1/rankings?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	decodeBody(t, w, &entries)
	require.Len(t, entries, 1)

	w = env.do(t, "GET", "/api/v1/rankings?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRankings_FollowsPrices(t *testing.T) {
	env := newTestEnv(t)

	// AAPL at 200 puts group-1 at 33.3%, above group-2's 12.5%.
	env.prices.Set("AAPL", decimal.NewFromInt(200))

	w := env.do(t, "GET", "/api/v1/rankings?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []models.RankingEntry
	decodeBody(t, w, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "group-1", entries[0].GroupID)
}

func TestCreateGroup(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/groups", `{"id":"fast","name":"短線快手","host":"dee","entry_fee":"5 花束 (500 NTD)","category":"短期投機"}`)
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	var g models.InvestmentGroup
	decodeBody(t, w, &g)
	assert.Equal(t, "fast", g.ID)
	assert.Equal(t, "短期投機", g.Category)

	w = env.do(t, "POST", "/api/v1/groups", `{"name":"no host"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "POST", "/api/v1/groups", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJoinGroup(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		repeat     bool
		wantStatus int
		wantJoined bool
	}{
		{name: "first join", path: "/api/v1/groups/group-1/members", body: `{"user_id":"amy"}`, wantStatus: http.StatusCreated, wantJoined: true},
		{name: "second join", path: "/api/v1/groups/group-1/members", body: `{"user_id":"amy"}`, repeat: true, wantStatus: http.StatusOK},
		{name: "unknown group", path: "/api/v1/groups/nope/members", body: `{"user_id":"amy"}`, wantStatus: http.StatusNotFound},
		{name: "missing user", path: "/api/v1/groups/group-1/members", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "invalid json", path: "/api/v1/groups/group-1/members", body: `{"user_id":`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.repeat {
				require.Equal(t, http.StatusCreated, env.do(t, "POST", tt.path, tt.body).Code)
			}

			w := env.do(t, "POST", tt.path, tt.body)
			require.Equal(t, tt.wantStatus, w.Code, "body: %s", w.Body.String())
			if w.Code >= http.StatusBadRequest {
				return
			}

			var resp joinGroupResponse
			decodeBody(t, w, &resp)
			assert.Equal(t, tt.wantJoined, resp.Joined)
			require.NotNil(t, resp.Member)
			assert.Equal(t, "amy", resp.Member.UserID)
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil, nil, nil, zerolog.Nop())
	handler := h.recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCorrelationIDMiddleware_UsesProvidedID(t *testing.T) {
	var seen string
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(correlationIDKey).(string)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}
