package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvestmentGroup is a group chat with a shared portfolio. The group id is
// also the portfolio id.
type InvestmentGroup struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Host        string    `json:"host"`
	EntryFee    string    `json:"entry_fee"`
	Category    string    `json:"category"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// GroupSummary is a group listed with the current valuation of its portfolio
type GroupSummary struct {
	InvestmentGroup
	ReturnPct  decimal.Decimal `json:"return_pct"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// GroupMember records a user joining a group
type GroupMember struct {
	GroupID  string    `json:"group_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// RankingEntry places a group on the return leaderboard
type RankingEntry struct {
	Rank      int             `json:"rank"`
	GroupID   string          `json:"group_id"`
	Name      string          `json:"name"`
	ReturnPct decimal.Decimal `json:"return_pct"`
}
