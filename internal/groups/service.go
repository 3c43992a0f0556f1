// Package groups lists investment groups with their portfolio returns, ranks
// them, and records membership.
package groups

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/trogers1052/investverse/internal/models"
)

// DefaultRankingSize is the leaderboard length when no limit is requested
const DefaultRankingSize = 3

var (
	// ErrGroupNotFound means no group has the requested id
	ErrGroupNotFound = errors.New("group not found")
	// ErrInvalidGroup means a create or join request is missing a required field
	ErrInvalidGroup = errors.New("invalid group request")
)

// Store persists groups and their members
type Store interface {
	CreateGroup(ctx context.Context, g *models.InvestmentGroup) error
	GetGroup(ctx context.Context, id string) (*models.InvestmentGroup, error)
	ListGroups(ctx context.Context, category string) ([]*models.InvestmentGroup, error)
	AddGroupMember(ctx context.Context, m *models.GroupMember) (bool, error)
}

// PortfolioValuer values the portfolio that belongs to a group
type PortfolioValuer interface {
	Snapshot(ctx context.Context, portfolioID string) (*models.PortfolioSnapshot, error)
}

// Service combines stored groups with live portfolio valuations
type Service struct {
	store  Store
	valuer PortfolioValuer
	logger zerolog.Logger
}

// NewService creates a new groups Service
func NewService(store Store, valuer PortfolioValuer, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		valuer: valuer,
		logger: logger.With().Str("component", "groups").Logger(),
	}
}

// Create stores a new group
func (s *Service) Create(ctx context.Context, g *models.InvestmentGroup) error {
	g.Name = strings.TrimSpace(g.Name)
	g.Host = strings.TrimSpace(g.Host)
	if g.Name == "" || g.Host == "" {
		return fmt.Errorf("%w: name and host are required", ErrInvalidGroup)
	}
	if err := s.store.CreateGroup(ctx, g); err != nil {
		return err
	}
	s.logger.Info().Str("group_id", g.ID).Str("name", g.Name).Msg("Group created")
	return nil
}

// List returns the groups in category (all when empty) with their current return
func (s *Service) List(ctx context.Context, category string) ([]models.GroupSummary, error) {
	groups, err := s.store.ListGroups(ctx, category)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.GroupSummary, 0, len(groups))
	for _, g := range groups {
		snapshot, err := s.valuer.Snapshot(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to value group %s: %w", g.ID, err)
		}
		summaries = append(summaries, models.GroupSummary{
			InvestmentGroup: *g,
			ReturnPct:       snapshot.TotalReturnPct,
			TotalValue:      snapshot.TotalValue,
		})
	}
	return summaries, nil
}

// Rankings returns the top limit groups by current portfolio return, best
// first. Ties are broken by name, then id. limit <= 0 means DefaultRankingSize.
func (s *Service) Rankings(ctx context.Context, limit int) ([]models.RankingEntry, error) {
	if limit <= 0 {
		limit = DefaultRankingSize
	}

	summaries, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if !a.ReturnPct.Equal(b.ReturnPct) {
			return a.ReturnPct.GreaterThan(b.ReturnPct)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})

	if len(summaries) > limit {
		summaries = summaries[:limit]
	}

	entries := make([]models.RankingEntry, len(summaries))
	for i, sum := range summaries {
		entries[i] = models.RankingEntry{
			Rank:      i + 1,
			GroupID:   sum.ID,
			Name:      sum.Name,
			ReturnPct: sum.ReturnPct,
		}
	}
	return entries, nil
}

// Join adds userID to the group. joined is false when the user was already a member.
func (s *Service) Join(ctx context.Context, groupID, userID string) (member *models.GroupMember, joined bool, err error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, false, fmt.Errorf("%w: user_id is required", ErrInvalidGroup)
	}

	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, false, err
	}
	if g == nil {
		return nil, false, fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
	}

	member = &models.GroupMember{GroupID: groupID, UserID: userID}
	joined, err = s.store.AddGroupMember(ctx, member)
	if err != nil {
		return nil, false, err
	}

	if joined {
		s.logger.Info().Str("group_id", groupID).Str("user_id", userID).Msg("Member joined group")
	}
	return member, joined, nil
}
