// services/users.go
package services

import (
	"context"
	"errors"
	"strings"

	"mission-ledger/models"
	"mission-ledger/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultRankingLimit = 10
	MaxRankingLimit     = 100
)

type UserService struct {
	Store store.Store
	Log   *zap.Logger
}

func NewUserService(s store.Store, log *zap.Logger) *UserService {
	return &UserService{Store: s, Log: log}
}

// RegisterUserIfAbsent creates the user on first contact. Concurrent calls
// for the same external id create exactly one row; the losers get the
// existing user with created=false.
func (s *UserService) RegisterUserIfAbsent(ctx context.Context, externalUserID int64, displayName string) (*models.User, bool, error) {
	if externalUserID == 0 {
		return nil, false, invalidf("external_user_id is required")
	}

	u := models.NewUser(uuid.NewString(), externalUserID, strings.TrimSpace(displayName))
	err := s.Store.CreateUser(ctx, u)
	if errors.Is(err, store.ErrDuplicate) {
		existing, err := s.Store.FindUser(ctx, externalUserID)
		if err != nil {
			return nil, false, userErr(err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	s.Log.Info("user registered", zap.Int64("external_user_id", externalUserID), zap.String("id", u.ID))
	return u, true, nil
}

// GetProfile returns points, level and achievements for one user.
func (s *UserService) GetProfile(ctx context.Context, externalUserID int64) (*models.User, error) {
	u, err := s.Store.FindUser(ctx, externalUserID)
	if err != nil {
		return nil, userErr(err)
	}
	return u, nil
}

// RankingEntry is one line of the leaderboard.
type RankingEntry struct {
	Position       int    `json:"position"`
	ExternalUserID int64  `json:"external_user_id"`
	Name           string `json:"name"`
	Points         int64  `json:"points"`
	Level          int    `json:"level"`
}

// TopRanking orders users by points, ties broken by external id.
func (s *UserService) TopRanking(ctx context.Context, limit int) ([]RankingEntry, error) {
	if limit <= 0 {
		limit = DefaultRankingLimit
	}
	if limit > MaxRankingLimit {
		limit = MaxRankingLimit
	}

	users, err := s.Store.TopUsers(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RankingEntry, len(users))
	for i, u := range users {
		out[i] = RankingEntry{
			Position:       i + 1,
			ExternalUserID: u.ExternalUserID,
			Name:           u.Name(),
			Points:         u.Points,
			Level:          u.Level,
		}
	}
	return out, nil
}

// ExportAllUsers returns every user ordered by external id.
func (s *UserService) ExportAllUsers(ctx context.Context) ([]models.User, error) {
	return s.Store.ListUsers(ctx)
}

// UpdateDisplayName refreshes the cached display name. It reports whether
// anything changed.
func (s *UserService) UpdateDisplayName(ctx context.Context, externalUserID int64, displayName string) (bool, error) {
	displayName = strings.TrimSpace(displayName)
	var changed bool
	err := s.Store.Transaction(ctx, func(tx store.Tx) error {
		u, err := tx.LockUser(externalUserID)
		if err != nil {
			return userErr(err)
		}
		if u.DisplayName != nil && *u.DisplayName == displayName {
			return nil
		}
		if u.DisplayName == nil && displayName == "" {
			return nil
		}
		if displayName == "" {
			u.DisplayName = nil
		} else {
			u.DisplayName = &displayName
		}
		changed = true
		return tx.SaveUser(u)
	})
	return changed, err
}
