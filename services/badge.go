package services

import (
	"context"
	"strings"

	"mission-ledger/models"
	"mission-ledger/store"

	"go.uber.org/zap"
)

// Achievements granted the first time a user completes each kind of mission.
const (
	AchievementFirstReaction = "First Reaction"
	AchievementFirstPoll     = "First Poll"
)

type BadgeService struct {
	Store store.Store
	Log   *zap.Logger
}

func NewBadgeService(s store.Store, log *zap.Logger) *BadgeService {
	return &BadgeService{Store: s, Log: log}
}

// GrantAchievement adds name to the user's achievements. It reports false,
// without writing anything, when the user already has it.
func (s *BadgeService) GrantAchievement(ctx context.Context, externalUserID int64, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, invalidf("achievement name is required")
	}

	var granted bool
	err := s.Store.Transaction(ctx, func(tx store.Tx) error {
		u, err := tx.LockUser(externalUserID)
		if err != nil {
			return userErr(err)
		}
		if granted = grant(u, name); !granted {
			return nil
		}
		return tx.SaveUser(u)
	})
	if err != nil {
		return false, err
	}
	if granted {
		achievementsGranted.WithLabelValues(achievementKind(name)).Inc()
		s.Log.Info("achievement granted",
			zap.Int64("external_user_id", externalUserID),
			zap.String("achievement", name),
		)
	}
	return granted, nil
}

func grant(u *models.User, name string) bool {
	return u.Achievements.Add(name)
}
