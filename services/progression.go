package services

import (
	"context"
	"fmt"
	"math"

	"mission-ledger/models"
	"mission-ledger/store"

	"go.uber.org/zap"
)

// LevelThreshold: points needed to reach Level
type LevelThreshold struct {
	Level  int   `yaml:"level" json:"level"`
	Points int64 `yaml:"points" json:"points"`
}

// LevelTable is walked in ascending order. Levels and point thresholds must
// both be strictly increasing and start above level 1.
type LevelTable []LevelThreshold

// DefaultLevelTable: L2 at 10 pts, L3 at 25, L4 at 50, L5 at 100
var DefaultLevelTable = LevelTable{
	{Level: 2, Points: 10},
	{Level: 3, Points: 25},
	{Level: 4, Points: 50},
	{Level: 5, Points: 100},
}

func (t LevelTable) Validate() error {
	prevLevel, prevPoints := 1, int64(0)
	for i, th := range t {
		if th.Level <= prevLevel {
			return fmt.Errorf("level table entry %d: level %d must be above %d", i, th.Level, prevLevel)
		}
		if th.Points <= prevPoints {
			return fmt.Errorf("level table entry %d: threshold %d must be above %d", i, th.Points, prevPoints)
		}
		prevLevel, prevPoints = th.Level, th.Points
	}
	return nil
}

// LevelAchievement is the achievement granted on reaching level n.
func LevelAchievement(n int) string {
	return fmt.Sprintf("Level %d Reached", n)
}

// AwardResult is what a successful award reports back.
type AwardResult struct {
	Points          int64    `json:"points"`
	Level           int      `json:"level"`
	NewAchievements []string `json:"new_achievements"`
}

type ProgressionService struct {
	Store  store.Store
	Levels LevelTable
	Log    *zap.Logger
}

func NewProgressionService(s store.Store, levels LevelTable, log *zap.Logger) (*ProgressionService, error) {
	if levels == nil {
		levels = DefaultLevelTable
	}
	if err := levels.Validate(); err != nil {
		return nil, err
	}
	return &ProgressionService{Store: s, Levels: levels, Log: log}, nil
}

// AwardPoints credits delta points and applies any level-ups, in its own
// transaction. It does not claim a completion token; use the Dispatcher for
// mission rewards.
func (s *ProgressionService) AwardPoints(ctx context.Context, externalUserID int64, delta int64) (*AwardResult, error) {
	if delta <= 0 {
		return nil, invalidf("points delta must be positive, got %d", delta)
	}

	var res *AwardResult
	err := s.Store.Transaction(ctx, func(tx store.Tx) error {
		u, err := tx.LockUser(externalUserID)
		if err != nil {
			return userErr(err)
		}
		res, err = s.apply(u, delta)
		if err != nil {
			return err
		}
		return tx.SaveUser(u)
	})
	if err != nil {
		return nil, err
	}
	s.observe(externalUserID, delta, res)
	return res, nil
}

// apply mutates u in memory: adds delta, then raises the level once per
// threshold crossed, stopping at the first threshold above the new total.
func (s *ProgressionService) apply(u *models.User, delta int64) (*AwardResult, error) {
	if delta <= 0 {
		return nil, invalidf("points delta must be positive, got %d", delta)
	}
	if u.Points > math.MaxInt64-delta {
		return nil, invalidf("points overflow for user %d", u.ExternalUserID)
	}
	u.Points += delta

	res := &AwardResult{NewAchievements: []string{}}
	for _, th := range s.Levels {
		if u.Points < th.Points {
			break
		}
		if u.Level >= th.Level {
			continue
		}
		u.Level = th.Level
		name := LevelAchievement(th.Level)
		if u.Achievements.Add(name) {
			res.NewAchievements = append(res.NewAchievements, name)
		}
	}
	res.Points = u.Points
	res.Level = u.Level
	return res, nil
}

func (s *ProgressionService) observe(externalUserID, delta int64, res *AwardResult) {
	pointsAwarded.Add(float64(delta))
	for _, name := range res.NewAchievements {
		achievementsGranted.WithLabelValues(achievementKind(name)).Inc()
	}
	s.Log.Info("points awarded",
		zap.Int64("external_user_id", externalUserID),
		zap.Int64("delta", delta),
		zap.Int64("points", res.Points),
		zap.Int("level", res.Level),
		zap.Strings("new_achievements", res.NewAchievements),
	)
}
