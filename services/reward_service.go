// services/reward_service.go
package services

import (
	"context"
	"strings"

	"mission-ledger/models"
	"mission-ledger/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

type RewardService struct {
	Store store.Store
	Log   *zap.Logger
}

func NewRewardService(s store.Store, log *zap.Logger) *RewardService {
	return &RewardService{Store: s, Log: log}
}

// RedemptionResult is returned for a successful purchase.
type RedemptionResult struct {
	RedemptionID    string `json:"redemption_id"`
	RewardID        uint   `json:"reward_id"`
	RewardName      string `json:"reward_name"`
	Cost            int64  `json:"cost"`
	RemainingPoints int64  `json:"remaining_points"`
	RemainingStock  int64  `json:"remaining_stock"`
}

// --- Admin ---

// CreateReward upserts a reward by (normalized) name. Stock only applies when
// the reward is new; an existing reward keeps its live stock.
func (s *RewardService) CreateReward(ctx context.Context, name, description string, cost, stock int64) (*models.Reward, bool, error) {
	reward := &models.Reward{
		Name:        normalizeName(name),
		Description: strings.TrimSpace(description),
		Cost:        cost,
		Stock:       stock,
	}
	if err := reward.Validate(); err != nil {
		return nil, false, invalidf("%v", err)
	}

	created, err := s.Store.UpsertReward(ctx, reward)
	if err != nil {
		return nil, false, err
	}
	s.Log.Info("reward upserted",
		zap.Uint("reward_id", reward.ID),
		zap.String("name", reward.Name),
		zap.Bool("created", created),
	)
	return reward, created, nil
}

func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ListRedemptions returns the receipt log, optionally for one user.
func (s *RewardService) ListRedemptions(ctx context.Context, externalUserID int64) ([]models.Redemption, error) {
	return s.Store.ListRedemptions(ctx, externalUserID)
}

// --- User ---

// ListAvailableRewards returns rewards with stock left, by id.
func (s *RewardService) ListAvailableRewards(ctx context.Context) ([]models.Reward, error) {
	return s.Store.ListRewards(ctx, true)
}

// GetReward returns one reward regardless of stock.
func (s *RewardService) GetReward(ctx context.Context, rewardID uint) (*models.Reward, error) {
	r, err := s.Store.FindReward(ctx, rewardID)
	if err != nil {
		return nil, rewardErr(err)
	}
	return r, nil
}

// Redeem spends the user's points on one unit of the reward. The reward row
// is locked before the user row in every redemption.
func (s *RewardService) Redeem(ctx context.Context, externalUserID int64, rewardID uint) (*RedemptionResult, error) {
	var res *RedemptionResult
	err := s.Store.Transaction(ctx, func(tx store.Tx) error {
		reward, err := tx.LockReward(rewardID)
		if err != nil {
			return rewardErr(err)
		}
		user, err := tx.LockUser(externalUserID)
		if err != nil {
			return userErr(err)
		}

		if reward.Stock <= 0 {
			return ErrOutOfStock
		}
		if user.Points < reward.Cost {
			return ErrInsufficientPoints
		}

		user.Points -= reward.Cost
		reward.Stock--
		if err := tx.SaveReward(reward); err != nil {
			return err
		}
		if err := tx.SaveUser(user); err != nil {
			return err
		}

		receipt := &models.Redemption{
			ID:             uuid.NewString(),
			UserID:         user.ID,
			ExternalUserID: user.ExternalUserID,
			RewardID:       reward.ID,
			RewardName:     reward.Name,
			Cost:           reward.Cost,
		}
		if err := tx.CreateRedemption(receipt); err != nil {
			return err
		}

		res = &RedemptionResult{
			RedemptionID:    receipt.ID,
			RewardID:        reward.ID,
			RewardName:      reward.Name,
			Cost:            reward.Cost,
			RemainingPoints: user.Points,
			RemainingStock:  reward.Stock,
		}
		return nil
	})
	redemptions.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		s.Log.Debug("redemption refused",
			zap.Int64("external_user_id", externalUserID),
			zap.Uint("reward_id", rewardID),
			zap.Error(err),
		)
		return nil, err
	}

	s.Log.Info("reward redeemed",
		zap.Int64("external_user_id", externalUserID),
		zap.Uint("reward_id", rewardID),
		zap.String("redemption_id", res.RedemptionID),
		zap.Int64("points", res.RemainingPoints),
		zap.Int64("stock", res.RemainingStock),
	)
	return res, nil
}
