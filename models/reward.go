package models

import (
	"fmt"
	"time"
)

// Reward is a store item bought with points. Stock only ever goes down, one
// unit per successful redemption.
type Reward struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Cost        int64     `gorm:"not null" json:"cost"`
	Stock       int64     `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r *Reward) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("reward name is required")
	}
	if r.Cost <= 0 {
		return fmt.Errorf("reward cost must be positive, got %d", r.Cost)
	}
	if r.Stock < 0 {
		return fmt.Errorf("reward stock cannot be negative, got %d", r.Stock)
	}
	return nil
}

func (r *Reward) Clone() *Reward {
	cp := *r
	return &cp
}

// Redemption is the append-only receipt of a successful purchase. Admins use
// it to deliver the reward.
type Redemption struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID         string    `gorm:"index;not null" json:"user_id"`
	ExternalUserID int64     `gorm:"index;not null" json:"external_user_id"`
	RewardID       uint      `gorm:"index;not null" json:"reward_id"`
	RewardName     string    `gorm:"not null" json:"reward_name"`
	Cost           int64     `gorm:"not null" json:"cost"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}
