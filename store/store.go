// Package store is the ledger's persistence boundary. Services only see the
// Store and Tx interfaces; the backends are an in-memory reference store and
// a GORM store for postgres and sqlite.
package store

import (
	"context"
	"errors"

	"mission-ledger/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")

	// ErrUnavailable wraps every backend failure. Callers may retry; a
	// failed transaction leaves no partial state behind.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is the ledger's durable state: users, missions, rewards and the
// redemption log.
type Store interface {
	// Transaction runs fn with exclusive access to every row it locks
	// through tx. All writes made through tx commit together when fn
	// returns nil; any error discards them and is returned unchanged.
	Transaction(ctx context.Context, fn func(tx Tx) error) error

	// CreateUser inserts u, or returns ErrDuplicate if a user with the
	// same external id already exists.
	CreateUser(ctx context.Context, u *models.User) error
	FindUser(ctx context.Context, externalUserID int64) (*models.User, error)
	// ListUsers returns every user ordered by external id.
	ListUsers(ctx context.Context) ([]models.User, error)
	// TopUsers orders by points descending, then external id ascending.
	TopUsers(ctx context.Context, limit int) ([]models.User, error)

	CreateMission(ctx context.Context, m *models.Mission) error
	FindMission(ctx context.Context, id uint) (*models.Mission, error)
	FindMissionByCode(ctx context.Context, code string) (*models.Mission, error)
	FindMissionByPost(ctx context.Context, postID int64) (*models.Mission, error)
	FindMissionByPoll(ctx context.Context, pollID string) (*models.Mission, error)
	// ListActiveMissions returns active missions in creation order.
	ListActiveMissions(ctx context.Context) ([]models.Mission, error)

	// UpsertReward inserts r keyed by name, or updates the description and
	// cost of the existing row. Stock is only set on insert. r is refreshed
	// with the stored row.
	UpsertReward(ctx context.Context, r *models.Reward) (created bool, err error)
	FindReward(ctx context.Context, id uint) (*models.Reward, error)
	// ListRewards returns rewards by id, only those in stock when
	// inStockOnly is set.
	ListRewards(ctx context.Context, inStockOnly bool) ([]models.Reward, error)

	// ListRedemptions returns receipts oldest first. externalUserID 0 means
	// all users.
	ListRedemptions(ctx context.Context, externalUserID int64) ([]models.Redemption, error)

	Close() error
}

// Tx is the locked view handed to Store.Transaction callbacks.
type Tx interface {
	LockUser(externalUserID int64) (*models.User, error)
	SaveUser(u *models.User) error
	// LockAllUsers locks and returns every user ordered by external id.
	LockAllUsers() ([]models.User, error)
	// ResetUsers clears progression for every user.
	ResetUsers() (int64, error)

	LockMission(id uint) (*models.Mission, error)
	SaveMission(m *models.Mission) error

	LockReward(id uint) (*models.Reward, error)
	SaveReward(r *models.Reward) error

	CreateRedemption(r *models.Redemption) error
}
