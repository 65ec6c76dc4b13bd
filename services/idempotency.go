package services

import (
	"context"

	"mission-ledger/models"
	"mission-ledger/store"
)

// IdempotencyGuard records which completion tokens each user has claimed.
type IdempotencyGuard struct {
	Store store.Store
}

func NewIdempotencyGuard(s store.Store) *IdempotencyGuard {
	return &IdempotencyGuard{Store: s}
}

// TryClaim returns true exactly once per (user, token). Only the winning
// claim writes.
func (g *IdempotencyGuard) TryClaim(ctx context.Context, externalUserID int64, token models.CompletionToken) (bool, error) {
	if err := token.Validate(); err != nil {
		return false, err
	}
	var claimed bool
	err := g.Store.Transaction(ctx, func(tx store.Tx) error {
		u, err := tx.LockUser(externalUserID)
		if err != nil {
			return userErr(err)
		}
		if claimed = claim(u, token); !claimed {
			return nil
		}
		return tx.SaveUser(u)
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

func claim(u *models.User, token models.CompletionToken) bool {
	return u.CompletedMissions.Add(token)
}
