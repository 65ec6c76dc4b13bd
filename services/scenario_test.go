package services

import (
	"context"
	"sync"
	"testing"

	"mission-ledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A single user earns, replays, fails to afford, earns more, buys the last
// unit and loses the race for it a second time.
func TestLedgerScenario(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		register(t, l, 1)
		token, err := models.KeyToken("m1")
		require.NoError(t, err)

		res, err := l.Dispatcher.Complete(ctx, 1, token, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(10), res.Points)
		assert.Equal(t, 2, res.Level)
		assert.Equal(t, []string{"Level 2 Reached"}, res.NewAchievements)

		_, err = l.Dispatcher.Complete(ctx, 1, token, 10)
		assert.ErrorIs(t, err, ErrAlreadyCompleted)
		u, err := l.Users.GetProfile(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(10), u.Points)

		reward, _, err := l.Rewards.CreateReward(ctx, "Poster", "", 20, 1)
		require.NoError(t, err)
		_, err = l.Rewards.Redeem(ctx, 1, reward.ID)
		assert.ErrorIs(t, err, ErrInsufficientPoints)

		res, err = l.Progression.AwardPoints(ctx, 1, 15)
		require.NoError(t, err)
		assert.Equal(t, int64(25), res.Points)
		assert.Equal(t, 3, res.Level)

		var (
			wg   sync.WaitGroup
			errs [2]error
		)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = l.Rewards.Redeem(ctx, 1, reward.ID)
			}(i)
		}
		wg.Wait()

		kinds := []ErrorKind{Kind(errs[0]), Kind(errs[1])}
		assert.ElementsMatch(t, []ErrorKind{KindNone, KindOutOfStock}, kinds)

		u, err = l.Users.GetProfile(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(5), u.Points)
		assert.Equal(t, 3, u.Level)
		stored, err := l.Rewards.GetReward(ctx, reward.ID)
		require.NoError(t, err)
		assert.Zero(t, stored.Stock)
	})
}
