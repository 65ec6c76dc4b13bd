package services

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCreateReward_UpsertByNormalizedName(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()

		// Decomposed accents normalize to the composed form.
		first, created, err := l.Rewards.CreateReward(ctx, "Espi\u0301a del Diva\u0301n", "v1", 30, 5)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "Espía del Diván", first.Name)

		second, created, err := l.Rewards.CreateReward(ctx, " Espía del Diván ", "v2", 35, 99)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, int64(35), second.Cost)
		assert.Equal(t, int64(5), second.Stock)
	})
}

func TestCreateReward_Validation(t *testing.T) {
	l, _ := newMemoryLedger(t)
	ctx := context.Background()

	for name, args := range map[string]struct {
		name        string
		cost, stock int64
	}{
		"empty name":     {"", 10, 1},
		"zero cost":      {"x", 0, 1},
		"negative stock": {"x", 10, -1},
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := l.Rewards.CreateReward(ctx, args.name, "", args.cost, args.stock)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestRedeem_Checks(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		register(t, l, 1)
		cheap, _, err := l.Rewards.CreateReward(ctx, "Cheap", "", 10, 1)
		require.NoError(t, err)
		empty, _, err := l.Rewards.CreateReward(ctx, "Empty", "", 10, 0)
		require.NoError(t, err)

		_, err = l.Rewards.Redeem(ctx, 1, 999)
		assert.ErrorIs(t, err, ErrRewardNotFound)

		_, err = l.Rewards.Redeem(ctx, 2, cheap.ID)
		assert.ErrorIs(t, err, ErrUserNotFound)

		_, err = l.Rewards.Redeem(ctx, 1, empty.ID)
		assert.ErrorIs(t, err, ErrOutOfStock)

		_, err = l.Rewards.Redeem(ctx, 1, cheap.ID)
		assert.ErrorIs(t, err, ErrInsufficientPoints)

		_, err = l.Progression.AwardPoints(ctx, 1, 12)
		require.NoError(t, err)
		res, err := l.Rewards.Redeem(ctx, 1, cheap.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), res.RemainingPoints)
		assert.Zero(t, res.RemainingStock)
		assert.Equal(t, "Cheap", res.RewardName)

		receipts, err := l.Rewards.ListRedemptions(ctx, 1)
		require.NoError(t, err)
		require.Len(t, receipts, 1)
		assert.Equal(t, res.RedemptionID, receipts[0].ID)
		assert.Equal(t, int64(10), receipts[0].Cost)

		available, err := l.Rewards.ListAvailableRewards(ctx)
		require.NoError(t, err)
		assert.Empty(t, available)
	})
}

func TestRedeem_StockConservedUnderConcurrency(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		const stock, buyers = 3, 10

		reward, _, err := l.Rewards.CreateReward(ctx, "Limited", "", 10, stock)
		require.NoError(t, err)
		for id := int64(1); id <= buyers; id++ {
			register(t, l, id)
			_, err := l.Progression.AwardPoints(ctx, id, 10)
			require.NoError(t, err)
		}

		var ok, outOfStock atomic.Int32
		var g errgroup.Group
		for id := int64(1); id <= buyers; id++ {
			id := id
			g.Go(func() error {
				_, err := l.Rewards.Redeem(ctx, id, reward.ID)
				switch Kind(err) {
				case KindNone:
					ok.Add(1)
				case KindOutOfStock:
					outOfStock.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.Equal(t, int32(stock), ok.Load())
		assert.Equal(t, int32(buyers-stock), outOfStock.Load())

		stored, err := l.Rewards.GetReward(ctx, reward.ID)
		require.NoError(t, err)
		assert.Zero(t, stored.Stock)

		receipts, err := l.Rewards.ListRedemptions(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, receipts, stock)
	})
}

func TestRedeem_BalanceDebitedOnce(t *testing.T) {
	forEachLedger(t, func(t *testing.T, l *Ledger) {
		ctx := context.Background()
		register(t, l, 1)
		_, err := l.Progression.AwardPoints(ctx, 1, 15)
		require.NoError(t, err)
		a, _, err := l.Rewards.CreateReward(ctx, "A", "", 10, 5)
		require.NoError(t, err)
		b, _, err := l.Rewards.CreateReward(ctx, "B", "", 10, 5)
		require.NoError(t, err)

		var ok, short atomic.Int32
		var g errgroup.Group
		for _, id := range []uint{a.ID, b.ID, a.ID, b.ID} {
			id := id
			g.Go(func() error {
				_, err := l.Rewards.Redeem(ctx, 1, id)
				switch Kind(err) {
				case KindNone:
					ok.Add(1)
				case KindInsufficientPoints:
					short.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.Equal(t, int32(1), ok.Load())
		assert.Equal(t, int32(3), short.Load())

		u, err := l.Users.GetProfile(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(5), u.Points)
	})
}

func TestRedeem_StoreOutageLeavesNoPartialState(t *testing.T) {
	l, s := newMemoryLedger(t)
	ctx := context.Background()
	register(t, l, 1)
	_, err := l.Progression.AwardPoints(ctx, 1, 20)
	require.NoError(t, err)
	reward, _, err := l.Rewards.CreateReward(ctx, "R", "", 20, 1)
	require.NoError(t, err)

	s.SetUnavailable(true)
	_, err = l.Rewards.Redeem(ctx, 1, reward.ID)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	s.SetUnavailable(false)

	u, err := l.Users.GetProfile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(20), u.Points)
	stored, err := l.Rewards.GetReward(ctx, reward.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Stock)
}
