package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dragonvein/dragonvein-server-go/internal/hand"
	"github.com/dragonvein/dragonvein-server-go/internal/memstore"
	"github.com/dragonvein/dragonvein-server-go/internal/reward"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func seeded(t *testing.T) *memstore.Store {
	t.Helper()
	s := memstore.New(zaptest.NewLogger(t))
	cards := []reward.Card{
		{Suit: hand.SuitSpades, Rank: hand.RankAce},
		{Suit: hand.SuitHearts, Rank: hand.RankKing},
	}
	items := []reward.Item{{Kind: reward.ItemFragment}, {Kind: reward.ItemWild}}
	require.NoError(t, s.Seed(context.Background(), cards, items, false))
	return s
}

func TestSeedRefusesReseed(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	err := s.Seed(ctx, []reward.Card{{Suit: hand.SuitClubs, Rank: hand.RankThree}}, nil, false)
	assert.ErrorIs(t, err, reward.ErrAlreadySeeded)
	assert.Len(t, s.Cards(), 2)

	require.NoError(t, s.Seed(ctx, []reward.Card{{Suit: hand.SuitClubs, Rank: hand.RankThree}}, nil, true))
	cards := s.Cards()
	require.Len(t, cards, 1)
	assert.Equal(t, int64(1), cards[0].ID)
	assert.Empty(t, s.Items())
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx reward.Tx) error {
		b := reward.Binding{UserID: 7, TeamID: 1, At: time.Now()}
		card, err := tx.BindCard(ctx, 1, b)
		require.NoError(t, err)
		require.NotNil(t, card)
		_, err = tx.InsertCard(ctx, reward.Card{Suit: hand.SuitHearts, Rank: hand.RankLevel, Wild: true})
		require.NoError(t, err)
		require.NoError(t, tx.MarkItemsUsed(ctx, []int64{1}, time.Now()))
		return boom
	})
	require.ErrorIs(t, err, boom)

	for _, c := range s.Cards() {
		assert.False(t, c.Claimed(), "card %d should be unclaimed after rollback", c.ID)
	}
	assert.Len(t, s.Cards(), 2)
	for _, it := range s.Items() {
		assert.False(t, it.Used)
	}
}

func TestBindIsConditional(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	err := s.InTx(ctx, func(ctx context.Context, tx reward.Tx) error {
		site := int64(3)
		first, err := tx.BindItem(ctx, 1, reward.Binding{UserID: 1, TeamID: 1, SiteID: &site, At: time.Now()})
		require.NoError(t, err)
		require.NotNil(t, first)

		second, err := tx.BindItem(ctx, 1, reward.Binding{UserID: 2, TeamID: 2, At: time.Now()})
		require.NoError(t, err)
		assert.Nil(t, second)

		held, err := tx.HoldsRewardFromSite(ctx, 1, site)
		require.NoError(t, err)
		assert.True(t, held)
		return nil
	})
	require.NoError(t, err)

	items := s.Items()
	require.NotNil(t, items[0].OwnerUser)
	assert.Equal(t, int64(1), *items[0].OwnerUser)
}

func TestRecordCheckinDuplicate(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	c := reward.Checkin{UserID: 1, SiteID: 2, TeamID: 1, RewardKind: "card", RewardID: 1, At: time.Now()}

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx reward.Tx) error {
		return tx.RecordCheckin(ctx, c)
	}))
	err := s.InTx(ctx, func(ctx context.Context, tx reward.Tx) error {
		return tx.RecordCheckin(ctx, c)
	})
	assert.ErrorIs(t, err, reward.ErrDuplicateCheckin)
}

func TestLockItemNotFound(t *testing.T) {
	s := seeded(t)
	err := s.InTx(context.Background(), func(ctx context.Context, tx reward.Tx) error {
		_, err := tx.LockItem(ctx, 99)
		return err
	})
	assert.ErrorIs(t, err, reward.ErrNotFound)
}

func TestInTxHonoursCancelledContext(t *testing.T) {
	s := seeded(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.InTx(ctx, func(ctx context.Context, tx reward.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
