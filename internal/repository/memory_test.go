package repository

import (
	"context"
	"testing"
	"time"

	"github.com/mehrbod2002/copysignal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCopySettingsOneActivePerPair(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCopySettingsRepository()

	first := &models.CopySettings{UserID: "u1", TraderID: "t1", Amount: 1000, Active: true}
	require.NoError(t, repo.Save(ctx, first))
	assert.False(t, first.ID.IsZero())

	err := repo.Save(ctx, &models.CopySettings{UserID: "u1", TraderID: "t1", Amount: 50, Active: true})
	assert.ErrorIs(t, err, ErrDuplicateActive)

	first.Active = false
	require.NoError(t, repo.Update(ctx, first))

	got, err := repo.GetActive(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.Save(ctx, &models.CopySettings{UserID: "u1", TraderID: "t1", Amount: 50, Active: true}))
}

func TestMemoryCopySettingsQueries(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCopySettingsRepository()

	for _, s := range []*models.CopySettings{
		{UserID: "u1", TraderID: "t1", Active: true},
		{UserID: "u2", TraderID: "t1", Active: true},
		{UserID: "u1", TraderID: "t2", Active: true},
		{UserID: "u3", TraderID: "t3", Active: false},
	} {
		require.NoError(t, repo.Save(ctx, s))
	}

	byTrader, err := repo.ListActiveByTrader(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, byTrader, 2)

	byUser, err := repo.ListActiveByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	ids, err := repo.ListActiveTraderIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, ids)

	n, err := repo.CountActiveByTrader(ctx, "t3")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryCopySettingsReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCopySettingsRepository()
	require.NoError(t, repo.Save(ctx, &models.CopySettings{UserID: "u1", TraderID: "t1", Amount: 10, Active: true}))

	got, err := repo.GetActive(ctx, "u1", "t1")
	require.NoError(t, err)
	got.Amount = 999

	again, err := repo.GetActive(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, again.Amount)
}

func TestMemoryCopyTradeListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCopyTradeRepository()

	for _, sym := range []string{"BTC", "ETH", "SOL"} {
		require.NoError(t, repo.SaveCopyTrade(ctx, &models.CopyTradeRecord{UserID: "u1", Symbol: sym}))
	}
	require.NoError(t, repo.SaveCopyTrade(ctx, &models.CopyTradeRecord{UserID: "u2", Symbol: "ADA"}))

	recs, err := repo.ListByUser(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "SOL", recs[0].Symbol)
	assert.Equal(t, "ETH", recs[1].Symbol)
}

func TestMemoryUsageLedger(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryUsageLedger()
	day := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	total, err := l.Add(ctx, "u1", day, 300)
	require.NoError(t, err)
	assert.Equal(t, 300.0, total)

	total, err = l.Add(ctx, "u1", day.Add(5*time.Hour), 400)
	require.NoError(t, err)
	assert.Equal(t, 700.0, total)

	used, err := l.Used(ctx, "u1", day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, used)

	used, err = l.Used(ctx, "u2", day)
	require.NoError(t, err)
	assert.Zero(t, used)
}
