package repository

import (
	"testing"
	"time"

	"github.com/mehrbod2002/copysignal/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestPositionBookApply(t *testing.T) {
	type fill struct {
		side  models.TradeSide
		qty   float64
		price float64
	}
	testCases := []struct {
		name    string
		fills   []fill
		wantQty float64
		wantAvg float64
	}{
		{
			name:    "open long",
			fills:   []fill{{models.TradeSideBuy, 2, 100}},
			wantQty: 2, wantAvg: 100,
		},
		{
			name:    "add to long averages entry",
			fills:   []fill{{models.TradeSideBuy, 1, 100}, {models.TradeSideBuy, 1, 200}},
			wantQty: 2, wantAvg: 150,
		},
		{
			name:    "reduce keeps entry",
			fills:   []fill{{models.TradeSideBuy, 3, 100}, {models.TradeSideSell, 1, 130}},
			wantQty: 2, wantAvg: 100,
		},
		{
			name:    "flip resets entry",
			fills:   []fill{{models.TradeSideBuy, 1, 100}, {models.TradeSideSell, 3, 90}},
			wantQty: -2, wantAvg: 90,
		},
		{
			name:    "open short",
			fills:   []fill{{models.TradeSideSell, 4, 50}},
			wantQty: -4, wantAvg: 50,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			b := NewPositionBook()
			for _, f := range tt.fills {
				b.Apply("u1", "t1", "BTC", f.side, f.qty, f.price, time.Now())
			}
			p, ok := b.Get("u1", "t1", "BTC")
			assert.True(t, ok)
			assert.InDelta(t, tt.wantQty, p.Quantity, 1e-9)
			assert.InDelta(t, tt.wantAvg, p.AvgEntryPrice, 1e-9)
		})
	}
}

func TestPositionBookClosesFlatPositions(t *testing.T) {
	b := NewPositionBook()
	b.Apply("u1", "t1", "ETH", models.TradeSideBuy, 2, 10, time.Now())
	p := b.Apply("u1", "t1", "ETH", models.TradeSideSell, 2, 12, time.Now())

	assert.Zero(t, p.Quantity)
	_, ok := b.Get("u1", "t1", "ETH")
	assert.False(t, ok)
	assert.Empty(t, b.ListByUser("u1"))
}

func TestPositionBookListByUser(t *testing.T) {
	b := NewPositionBook()
	b.Apply("u1", "t2", "SOL", models.TradeSideBuy, 1, 10, time.Now())
	b.Apply("u1", "t1", "BTC", models.TradeSideBuy, 1, 10, time.Now())
	b.Apply("u2", "t1", "BTC", models.TradeSideBuy, 1, 10, time.Now())

	got := b.ListByUser("u1")
	assert.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].TraderID)
	assert.Equal(t, "t2", got[1].TraderID)
}
