package repository

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/mehrbod2002/copysignal/internal/models"
)

type positionKey struct {
	userID   string
	traderID string
	symbol   string
}

// PositionBook is the in-process exposure book: net quantity and average
// entry per (user, trader, symbol).
type PositionBook struct {
	mu        sync.RWMutex
	positions map[positionKey]models.Position
}

func NewPositionBook() *PositionBook {
	return &PositionBook{positions: make(map[positionKey]models.Position)}
}

func (b *PositionBook) Get(userID, traderID, symbol string) (models.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.positions[positionKey{userID, traderID, symbol}]
	return p, ok
}

// Apply books a fill of qty units at price. Adding to a position moves the
// average entry, reducing keeps it and flipping resets it to price.
// Flat positions are removed.
func (b *PositionBook) Apply(userID, traderID, symbol string, side models.TradeSide, qty, price float64, at time.Time) models.Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := positionKey{userID, traderID, symbol}
	p, ok := b.positions[key]
	if !ok {
		p = models.Position{UserID: userID, TraderID: traderID, Symbol: symbol}
	}

	delta := side.Sign() * qty
	next := p.Quantity + delta
	switch {
	case p.Quantity == 0 || sameSign(p.Quantity, delta):
		p.AvgEntryPrice = (math.Abs(p.Quantity)*p.AvgEntryPrice + qty*price) / math.Abs(next)
	case next != 0 && !sameSign(p.Quantity, next):
		p.AvgEntryPrice = price
	}
	p.Quantity = next
	p.UpdatedAt = at

	if isFlat(p.Quantity) {
		p.Quantity = 0
		p.AvgEntryPrice = 0
		delete(b.positions, key)
		return p
	}
	b.positions[key] = p
	return p
}

func (b *PositionBook) ListByUser(userID string) []models.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.Position, 0)
	for k, p := range b.positions {
		if k.userID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TraderID != out[j].TraderID {
			return out[i].TraderID < out[j].TraderID
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func sameSign(a, b float64) bool { return (a > 0) == (b > 0) }

func isFlat(q float64) bool { return math.Abs(q) < 1e-12 }
