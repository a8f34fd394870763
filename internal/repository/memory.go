package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mehrbod2002/copysignal/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MemoryCopySettingsRepository is used when no MONGO_URI is configured.
// Rows are copied on the way in and out so callers never share state.
type MemoryCopySettingsRepository struct {
	mu   sync.RWMutex
	rows map[primitive.ObjectID]models.CopySettings
}

func NewMemoryCopySettingsRepository() *MemoryCopySettingsRepository {
	return &MemoryCopySettingsRepository{rows: make(map[primitive.ObjectID]models.CopySettings)}
}

func (r *MemoryCopySettingsRepository) Save(_ context.Context, settings *models.CopySettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if settings.Active {
		for _, row := range r.rows {
			if row.Active && row.UserID == settings.UserID && row.TraderID == settings.TraderID {
				return ErrDuplicateActive
			}
		}
	}
	now := time.Now()
	settings.ID = primitive.NewObjectID()
	settings.CreatedAt = now
	settings.UpdatedAt = now
	r.rows[settings.ID] = *settings
	return nil
}

func (r *MemoryCopySettingsRepository) Update(_ context.Context, settings *models.CopySettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[settings.ID]; !ok {
		return mongo.ErrNoDocuments
	}
	settings.UpdatedAt = time.Now()
	r.rows[settings.ID] = *settings
	return nil
}

func (r *MemoryCopySettingsRepository) GetActive(_ context.Context, userID, traderID string) (*models.CopySettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, row := range r.rows {
		if row.Active && row.UserID == userID && row.TraderID == traderID {
			s := row
			return &s, nil
		}
	}
	return nil, nil
}

func (r *MemoryCopySettingsRepository) ListActiveByTrader(_ context.Context, traderID string) ([]*models.CopySettings, error) {
	return r.filter(func(s models.CopySettings) bool { return s.TraderID == traderID }), nil
}

func (r *MemoryCopySettingsRepository) ListActiveByUser(_ context.Context, userID string) ([]*models.CopySettings, error) {
	return r.filter(func(s models.CopySettings) bool { return s.UserID == userID }), nil
}

func (r *MemoryCopySettingsRepository) ListActiveTraderIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, row := range r.rows {
		if !row.Active {
			continue
		}
		if _, ok := seen[row.TraderID]; ok {
			continue
		}
		seen[row.TraderID] = struct{}{}
		ids = append(ids, row.TraderID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemoryCopySettingsRepository) CountActiveByTrader(ctx context.Context, traderID string) (int, error) {
	rows, _ := r.ListActiveByTrader(ctx, traderID)
	return len(rows), nil
}

func (r *MemoryCopySettingsRepository) filter(keep func(models.CopySettings) bool) []*models.CopySettings {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.CopySettings, 0)
	for _, row := range r.rows {
		if row.Active && keep(row) {
			s := row
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type MemoryCopyTradeRepository struct {
	mu      sync.RWMutex
	records []models.CopyTradeRecord
}

func NewMemoryCopyTradeRepository() *MemoryCopyTradeRepository {
	return &MemoryCopyTradeRepository{}
}

func (r *MemoryCopyTradeRepository) SaveCopyTrade(_ context.Context, record *models.CopyTradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record.ID = primitive.NewObjectID()
	record.CreatedAt = time.Now()
	r.records = append(r.records, *record)
	return nil
}

// ListByUser returns the newest records first.
func (r *MemoryCopyTradeRepository) ListByUser(_ context.Context, userID string, limit int) ([]*models.CopyTradeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.CopyTradeRecord, 0)
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].UserID != userID {
			continue
		}
		rec := r.records[i]
		out = append(out, &rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
