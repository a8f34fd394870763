package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mehrbod2002/copysignal/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const queryTimeout = 5 * time.Second

// ErrDuplicateActive is returned when a second active settings row is saved
// for the same user and trader.
var ErrDuplicateActive = errors.New("active copy settings already exist for this trader")

type CopySettingsRepository interface {
	Save(ctx context.Context, settings *models.CopySettings) error
	Update(ctx context.Context, settings *models.CopySettings) error
	// GetActive returns nil, nil when the user does not follow the trader.
	GetActive(ctx context.Context, userID, traderID string) (*models.CopySettings, error)
	ListActiveByTrader(ctx context.Context, traderID string) ([]*models.CopySettings, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*models.CopySettings, error)
	ListActiveTraderIDs(ctx context.Context) ([]string, error)
	CountActiveByTrader(ctx context.Context, traderID string) (int, error)
}

type MongoCopySettingsRepository struct {
	collection *mongo.Collection
}

func NewCopySettingsRepository(client *mongo.Client, dbName, collectionName string) *MongoCopySettingsRepository {
	collection := client.Database(dbName).Collection(collectionName)
	return &MongoCopySettingsRepository{collection: collection}
}

// EnsureIndexes enforces at most one active row per (user_id, trader_id).
func (r *MongoCopySettingsRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "trader_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_active_pair").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"active": true}),
		},
		{
			Keys:    bson.D{{Key: "trader_id", Value: 1}, {Key: "active", Value: 1}},
			Options: options.Index().SetName("trader_active"),
		},
	})
	if err != nil {
		return fmt.Errorf("create copy settings indexes: %w", err)
	}
	return nil
}

func (r *MongoCopySettingsRepository) Save(ctx context.Context, settings *models.CopySettings) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	now := time.Now()
	settings.ID = primitive.NewObjectID()
	settings.CreatedAt = now
	settings.UpdatedAt = now
	_, err := r.collection.InsertOne(ctx, settings)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateActive
	}
	return err
}

func (r *MongoCopySettingsRepository) Update(ctx context.Context, settings *models.CopySettings) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	settings.UpdatedAt = time.Now()
	update := bson.M{
		"$set": bson.M{
			"amount":           settings.Amount,
			"max_trade_size":   settings.MaxTradeSize,
			"stop_loss_pct":    settings.StopLossPct,
			"take_profit_pct":  settings.TakeProfitPct,
			"daily_loss_limit": settings.DailyLossLimit,
			"active":           settings.Active,
			"updated_at":       settings.UpdatedAt,
		},
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": settings.ID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *MongoCopySettingsRepository) GetActive(ctx context.Context, userID, traderID string) (*models.CopySettings, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var settings models.CopySettings
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID, "trader_id": traderID, "active": true}).Decode(&settings)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *MongoCopySettingsRepository) ListActiveByTrader(ctx context.Context, traderID string) ([]*models.CopySettings, error) {
	return r.find(ctx, bson.M{"trader_id": traderID, "active": true})
}

func (r *MongoCopySettingsRepository) ListActiveByUser(ctx context.Context, userID string) ([]*models.CopySettings, error) {
	return r.find(ctx, bson.M{"user_id": userID, "active": true})
}

func (r *MongoCopySettingsRepository) ListActiveTraderIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	raw, err := r.collection.Distinct(ctx, "trader_id", bson.M{"active": true})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *MongoCopySettingsRepository) CountActiveByTrader(ctx context.Context, traderID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	n, err := r.collection.CountDocuments(ctx, bson.M{"trader_id": traderID, "active": true})
	return int(n), err
}

func (r *MongoCopySettingsRepository) find(ctx context.Context, filter bson.M) ([]*models.CopySettings, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var settings []*models.CopySettings
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, &settings); err != nil {
		return nil, err
	}
	return settings, nil
}
