package repository

import (
	"context"
	"time"

	"github.com/mehrbod2002/copysignal/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CopyTradeRepository interface {
	SaveCopyTrade(ctx context.Context, record *models.CopyTradeRecord) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.CopyTradeRecord, error)
}

type MongoCopyTradeRepository struct {
	collection *mongo.Collection
}

func NewCopyTradeRepository(client *mongo.Client, dbName, collectionName string) CopyTradeRepository {
	collection := client.Database(dbName).Collection(collectionName)
	return &MongoCopyTradeRepository{collection: collection}
}

func (r *MongoCopyTradeRepository) SaveCopyTrade(ctx context.Context, record *models.CopyTradeRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	record.ID = primitive.NewObjectID()
	record.CreatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, record)
	return err
}

func (r *MongoCopyTradeRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.CopyTradeRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	var records []*models.CopyTradeRecord
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}
