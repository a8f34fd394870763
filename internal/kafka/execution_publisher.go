package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mehrbod2002/copysignal/interfaces"
	"github.com/segmentio/kafka-go"
)

const StatusSubmitted = "SUBMITTED"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ExecutionPublisher hands follower orders to the execution venue over
// Kafka. Messages are keyed by user so one follower's orders stay ordered.
type ExecutionPublisher struct {
	writer messageWriter
	Topic  string
}

func NewExecutionPublisher(brokers []string, topic string) *ExecutionPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &ExecutionPublisher{writer: writer, Topic: topic}
}

func (p *ExecutionPublisher) Execute(ctx context.Context, req interfaces.OrderRequest) (*interfaces.OrderResponse, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	value, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(req.UserID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "trader_id", Value: []byte(req.TraderID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return nil, fmt.Errorf("kafka write: %w", err)
	}

	return &interfaces.OrderResponse{
		OrderID:     req.RequestID,
		Status:      StatusSubmitted,
		FilledPrice: req.Price,
		Timestamp:   time.Now(),
	}, nil
}

func (p *ExecutionPublisher) Close() error {
	return p.writer.Close()
}
