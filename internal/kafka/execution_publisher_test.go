package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mehrbod2002/copysignal/interfaces"
	"github.com/mehrbod2002/copysignal/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestExecutionPublisherWritesKeyedOrder(t *testing.T) {
	w := &fakeWriter{}
	p := &ExecutionPublisher{writer: w, Topic: "orders"}

	resp, err := p.Execute(context.Background(), interfaces.OrderRequest{
		UserID:   "u1",
		TraderID: "t1",
		Symbol:   "BTC",
		Side:     models.TradeSideBuy,
		Amount:   50,
		Price:    100,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, resp.Status)
	assert.NotEmpty(t, resp.OrderID)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("u1"), w.msgs[0].Key)

	var got interfaces.OrderRequest
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, resp.OrderID, got.RequestID)
	assert.Equal(t, "BTC", got.Symbol)
	assert.Equal(t, 50.0, got.Amount)
}

func TestExecutionPublisherWriteError(t *testing.T) {
	p := &ExecutionPublisher{writer: &fakeWriter{err: errors.New("broker down")}}

	_, err := p.Execute(context.Background(), interfaces.OrderRequest{UserID: "u1"})
	assert.ErrorContains(t, err, "broker down")
}
