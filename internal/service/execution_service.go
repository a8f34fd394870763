package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mehrbod2002/copysignal/interfaces"

	"go.uber.org/zap"
)

// PaperExecutionService fills every order at the requested price. It is
// wired when no Kafka brokers are configured.
type PaperExecutionService struct {
	logger *zap.Logger
}

func NewPaperExecutionService(logger *zap.Logger) *PaperExecutionService {
	return &PaperExecutionService{logger: logger.Named("paper_exec")}
}

func (p *PaperExecutionService) Execute(_ context.Context, req interfaces.OrderRequest) (*interfaces.OrderResponse, error) {
	resp := &interfaces.OrderResponse{
		OrderID:     "paper-" + uuid.NewString(),
		Status:      "FILLED",
		FilledPrice: req.Price,
		Timestamp:   time.Now(),
	}
	p.logger.Info("paper fill",
		zap.String("order_id", resp.OrderID),
		zap.String("user_id", req.UserID),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Float64("amount", req.Amount),
		zap.Float64("price", req.Price),
	)
	return resp, nil
}
