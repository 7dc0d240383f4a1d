package worker

import (
	"context"
	"errors"

	"pos-service/internal/broker"
	"pos-service/internal/models"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

// ReceiptGenerator renders and stores the receipt of a completed order
type ReceiptGenerator interface {
	GenerateReceipt(ctx context.Context, orderID int64) (string, error)
}

// ReceiptWorker renders receipts for orders as they complete
type ReceiptWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	receipts     ReceiptGenerator
	logger       *zap.Logger
}

// NewReceiptWorker creates a new receipt worker
func NewReceiptWorker(consumer *broker.Consumer, receipts ReceiptGenerator) *ReceiptWorker {
	w := &ReceiptWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		receipts:     receipts,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnOrderCompleted(w.HandleOrderCompleted)
	return w
}

// Start starts the worker
func (w *ReceiptWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting receipt worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReceiptWorker) Stop() error {
	w.logger.Info("Stopping receipt worker")
	return w.consumer.Close()
}

// HandleOrderCompleted renders the receipt of a completed order. An order
// cancelled before its receipt was rendered is skipped.
func (w *ReceiptWorker) HandleOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	url, err := w.receipts.GenerateReceipt(ctx, event.OrderID)
	if errors.Is(err, models.ErrInvalidState) || errors.Is(err, models.ErrNotFound) {
		w.logger.Info("Skipping receipt",
			zap.Int64("order_id", event.OrderID),
			zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}

	w.logger.Info("Receipt rendered",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("order_number", event.OrderNumber),
		zap.String("url", url))
	return nil
}

// StockAlertWorker reports products that need restocking
type StockAlertWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
	notify       func(ctx context.Context, event *models.StockLowEvent) error
}

// NewStockAlertWorker creates a new stock alert worker. notify may be nil,
// in which case alerts are only logged.
func NewStockAlertWorker(consumer *broker.Consumer, notify func(ctx context.Context, event *models.StockLowEvent) error) *StockAlertWorker {
	w := &StockAlertWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		logger:       util.GetLogger(),
		notify:       notify,
	}
	w.eventHandler.OnStockLow(w.HandleStockLow)
	return w
}

// Start starts the worker
func (w *StockAlertWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock alert worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockAlertWorker) Stop() error {
	w.logger.Info("Stopping stock alert worker")
	return w.consumer.Close()
}

// HandleStockLow logs a restock request and forwards it to notify
func (w *StockAlertWorker) HandleStockLow(ctx context.Context, event *models.StockLowEvent) error {
	w.logger.Warn("Restock needed",
		zap.Int64("product_id", event.ProductID),
		zap.String("name", event.Name),
		zap.Int("stock", event.Stock),
		zap.Int("threshold", event.Threshold))

	if w.notify == nil {
		return nil
	}
	return w.notify(ctx, event)
}
