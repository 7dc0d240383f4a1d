package service

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InventoryService owns product stock. Stock only changes through the
// store's conditional update, and every change is explained by an entry in
// the inventory log written in the same unit of work.
type InventoryService struct {
	store  *store.Store
	events emitter
	logger *zap.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(store *store.Store, publisher EventPublisher) *InventoryService {
	logger := util.GetLogger()
	return &InventoryService{
		store:  store,
		events: newEmitter(publisher, logger),
		logger: logger,
	}
}

// CreateProductRequest represents a request to create a product
type CreateProductRequest struct {
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Stock         int             `json:"stock"`
	LowStockAlert *int            `json:"low_stock_alert,omitempty"`
	Variants      []string        `json:"variants,omitempty"`
	CreatedBy     int64           `json:"-"`
}

func (r *CreateProductRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return models.NewValidationError("name", "is required")
	}
	if r.Price.IsNegative() {
		return models.NewValidationError("price", "must not be negative")
	}
	if r.Stock < 0 {
		return models.NewValidationError("stock", "must not be negative")
	}
	if r.LowStockAlert != nil && *r.LowStockAlert < 0 {
		return models.NewValidationError("low_stock_alert", "must not be negative")
	}
	return nil
}

// CreateProduct inserts a product. Opening stock is logged as a restock so
// the inventory log of every product sums to its stock.
func (s *InventoryService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.CreateProduct")
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:          strings.TrimSpace(req.Name),
		Price:         req.Price,
		LowStockAlert: req.LowStockAlert,
		Variants:      req.Variants,
	}

	err := s.store.RunInTx(ctx, func(tx *store.Tx) error {
		if err := tx.InsertProduct(ctx, product); err != nil {
			return err
		}
		if req.Stock == 0 {
			return nil
		}

		stock, err := tx.ReleaseStock(ctx, product.ID, req.Stock)
		if err != nil {
			return err
		}
		product.Stock = stock

		reference := "opening stock"
		return tx.AppendInventoryTransaction(ctx, &models.InventoryTransaction{
			ProductID: product.ID,
			Quantity:  req.Stock,
			Type:      models.InventoryTxRestock,
			Reference: &reference,
			CreatedBy: req.CreatedBy,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.Int("stock", product.Stock))
	return product, nil
}

// GetProduct retrieves a product by ID
func (s *InventoryService) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	return s.store.GetProductByID(ctx, productID)
}

// AdjustStockRequest represents a manual stock correction or a restock
type AdjustStockRequest struct {
	ProductID  int64                           `json:"-"`
	Quantity   int                             `json:"quantity"`
	Type       models.InventoryTransactionType `json:"type"`
	Reference  *string                         `json:"reference,omitempty"`
	Notes      *string                         `json:"notes,omitempty"`
	ActingUser int64                           `json:"-"`
}

func (r *AdjustStockRequest) validate() error {
	if r.Type == "" {
		r.Type = models.InventoryTxManualAdjustment
	}
	switch r.Type {
	case models.InventoryTxManualAdjustment:
		if r.Quantity == 0 {
			return models.NewValidationError("quantity", "must not be zero")
		}
	case models.InventoryTxRestock:
		if r.Quantity <= 0 {
			return models.NewValidationError("quantity", "must be positive for a restock")
		}
	default:
		return models.NewValidationError("type", fmt.Sprintf("must be %s or %s",
			models.InventoryTxManualAdjustment, models.InventoryTxRestock))
	}
	return nil
}

// AdjustmentResult is the logged entry and the stock after it
type AdjustmentResult struct {
	Entry *models.InventoryTransaction `json:"entry"`
	Stock int                          `json:"stock"`
}

// AdjustStock applies a signed stock change. A decrement larger than the
// current stock fails with InsufficientStockError and changes nothing.
func (s *InventoryService) AdjustStock(ctx context.Context, req *AdjustStockRequest) (_ *AdjustmentResult, err error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.AdjustStock",
		attribute.Int64("product_id", req.ProductID))
	defer func() { util.EndSpan(span, err) }()

	if err := req.validate(); err != nil {
		return nil, err
	}

	var (
		result AdjustmentResult
		alerts []models.Product
	)
	err = s.store.RunInTx(ctx, func(tx *store.Tx) error {
		product, err := tx.GetProductByID(ctx, req.ProductID)
		if err != nil {
			return err
		}

		stock, err := tx.AdjustStock(ctx, req.ProductID, req.Quantity)
		if err != nil {
			return err
		}

		entry := &models.InventoryTransaction{
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			Type:      req.Type,
			Reference: req.Reference,
			Notes:     req.Notes,
			CreatedBy: req.ActingUser,
		}
		if err := tx.AppendInventoryTransaction(ctx, entry); err != nil {
			return err
		}

		if crossedLowStock(product, product.Stock, stock) {
			product.Stock = stock
			alerts = append(alerts, *product)
		}
		result = AdjustmentResult{Entry: entry, Stock: stock}
		return nil
	})
	if err != nil {
		if isStockFailure(err) {
			util.StockReservationsFailed.WithLabelValues(failureReason(err)).Inc()
		}
		return nil, err
	}

	util.StockAdjustmentsTotal.WithLabelValues(string(req.Type)).Inc()
	s.logger.Info("Stock adjusted",
		zap.Int64("product_id", req.ProductID),
		zap.Int("quantity", req.Quantity),
		zap.String("type", string(req.Type)),
		zap.Int("stock", result.Stock))

	s.raiseLowStock(ctx, alerts)
	return &result, nil
}

// History returns the product's inventory log, oldest first
func (s *InventoryService) History(ctx context.Context, productID int64, since *time.Time) (iter.Seq2[models.InventoryTransaction, error], error) {
	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.History(ctx, productID, since), nil
}

// Reconciliation compares a product's stock with the sum of its inventory log.
// A non-zero Drift means stock changed without an explaining entry.
type Reconciliation struct {
	ProductID int64 `json:"product_id"`
	Stock     int   `json:"stock"`
	LedgerSum int   `json:"ledger_sum"`
	Drift     int   `json:"drift"`
}

// Reconcile reads stock and the log sum from one consistent snapshot
func (s *InventoryService) Reconcile(ctx context.Context, productID int64) (*Reconciliation, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Reconcile",
		attribute.Int64("product_id", productID))
	defer span.End()

	var rec Reconciliation
	err := s.store.ReadSnapshot(ctx, func(tx *store.Tx) error {
		product, err := tx.GetProductByID(ctx, productID)
		if err != nil {
			return err
		}
		sum, err := tx.SumInventory(ctx, productID)
		if err != nil {
			return err
		}
		rec = Reconciliation{
			ProductID: productID,
			Stock:     product.Stock,
			LedgerSum: sum,
			Drift:     product.Stock - sum,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if rec.Drift != 0 {
		s.logger.Warn("Inventory drift detected",
			zap.Int64("product_id", productID),
			zap.Int("stock", rec.Stock),
			zap.Int("ledger_sum", rec.LedgerSum))
	}
	return &rec, nil
}

// CreateCustomerRequest represents a request to create a customer
type CreateCustomerRequest struct {
	Name  string  `json:"name"`
	Phone *string `json:"phone,omitempty"`
	Email *string `json:"email,omitempty"`
}

// CreateCustomer inserts a customer that orders can reference
func (s *InventoryService) CreateCustomer(ctx context.Context, req *CreateCustomerRequest) (*models.Customer, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, models.NewValidationError("name", "is required")
	}

	customer := &models.Customer{Name: strings.TrimSpace(req.Name), Phone: req.Phone, Email: req.Email}
	err := s.store.RunInTx(ctx, func(tx *store.Tx) error {
		return tx.InsertCustomer(ctx, customer)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return customer, nil
}

// reserveItems takes stock for each item and logs a sale entry per item.
// Items are reserved in ascending product order, so concurrent orders lock
// product rows in the same order. It returns products that crossed their
// low-stock threshold.
func (s *InventoryService) reserveItems(ctx context.Context, tx *store.Tx, order *models.Order, items []models.OrderItem, products map[int64]*models.Product, actingUser int64) ([]models.Product, error) {
	start := time.Now()
	defer func() {
		util.StockReserveLatency.Observe(time.Since(start).Seconds())
	}()

	sorted := make([]models.OrderItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return *sorted[i].ProductID < *sorted[j].ProductID
	})

	var alerts []models.Product
	reference := orderReference(order)
	for _, item := range sorted {
		productID := *item.ProductID
		remaining, err := tx.ReserveStock(ctx, productID, item.Quantity)
		if err != nil {
			util.StockReservationsFailed.WithLabelValues(failureReason(err)).Inc()
			return nil, err
		}

		if err := tx.AppendInventoryTransaction(ctx, &models.InventoryTransaction{
			ProductID: productID,
			Quantity:  -item.Quantity,
			Type:      models.InventoryTxSale,
			OrderID:   &order.ID,
			Reference: &reference,
			CreatedBy: actingUser,
		}); err != nil {
			return nil, err
		}

		if p, ok := products[productID]; ok {
			if crossedLowStock(p, remaining+item.Quantity, remaining) {
				alert := *p
				alert.Stock = remaining
				alerts = append(alerts, alert)
			}
		}
	}
	return alerts, nil
}

// releaseItems returns the stock of every item that still references a
// product and logs a cancellation reversal for it
func (s *InventoryService) releaseItems(ctx context.Context, tx *store.Tx, order *models.Order, items []models.OrderItem, actingUser int64) error {
	reference := orderReference(order)
	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		if _, err := tx.ReleaseStock(ctx, *item.ProductID, item.Quantity); err != nil {
			return err
		}
		if err := tx.AppendInventoryTransaction(ctx, &models.InventoryTransaction{
			ProductID: *item.ProductID,
			Quantity:  item.Quantity,
			Type:      models.InventoryTxCancellationReversal,
			OrderID:   &order.ID,
			Reference: &reference,
			CreatedBy: actingUser,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *InventoryService) raiseLowStock(ctx context.Context, alerts []models.Product) {
	for _, p := range alerts {
		util.LowStockAlertsTotal.Inc()
		s.logger.Warn("Low stock",
			zap.Int64("product_id", p.ID),
			zap.String("name", p.Name),
			zap.Int("stock", p.Stock),
			zap.Int("threshold", *p.LowStockAlert))
	}
	s.events.stockLow(ctx, alerts)
}

// crossedLowStock reports whether stock moved from above the product's
// threshold to at or below it
func crossedLowStock(p *models.Product, before, after int) bool {
	if p.LowStockAlert == nil {
		return false
	}
	threshold := *p.LowStockAlert
	return before > threshold && after <= threshold
}

func isStockFailure(err error) bool {
	reason := failureReason(err)
	return reason == "insufficient_stock" || reason == "not_found"
}

func orderReference(order *models.Order) string {
	return fmt.Sprintf("order #%d", order.OrderNumber)
}
