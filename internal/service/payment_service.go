package service

import (
	"context"
	"fmt"

	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PaymentService appends payments and keeps an order's payment status in
// step with the sum of its payments
type PaymentService struct {
	store  *store.Store
	events emitter
	logger *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store *store.Store, publisher EventPublisher) *PaymentService {
	logger := util.GetLogger()
	return &PaymentService{
		store:  store,
		events: newEmitter(publisher, logger),
		logger: logger,
	}
}

// RecordPaymentRequest represents a payment against an order
type RecordPaymentRequest struct {
	OrderID    int64                `json:"-"`
	Amount     decimal.Decimal      `json:"amount"`
	Method     models.PaymentMethod `json:"method"`
	Reference  *string              `json:"reference,omitempty"`
	Notes      *string              `json:"notes,omitempty"`
	RecordedBy int64                `json:"-"`
}

func (r *RecordPaymentRequest) validate() error {
	if !r.Amount.IsPositive() {
		return models.ErrInvalidAmount
	}
	if !r.Amount.Equal(r.Amount.Truncate(2)) {
		return models.NewValidationError("amount", "must have at most 2 decimal places")
	}
	if !r.Method.Valid() {
		return models.NewValidationError("method", fmt.Sprintf("unknown payment method %q", r.Method))
	}
	return nil
}

// PaymentSummary is derived from the payment rows, never from the cached status
type PaymentSummary struct {
	TotalPaid decimal.Decimal      `json:"total_paid"`
	Total     decimal.Decimal      `json:"total"`
	Balance   decimal.Decimal      `json:"balance"`
	Status    models.PaymentStatus `json:"status"`
}

func newPaymentSummary(paid, total decimal.Decimal) PaymentSummary {
	balance := total.Sub(paid)
	if balance.IsNegative() {
		balance = decimal.Zero
	}
	return PaymentSummary{
		TotalPaid: paid,
		Total:     total,
		Balance:   balance,
		Status:    models.DerivePaymentStatus(paid, total),
	}
}

// PaymentResult describes a recorded payment. Overpaid is a warning for the
// caller: the payment is stored as given.
type PaymentResult struct {
	Payment        *models.Payment `json:"payment"`
	Summary        PaymentSummary  `json:"summary"`
	Overpaid       bool            `json:"overpaid"`
	Overpayment    decimal.Decimal `json:"overpayment"`
	OrderCompleted bool            `json:"order_completed"`
}

// RecordPayment appends a payment. Paying a pending order in full completes it.
func (s *PaymentService) RecordPayment(ctx context.Context, req *RecordPaymentRequest) (result *PaymentResult, err error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.RecordPayment",
		attribute.Int64("order_id", req.OrderID))
	defer func() { util.EndSpan(span, err) }()

	if err := req.validate(); err != nil {
		return nil, err
	}

	var order *models.Order
	err = s.store.RunInTx(ctx, func(tx *store.Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		result, err = s.record(ctx, tx, order, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterRecord(ctx, order, result)
	return result, nil
}

// record appends a payment inside the caller's unit of work. order must be
// locked by that unit of work; it is updated in place.
func (s *PaymentService) record(ctx context.Context, tx *store.Tx, order *models.Order, req *RecordPaymentRequest) (*PaymentResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, &models.InvalidStateError{OrderID: order.ID, Status: order.Status, Operation: "record payment for"}
	}

	payment := &models.Payment{
		OrderID:    order.ID,
		Amount:     req.Amount,
		Method:     req.Method,
		Reference:  req.Reference,
		Notes:      req.Notes,
		RecordedBy: req.RecordedBy,
	}
	if err := tx.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	paid, err := tx.SumPayments(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	summary := newPaymentSummary(paid, order.Total)
	order.PaymentStatus = summary.Status
	if order.PaymentMethod == nil {
		method := req.Method
		order.PaymentMethod = &method
	}
	if err := tx.UpdatePaymentState(ctx, order); err != nil {
		return nil, err
	}

	result := &PaymentResult{Payment: payment, Summary: summary, Overpayment: decimal.Zero}
	if summary.Status == models.PaymentStatusPaid && order.Status == models.OrderStatusPending {
		if err := tx.UpdateOrderStatus(ctx, order, models.OrderStatusCompleted); err != nil {
			return nil, err
		}
		result.OrderCompleted = true
	}
	if paid.GreaterThan(order.Total) {
		result.Overpaid = true
		result.Overpayment = paid.Sub(order.Total)
	}
	return result, nil
}

// afterRecord runs the post-commit side effects of a recorded payment
func (s *PaymentService) afterRecord(ctx context.Context, order *models.Order, result *PaymentResult) {
	util.PaymentsRecordedTotal.WithLabelValues(string(result.Payment.Method)).Inc()
	s.logger.Info("Payment recorded",
		zap.Int64("order_id", order.ID),
		zap.Int64("payment_id", result.Payment.ID),
		zap.String("amount", result.Payment.Amount.StringFixed(2)),
		zap.String("payment_status", string(result.Summary.Status)))

	if result.Overpaid {
		util.OverpaymentsTotal.Inc()
		s.logger.Warn("Order overpaid",
			zap.Int64("order_id", order.ID),
			zap.String("overpayment", result.Overpayment.StringFixed(2)))
	}

	s.events.paymentRecorded(ctx, result)
	if result.OrderCompleted {
		util.OrdersCompletedTotal.Inc()
		s.events.orderCompleted(ctx, order)
	}
}

// PaymentSummary sums an order's payments
func (s *PaymentService) PaymentSummary(ctx context.Context, orderID int64) (*PaymentSummary, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	paid, err := s.store.SumPayments(ctx, orderID)
	if err != nil {
		return nil, err
	}
	summary := newPaymentSummary(paid, order.Total)
	return &summary, nil
}

// ListPayments returns an order's payments, oldest first
func (s *PaymentService) ListPayments(ctx context.Context, orderID int64) ([]models.Payment, error) {
	if _, err := s.store.GetOrderByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.GetPaymentsByOrderID(ctx, orderID)
}
