package service

import (
	"context"
	"sync"
	"testing"

	"pos-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var (
	spanRecorder    = tracetest.NewSpanRecorder()
	installRecorder  sync.Once
)

func recordSpans() *tracetest.SpanRecorder {
	installRecorder.Do(func() {
		otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder)))
	})
	return spanRecorder
}

// lastSpan returns the most recently ended span with the given name
func lastSpan(t *testing.T, rec *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	ended := rec.Ended()
	for i := len(ended) - 1; i >= 0; i-- {
		if ended[i].Name() == name {
			return ended[i]
		}
	}
	require.FailNow(t, "span not ended", name)
	return nil
}

func TestFailedWritesMarkTheirSpans(t *testing.T) {
	rec := recordSpans()
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		span string
		call func() error
	}{
		{"OrderService.UpdateStatus", func() error {
			_, err := f.orders.UpdateStatus(ctx, 9999, models.OrderStatusCompleted, cashier)
			return err
		}},
		{"PaymentService.RecordPayment", func() error {
			_, err := f.payments.RecordPayment(ctx, &RecordPaymentRequest{
				OrderID: 9999, Amount: dec("5"), Method: models.PaymentMethodCash,
			})
			return err
		}},
		{"InventoryService.AdjustStock", func() error {
			_, err := f.inventory.AdjustStock(ctx, &AdjustStockRequest{ProductID: 9999, Quantity: 3})
			return err
		}},
	}

	for _, tc := range cases {
		t.Run(tc.span, func(t *testing.T) {
			err := tc.call()
			require.ErrorIs(t, err, models.ErrNotFound)

			span := lastSpan(t, rec, tc.span)
			assert.Equal(t, codes.Error, span.Status().Code)
			assert.Equal(t, err.Error(), span.Status().Description)
			require.NotEmpty(t, span.Events())
			assert.Equal(t, "exception", span.Events()[0].Name)
		})
	}

	t.Run("success leaves the status unset", func(t *testing.T) {
		p := f.product(t, "Tea", "2.00", 1)
		_, err := f.inventory.AdjustStock(ctx, &AdjustStockRequest{ProductID: p.ID, Quantity: 2})
		require.NoError(t, err)

		span := lastSpan(t, rec, "InventoryService.AdjustStock")
		assert.Equal(t, codes.Unset, span.Status().Code)
	})
}
