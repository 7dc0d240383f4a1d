package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// historyPageSize is how many log rows History fetches per round trip
const historyPageSize = 100

// AppendInventoryTransaction writes one entry of the inventory log. It only
// exists on Tx: an entry is always written with the stock change it explains.
func (t *Tx) AppendInventoryTransaction(ctx context.Context, entry *models.InventoryTransaction) error {
	entry.CreatedAt = now()
	query := `
		INSERT INTO inventory_transactions (product_id, quantity, type, order_id, reference, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := sqlx.GetContext(ctx, t.db, &entry.ID, query,
		entry.ProductID, entry.Quantity, entry.Type, entry.OrderID, entry.Reference, entry.Notes,
		entry.CreatedBy, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append inventory transaction: %w", err)
	}
	return nil
}

// AdjustStock applies a signed delta. Decrements use the same conditional
// update as reservations, so stock never goes negative.
func (t *Tx) AdjustStock(ctx context.Context, productID int64, delta int) (int, error) {
	if delta < 0 {
		return t.ReserveStock(ctx, productID, -delta)
	}
	return t.ReleaseStock(ctx, productID, delta)
}

// inventoryPage returns up to limit log rows for a product with id > afterID
func (q queries) inventoryPage(ctx context.Context, productID, afterID int64, since *time.Time, limit int) ([]models.InventoryTransaction, error) {
	query := `
		SELECT id, product_id, quantity, type, order_id, reference, notes, created_by, created_at
		FROM inventory_transactions
		WHERE product_id = $1 AND id > $2`
	args := []interface{}{productID, afterID}
	if since != nil {
		args = append(args, since.UTC())
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

	page := []models.InventoryTransaction{}
	if err := sqlx.SelectContext(ctx, q.db, &page, query, args...); err != nil {
		return nil, fmt.Errorf("failed to read inventory history: %w", err)
	}
	return page, nil
}

// History returns a product's inventory log in chronological order. Rows are
// fetched lazily in pages as the sequence is ranged over, and every range
// starts again from the first entry. Iteration stops at the first error.
func (s *Store) History(ctx context.Context, productID int64, since *time.Time) iter.Seq2[models.InventoryTransaction, error] {
	return func(yield func(models.InventoryTransaction, error) bool) {
		var afterID int64
		for {
			page, err := s.inventoryPage(ctx, productID, afterID, since, historyPageSize)
			if err != nil {
				yield(models.InventoryTransaction{}, err)
				return
			}
			for _, entry := range page {
				if !yield(entry, nil) {
					return
				}
				afterID = entry.ID
			}
			if len(page) < historyPageSize {
				return
			}
		}
	}
}

// SumInventory returns the running sum of a product's inventory log
func (q queries) SumInventory(ctx context.Context, productID int64) (int, error) {
	var sum sql.NullInt64
	err := sqlx.GetContext(ctx, q.db, &sum,
		"SELECT SUM(quantity) FROM inventory_transactions WHERE product_id = $1", productID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to sum inventory transactions: %w", err)
	}
	return int(sum.Int64), nil
}
