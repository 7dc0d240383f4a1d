package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const productColumns = "id, name, price, stock, low_stock_alert, variants, created_at, updated_at"

// GetProductByID retrieves a product by ID
func (q queries) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := sqlx.GetContext(ctx, q.db, &product,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "product", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductsByIDs retrieves multiple products by IDs, keyed by ID
func (q queries) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Product, error) {
	if len(ids) == 0 {
		return map[int64]*models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = q.db.Rebind(query)

	var products []models.Product
	if err := sqlx.SelectContext(ctx, q.db, &products, query, args...); err != nil {
		return nil, err
	}

	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return byID, nil
}

// InsertProduct creates a product row with zero stock. Opening stock is
// added afterwards through AdjustStock so the inventory log explains it.
func (t *Tx) InsertProduct(ctx context.Context, p *models.Product) error {
	ts := now()
	err := sqlx.GetContext(ctx, t.db, p, `
		INSERT INTO products (name, price, stock, low_stock_alert, variants, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $4, $5, $5)
		RETURNING `+productColumns,
		p.Name, p.Price.Round(2), p.LowStockAlert, p.Variants, ts)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

// ReserveStock decrements stock in one conditional statement, so two
// concurrent reservations can never both take the last unit. It returns
// the stock left after the reservation.
func (t *Tx) ReserveStock(ctx context.Context, productID int64, quantity int) (int, error) {
	var remaining int
	err := sqlx.GetContext(ctx, t.db, &remaining, `
		UPDATE products SET stock = stock - $1, updated_at = $3
		WHERE id = $2 AND stock >= $1
		RETURNING stock`,
		quantity, productID, now())
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to reserve stock: %w", err)
	}

	var available int
	err = sqlx.GetContext(ctx, t.db, &available, "SELECT stock FROM products WHERE id = $1", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &models.NotFoundError{Entity: "product", ID: productID}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read stock: %w", err)
	}
	return 0, &models.InsufficientStockError{ProductID: productID, Requested: quantity, Available: available}
}

// ReleaseStock increments stock unconditionally and returns the new stock.
func (t *Tx) ReleaseStock(ctx context.Context, productID int64, quantity int) (int, error) {
	var stock int
	err := sqlx.GetContext(ctx, t.db, &stock, `
		UPDATE products SET stock = stock + $1, updated_at = $3
		WHERE id = $2
		RETURNING stock`,
		quantity, productID, now())
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &models.NotFoundError{Entity: "product", ID: productID}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to release stock: %w", err)
	}
	return stock, nil
}

// GetCustomerByID retrieves a customer by ID
func (q queries) GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	var customer models.Customer
	err := sqlx.GetContext(ctx, q.db, &customer,
		"SELECT id, name, phone, email, created_at FROM customers WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "customer", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// InsertCustomer creates a customer
func (t *Tx) InsertCustomer(ctx context.Context, c *models.Customer) error {
	c.CreatedAt = now()
	err := sqlx.GetContext(ctx, t.db, &c.ID, `
		INSERT INTO customers (name, phone, email, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		c.Name, c.Phone, c.Email, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	return nil
}
