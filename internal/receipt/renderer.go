// Package receipt renders completed orders into receipt documents.
package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"pos-service/internal/models"
)

// Document is the receipt payload understood by the thermal printer bridge
type Document struct {
	Title         string  `json:"title"`
	Address       string  `json:"address"`
	Phone         string  `json:"phone"`
	OrderNumber   int64   `json:"orderNumber"`
	Items         []Item  `json:"items"`
	Subtotal      float64 `json:"subtotal"`
	Discount      float64 `json:"discount"`
	Tax           float64 `json:"tax"`
	TaxRate       float64 `json:"taxRate"`
	Total         float64 `json:"total"`
	Currency      string  `json:"currency"`
	PaymentMethod string  `json:"paymentMethod,omitempty"`
	Footer        string  `json:"footer"`
	Date          string  `json:"date"`
	Time          string  `json:"time"`
}

// Item is one receipt line
type Item struct {
	Name     string  `json:"name"`
	Variant  string  `json:"variant,omitempty"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Total    float64 `json:"total"`
}

// Build assembles the receipt document of an order
func Build(settings models.BusinessSettings, order *models.Order, items []models.OrderItem) Document {
	doc := Document{
		Title:       settings.Name,
		Address:     settings.Address,
		Phone:       settings.Phone,
		OrderNumber: order.OrderNumber,
		Items:       make([]Item, 0, len(items)),
		Subtotal:    order.Subtotal.InexactFloat64(),
		Discount:    order.Discount.InexactFloat64(),
		Tax:         order.Tax.InexactFloat64(),
		TaxRate:     order.TaxRate.InexactFloat64(),
		Total:       order.Total.InexactFloat64(),
		Currency:    settings.Currency,
		Footer:      settings.ReceiptFooter,
		Date:        order.CreatedAt.Format("2006-01-02"),
		Time:        order.CreatedAt.Format("15:04"),
	}
	if order.PaymentMethod != nil {
		doc.PaymentMethod = string(*order.PaymentMethod)
	}

	for _, item := range items {
		line := Item{
			Name:     item.ProductName,
			Quantity: item.Quantity,
			Price:    item.UnitPrice.InexactFloat64(),
			Total:    item.Subtotal.InexactFloat64(),
		}
		if item.Variant != nil {
			line.Variant = *item.Variant
		}
		doc.Items = append(doc.Items, line)
	}
	return doc
}

// FileRenderer writes receipts as JSON files into a directory
type FileRenderer struct {
	dir string
}

// NewFileRenderer creates the receipt directory if needed
func NewFileRenderer(dir string) (*FileRenderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create receipt dir: %w", err)
	}
	return &FileRenderer{dir: dir}, nil
}

// Render writes the receipt and returns its path. The file appears
// atomically, so a reader never sees a partial receipt. Rendering the same
// order again replaces the previous file.
func (r *FileRenderer) Render(ctx context.Context, settings models.BusinessSettings, order *models.Order, items []models.OrderItem) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(Build(settings, order, items), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal receipt: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, ".receipt-*")
	if err != nil {
		return "", fmt.Errorf("failed to create receipt file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write receipt: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write receipt: %w", err)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("order-%d.json", order.OrderNumber))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to publish receipt: %w", err)
	}
	return path, nil
}
