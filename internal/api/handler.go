package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/service"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck is a named dependency probe used by /ready
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orders    *service.OrderService
	payments  *service.PaymentService
	inventory *service.InventoryService
	jwtSecret []byte
	checks    []ReadinessCheck
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orders *service.OrderService,
	payments *service.PaymentService,
	inventory *service.InventoryService,
	jwtSecret []byte,
	checks ...ReadinessCheck,
) *Handler {
	return &Handler{
		orders:    orders,
		payments:  payments,
		inventory: inventory,
		jwtSecret: jwtSecret,
		checks:    checks,
		logger:    util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	manage := requireRole(RoleAdmin, RoleManager)

	v1 := router.Group("/api/v1", authMiddleware(h.jwtSecret))
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/items", h.addItems)
		v1.PATCH("/orders/:id/status", h.updateStatus)
		v1.POST("/orders/:id/cancel", manage, h.cancelOrder)
		v1.POST("/orders/:id/payments", h.recordPayment)
		v1.GET("/orders/:id/payments", h.listPayments)
		v1.POST("/orders/:id/receipt", h.generateReceipt)

		v1.POST("/products", manage, h.createProduct)
		v1.GET("/products/:id/history", h.productHistory)
		v1.POST("/products/:id/adjustments", manage, h.adjustStock)
		v1.GET("/products/:id/reconciliation", h.reconcile)

		v1.POST("/customers", h.createCustomer)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			failed[check.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	req.CreatedBy = actorFrom(c).UserID
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// listOrders handles order search
func (h *Handler) listOrders(c *gin.Context) {
	filter, err := parseOrderFilter(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	page, err := h.orders.ListOrders(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	detail, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type addItemsRequest struct {
	Items []service.OrderItemRequest `json:"items"`
}

// addItems handles appending lines to a pending order
func (h *Handler) addItems(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	var req addItemsRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.orders.AddItems(c.Request.Context(), orderID, req.Items, actorFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type updateStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

// updateStatus handles order status transitions
func (h *Handler) updateStatus(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	var req updateStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	actor := actorFrom(c)
	if req.Status == models.OrderStatusCancelled && actor.Role != RoleAdmin && actor.Role != RoleManager {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), orderID, req.Status, actor.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// cancelOrder handles order cancellation
func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), orderID, actorFrom(c).UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// recordPayment handles payments against an order
func (h *Handler) recordPayment(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}
	var req service.RecordPaymentRequest
	if !bindJSON(c, &req) {
		return
	}
	req.OrderID = orderID
	req.RecordedBy = actorFrom(c).UserID

	resp, err := h.payments.RecordPayment(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// listPayments handles the payments of an order with their summary
func (h *Handler) listPayments(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	payments, err := h.payments.ListPayments(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	summary, err := h.payments.PaymentSummary(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"payments": payments,
		"summary":  summary,
	})
}

// generateReceipt handles a receipt (re)render
func (h *Handler) generateReceipt(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	url, err := h.orders.GenerateReceipt(c.Request.Context(), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt_url": url})
}

// createProduct handles product creation with opening stock
func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if !bindJSON(c, &req) {
		return
	}
	req.CreatedBy = actorFrom(c).UserID

	product, err := h.inventory.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// productHistory handles the inventory log of a product
func (h *Handler) productHistory(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	since, err := parseTime(c.Query("since"), "since")
	if err != nil {
		h.respondError(c, err)
		return
	}

	seq, err := h.inventory.History(c.Request.Context(), productID, since)
	if err != nil {
		h.respondError(c, err)
		return
	}

	entries := []models.InventoryTransaction{}
	for entry, err := range seq {
		if err != nil {
			h.respondError(c, err)
			return
		}
		entries = append(entries, entry)
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// adjustStock handles manual stock corrections and restocks
func (h *Handler) adjustStock(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}
	var req service.AdjustStockRequest
	if !bindJSON(c, &req) {
		return
	}
	req.ProductID = productID
	req.ActingUser = actorFrom(c).UserID

	resp, err := h.inventory.AdjustStock(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// reconcile handles the stock versus inventory log check
func (h *Handler) reconcile(c *gin.Context) {
	productID, ok := pathID(c)
	if !ok {
		return
	}

	rec, err := h.inventory.Reconcile(c.Request.Context(), productID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// createCustomer handles customer creation
func (h *Handler) createCustomer(c *gin.Context) {
	var req service.CreateCustomerRequest
	if !bindJSON(c, &req) {
		return
	}

	customer, err := h.inventory.CreateCustomer(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

// respondError maps domain errors to HTTP statuses
func (h *Handler) respondError(c *gin.Context, err error) {
	var (
		stockErr      *models.InsufficientStockError
		validationErr *models.ValidationError
	)
	switch {
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":      "insufficient stock",
			"details":    err.Error(),
			"product_id": stockErr.ProductID,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request",
			"field":   validationErr.Field,
			"details": err.Error(),
		})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "details": err.Error()})
	case errors.Is(err, models.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid order state", "details": err.Error()})
	case errors.Is(err, models.ErrDuplicateRequest):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate request", "details": err.Error()})
	default:
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return id, true
}

func parseTime(raw, field string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, models.NewValidationError(field, "must be an RFC3339 timestamp")
	}
	return &t, nil
}

func parseInt(raw, field string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, models.NewValidationError(field, "must be an integer")
	}
	return &n, nil
}

func parseOrderFilter(c *gin.Context) (store.OrderFilter, error) {
	filter := store.OrderFilter{
		Status:        models.OrderStatus(c.Query("status")),
		PaymentStatus: models.PaymentStatus(c.Query("payment_status")),
		SortBy:        c.Query("sort_by"),
		Desc:          !strings.EqualFold(c.DefaultQuery("order", "desc"), "asc"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, models.NewValidationError("status", "unknown order status")
	}

	var err error
	if filter.CustomerID, err = parseInt(c.Query("customer_id"), "customer_id"); err != nil {
		return filter, err
	}
	if filter.OrderNumber, err = parseInt(c.Query("order_number"), "order_number"); err != nil {
		return filter, err
	}
	if filter.From, err = parseTime(c.Query("from"), "from"); err != nil {
		return filter, err
	}
	if filter.To, err = parseTime(c.Query("to"), "to"); err != nil {
		return filter, err
	}

	for field, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		n, err := parseInt(c.Query(field), field)
		if err != nil {
			return filter, err
		}
		if n != nil {
			*dst = int(*n)
		}
	}
	return filter, nil
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
