package api

import (
	"net/http"
	"strconv"
	"time"

	"optical-pos/internal/service"
	"optical-pos/internal/store"
	"optical-pos/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	repo      store.Repository
	catalog   *service.Catalog
	customers *service.CustomerDirectory
	sales     *service.SaleRecords
	checkout  *service.CheckoutService
}

// NewHandler creates a new HTTP handler
func NewHandler(
	repo store.Repository,
	catalog *service.Catalog,
	customers *service.CustomerDirectory,
	sales *service.SaleRecords,
	checkout *service.CheckoutService,
) *Handler {
	return &Handler{
		repo:      repo,
		catalog:   catalog,
		customers: customers,
		sales:     sales,
		checkout:  checkout,
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

	v1 := router.Group("/api/v1")
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/barcode/:barcode", h.getProductByBarcode)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/products/:id/availability", h.getAvailability)
		v1.PATCH("/products/:id/stock", h.updateStock)
		v1.PUT("/products/:id/stock", h.updateStock)

		v1.POST("/sales", h.createSale)
		v1.GET("/sales", h.listSales)

		v1.GET("/customers", h.listCustomers)
		v1.GET("/customers/:id/prescriptions", h.listPrescriptions)

		sessions := v1.Group("/sessions")
		sessions.POST("", h.openSession)
		sessions.GET("/:id", h.getSession)
		sessions.DELETE("/:id", h.closeSession)
		sessions.PUT("/:id/customer", h.selectCustomer)
		sessions.DELETE("/:id/customer", h.removeCustomer)
		sessions.GET("/:id/prescriptions", h.sessionPrescriptions)
		sessions.POST("/:id/items", h.addItem)
		sessions.DELETE("/:id/items", h.clearCart)
		sessions.PATCH("/:id/items/:productId", h.updateQuantity)
		sessions.DELETE("/:id/items/:productId", h.removeItem)
		sessions.POST("/:id/checkout", h.checkoutSession)
		sessions.GET("/:id/invoice", h.getInvoice)
		sessions.POST("/:id/complete", h.completeSale)
		sessions.POST("/:id/cancel", h.cancelSale)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once the repository answers
func (h *Handler) readinessCheck(c *gin.Context) {
	if err := h.repo.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	p, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) getProductByBarcode(c *gin.Context) {
	p, err := h.catalog.FindByBarcode(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) getAvailability(c *gin.Context) {
	a, err := h.catalog.Availability(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

type updateStockRequest struct {
	StockQuantity *int `json:"stockQuantity" binding:"required"`
}

// updateStock handles absolute stock adjustments
func (h *Handler) updateStock(c *gin.Context) {
	var req updateStockRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.catalog.SetStock(c.Request.Context(), c.Param("id"), *req.StockQuantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) createSale(c *gin.Context) {
	var req service.CreateSaleRequest
	if !bindJSON(c, &req) {
		return
	}

	sale, err := h.sales.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func (h *Handler) listSales(c *gin.Context) {
	filter := store.SaleFilter{
		InvoiceNumber: c.Query("invoice"),
		CustomerID:    c.Query("customer"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid limit",
				"code":  codeBadRequest,
			})
			return
		}
		filter.Limit = limit
	}

	sales, err := h.sales.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

func (h *Handler) listCustomers(c *gin.Context) {
	customers, err := h.customers.ListCustomers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customers)
}

func (h *Handler) listPrescriptions(c *gin.Context) {
	prescriptions, err := h.customers.ListPrescriptions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prescriptions)
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
