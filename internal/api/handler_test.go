package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"optical-pos/internal/cart"
	"optical-pos/internal/models"
	"optical-pos/internal/service"
	"optical-pos/internal/store/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	repo   *memory.Store
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)

	repo := memory.NewSeeded()
	cache := service.NoopStockCache{}
	events := service.NoopPublisher{}

	catalog := service.NewCatalog(repo, cache, events)
	customers := service.NewCustomerDirectory(repo)
	checkout := service.NewCheckoutService(
		catalog,
		customers,
		service.NewStockHolder(repo, cache, catalog),
		service.NewSaleFinalizer(repo, cache, catalog, events),
		service.NewSaleCanceller(repo, cache, catalog, events),
		cart.NewInvoiceGenerator(cart.DefaultTaxRate, nil),
		5*time.Second,
	)

	router := gin.New()
	NewHandler(repo, catalog, customers, service.NewSaleRecords(repo), checkout).SetupRoutes(router)

	return &testServer{repo: repo, router: router}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	decode(t, w, &body)
	return body.Code
}

func (s *testServer) openSession(t *testing.T) string {
	w := s.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var view service.SessionView
	decode(t, w, &view)
	return view.ID
}

func (s *testServer) stock(t *testing.T, id string) (int, int) {
	p, err := s.repo.GetProductByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock, p.Reserved
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ready", nil).Code)

	s.repo.FailOn("Ping", errors.New("connection refused"))
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/ready", nil).Code)
}

func TestProducts(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var products []models.Product
	decode(t, w, &products)
	assert.NotEmpty(t, products)

	w = s.do(t, http.MethodGet, "/api/v1/products/barcode/8901000000042", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p models.Product
	decode(t, w, &p)
	assert.Equal(t, "LN-001", p.ID)

	w = s.do(t, http.MethodGet, "/api/v1/products/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeProductNotFound, errorCode(t, w))

	w = s.do(t, http.MethodGet, "/api/v1/products/FR-001/availability", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var a service.Availability
	decode(t, w, &a)
	assert.Equal(t, 8, a.Available)
	assert.Equal(t, "store", a.Source)
}

func TestUpdateStock(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPatch, "/api/v1/products/FR-002/stock", gin.H{"stockQuantity": 0})
	require.Equal(t, http.StatusOK, w.Code)
	available, _ := s.stock(t, "FR-002")
	assert.Equal(t, 0, available)

	w = s.do(t, http.MethodPut, "/api/v1/products/FR-002/stock", gin.H{"stockQuantity": -4})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, codeInvalidStock, errorCode(t, w))

	w = s.do(t, http.MethodPatch, "/api/v1/products/FR-002/stock", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckoutFlow_Complete(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession(t)
	base := "/api/v1/sessions/" + id

	w := s.do(t, http.MethodPost, base+"/items", gin.H{"productId": "FR-001"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, codeNoCustomerSelected, errorCode(t, w))

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, base+"/customer", gin.H{"customerId": "CUST-001"}).Code)

	w = s.do(t, http.MethodGet, base+"/prescriptions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var prescriptions []models.Prescription
	decode(t, w, &prescriptions)
	assert.Len(t, prescriptions, 1)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/items", gin.H{"productId": "FR-001"}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/items", gin.H{"barcode": "8901000000042"}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPatch, base+"/items/LN-001", gin.H{"quantity": 2}).Code)

	w = s.do(t, http.MethodPost, base+"/items", gin.H{"productId": "AC-002"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, codeStockLimitExceeded, errorCode(t, w))

	w = s.do(t, http.MethodPost, base+"/checkout", gin.H{"paymentMethod": "card"})
	require.Equal(t, http.StatusOK, w.Code)
	var inv cart.Invoice
	decode(t, w, &inv)
	assert.NotEmpty(t, inv.InvoiceNumber)
	assert.Equal(t, "card", inv.PaymentMethod)
	assert.Len(t, inv.Items, 2)

	available, reserved := s.stock(t, "LN-001")
	assert.Equal(t, 38, available)
	assert.Equal(t, 2, reserved)

	w = s.do(t, http.MethodPost, base+"/items", gin.H{"productId": "FR-001"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, codeInvalidTransition, errorCode(t, w))

	w = s.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, base+"/invoice", nil).Code)

	w = s.do(t, http.MethodPost, base+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var receipt models.SaleReceipt
	decode(t, w, &receipt)
	assert.Equal(t, inv.InvoiceNumber, receipt.InvoiceNumber)
	assert.Len(t, receipt.Sales, 2)

	available, reserved = s.stock(t, "LN-001")
	assert.Equal(t, 38, available)
	assert.Equal(t, 0, reserved)

	w = s.do(t, http.MethodGet, "/api/v1/sales?invoice="+inv.InvoiceNumber, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sales []models.Sale
	decode(t, w, &sales)
	assert.Len(t, sales, 2)

	w = s.do(t, http.MethodPost, base+"/complete", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, base, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, base, nil).Code)
}

func TestCheckoutFlow_Cancel(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession(t)
	base := "/api/v1/sessions/" + id

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, base+"/customer", gin.H{"customerId": "CUST-002"}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/items", gin.H{"productId": "FR-003"}).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/checkout", nil).Code)

	available, _ := s.stock(t, "FR-003")
	assert.Equal(t, 2, available)

	w := s.do(t, http.MethodPost, base+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var details models.CancellationDetails
	decode(t, w, &details)
	assert.Equal(t, service.ReasonOperatorCancelled, details.Reason)

	available, reserved := s.stock(t, "FR-003")
	assert.Equal(t, 3, available)
	assert.Equal(t, 0, reserved)
}

func TestCheckoutRejections(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession(t)
	base := "/api/v1/sessions/" + id

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, base+"/customer", gin.H{"customerId": "CUST-003"}).Code)

	w := s.do(t, http.MethodPost, base+"/checkout", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, codeEmptyCartCheckout, errorCode(t, w))

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, base+"/items", gin.H{"productId": "AC-001"}).Code)

	w = s.do(t, http.MethodPost, base+"/checkout", gin.H{"paymentMethod": "bitcoin"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, codeInvalidPaymentMethod, errorCode(t, w))

	w = s.do(t, http.MethodPut, base+"/customer", gin.H{"customerId": "CUST-404"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeCustomerNotFound, errorCode(t, w))

	w = s.do(t, http.MethodPost, base+"/items", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeSessionNotFound, errorCode(t, w))

	s.repo.FailOn("HoldStock", errors.New("connection reset"))
	w = s.do(t, http.MethodPost, base+"/checkout", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, codePersistenceFailure, errorCode(t, w))

	var view service.SessionView
	decode(t, s.do(t, http.MethodGet, base, nil), &view)
	assert.Equal(t, cart.StateBuilding, view.State)
}

func TestSales(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/sales", gin.H{
		"productId":  "CL-001",
		"quantity":   2,
		"unitPrice":  "38.99",
		"customerId": "CUST-001",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var sale models.Sale
	decode(t, w, &sale)
	assert.Equal(t, "77.98", sale.TotalAmount.StringFixed(2))

	w = s.do(t, http.MethodPost, "/api/v1/sales", gin.H{"productId": "CL-001"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/sales?customer=CUST-001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sales []models.Sale
	decode(t, w, &sales)
	assert.Len(t, sales, 1)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/sales?limit=many", nil).Code)
}

func TestClassify(t *testing.T) {
	status, code := classify(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, codePersistenceFailure, code)

	status, code = classify(cart.ErrItemNotInCart)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, codeItemNotInCart, code)
}
