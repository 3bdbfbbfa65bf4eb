package api

import (
	"net/http"

	"optical-pos/internal/service"

	"github.com/gin-gonic/gin"
)

type selectCustomerRequest struct {
	CustomerID string `json:"customerId" binding:"required"`
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Barcode   string `json:"barcode"`
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type checkoutRequest struct {
	PaymentMethod string `json:"paymentMethod"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) openSession(c *gin.Context) {
	c.JSON(http.StatusCreated, h.checkout.OpenSession())
}

func (h *Handler) getSession(c *gin.Context) {
	view, err := h.checkout.GetSession(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) closeSession(c *gin.Context) {
	if err := h.checkout.CloseSession(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) selectCustomer(c *gin.Context) {
	var req selectCustomerRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.checkout.SelectCustomer(c.Request.Context(), c.Param("id"), req.CustomerID)
	respondView(c, view, err)
}

func (h *Handler) removeCustomer(c *gin.Context) {
	view, err := h.checkout.RemoveCustomer(c.Param("id"))
	respondView(c, view, err)
}

func (h *Handler) sessionPrescriptions(c *gin.Context) {
	prescriptions, err := h.checkout.SessionPrescriptions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prescriptions)
}

// addItem adds one unit by product id or by scanned barcode
func (h *Handler) addItem(c *gin.Context) {
	var req addItemRequest
	if !bindJSON(c, &req) {
		return
	}

	id := c.Param("id")
	var (
		view *service.SessionView
		err  error
	)
	switch {
	case req.ProductID != "":
		view, err = h.checkout.AddItem(c.Request.Context(), id, req.ProductID)
	case req.Barcode != "":
		view, err = h.checkout.AddItemByBarcode(c.Request.Context(), id, req.Barcode)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Either productId or barcode is required",
			"code":  codeBadRequest,
		})
		return
	}
	respondView(c, view, err)
}

func (h *Handler) updateQuantity(c *gin.Context) {
	var req updateQuantityRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.checkout.UpdateQuantity(c.Request.Context(), c.Param("id"), c.Param("productId"), *req.Quantity)
	respondView(c, view, err)
}

func (h *Handler) removeItem(c *gin.Context) {
	view, err := h.checkout.RemoveItem(c.Param("id"), c.Param("productId"))
	respondView(c, view, err)
}

func (h *Handler) clearCart(c *gin.Context) {
	view, err := h.checkout.ClearCart(c.Param("id"))
	respondView(c, view, err)
}

// checkoutSession holds stock and issues the invoice. An empty body pays
// in cash.
func (h *Handler) checkoutSession(c *gin.Context) {
	var req checkoutRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	inv, err := h.checkout.Checkout(c.Request.Context(), c.Param("id"), req.PaymentMethod)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *Handler) getInvoice(c *gin.Context) {
	inv, err := h.checkout.GetInvoice(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *Handler) completeSale(c *gin.Context) {
	receipt, err := h.checkout.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (h *Handler) cancelSale(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = service.ReasonOperatorCancelled
	}

	details, err := h.checkout.Cancel(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func respondView(c *gin.Context, view *service.SessionView, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
