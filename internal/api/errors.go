package api

import (
	"errors"
	"net/http"

	"optical-pos/internal/cart"
	"optical-pos/internal/service"
	"optical-pos/internal/store"
	"optical-pos/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Codes carried in the "code" field of error bodies
const (
	codeBadRequest           = "BadRequest"
	codeProductNotFound      = "ProductNotFound"
	codeCustomerNotFound     = "CustomerNotFound"
	codeSessionNotFound      = "SessionNotFound"
	codeNoCustomerSelected   = "NoCustomerSelected"
	codeStockLimitExceeded   = "StockLimitExceeded"
	codeEmptyCartCheckout    = "EmptyCartCheckout"
	codeInvalidTransition    = "InvalidTransition"
	codeItemNotInCart        = "ItemNotInCart"
	codeInvalidPaymentMethod = "InvalidPaymentMethod"
	codeInvalidStock         = "InvalidStock"
	codeInvalidSale          = "InvalidSale"
	codePersistenceFailure   = "NetworkOrPersistenceFailure"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// ordered: stock shortfalls surface as StockLimitExceeded before any wrapped
// store error is considered
var errorMappings = []errorMapping{
	{cart.ErrStockLimitExceeded, http.StatusConflict, codeStockLimitExceeded},
	{store.ErrInsufficientStock, http.StatusConflict, codeStockLimitExceeded},
	{cart.ErrInvalidTransition, http.StatusConflict, codeInvalidTransition},
	{service.ErrProductNotFound, http.StatusNotFound, codeProductNotFound},
	{service.ErrCustomerNotFound, http.StatusNotFound, codeCustomerNotFound},
	{service.ErrSessionNotFound, http.StatusNotFound, codeSessionNotFound},
	{cart.ErrItemNotInCart, http.StatusNotFound, codeItemNotInCart},
	{cart.ErrNoCustomerSelected, http.StatusUnprocessableEntity, codeNoCustomerSelected},
	{cart.ErrEmptyCart, http.StatusUnprocessableEntity, codeEmptyCartCheckout},
	{cart.ErrInvalidPaymentMethod, http.StatusUnprocessableEntity, codeInvalidPaymentMethod},
	{service.ErrInvalidStock, http.StatusUnprocessableEntity, codeInvalidStock},
	{service.ErrInvalidSale, http.StatusUnprocessableEntity, codeInvalidSale},
}

func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, codePersistenceFailure
}

func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	if status != http.StatusInternalServerError {
		c.JSON(status, gin.H{
			"error": err.Error(),
			"code":  code,
		})
		return
	}

	util.GetLogger().Error("Request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(status, gin.H{
		"error":   "Failed to process request",
		"code":    code,
		"details": err.Error(),
	})
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    codeBadRequest,
			"details": err.Error(),
		})
		return false
	}
	return true
}
