package controllers

import (
	"net/http"

	"github.com/Otuja/bookshop/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CheckoutController struct {
	Checkout   *services.CheckoutService
	Settlement *services.SettlementService
	Logger     *zap.Logger
}

func NewCheckoutController(checkout *services.CheckoutService, settlement *services.SettlementService, logger *zap.Logger) *CheckoutController {
	return &CheckoutController{
		Checkout:   checkout,
		Settlement: settlement,
		Logger:     logger,
	}
}

// InitiateCheckout handles POST /checkout/initiate
func (cc *CheckoutController) InitiateCheckout(c *gin.Context) {
	var req services.InitiateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	resp, appErr := cc.Checkout.InitiateCheckout(c.Request.Context(), &req)
	if appErr != nil {
		c.JSON(appErr.Code, gin.H{"error": appErr.Message})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// ConfirmPayment handles GET /checkout/confirm?reference=...
// Used by the frontend to resolve the post-payment redirect.
func (cc *CheckoutController) ConfirmPayment(c *gin.Context) {
	reference := c.Query("reference")
	if reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Reference required"})
		return
	}

	result, appErr := cc.Settlement.QueryStatus(c.Request.Context(), reference)
	if appErr != nil {
		c.JSON(appErr.Code, gin.H{"error": appErr.Message})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   result.Status,
		"order_id": result.OrderID,
	})
}
