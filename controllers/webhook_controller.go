package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/Otuja/bookshop/models"
	"github.com/Otuja/bookshop/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type WebhookController struct {
	Settlement *services.SettlementService
	Logger     *zap.Logger
}

func NewWebhookController(settlement *services.SettlementService, logger *zap.Logger) *WebhookController {
	return &WebhookController{Settlement: settlement, Logger: logger}
}

// webhookBody is the normalized slice of the provider payload. Everything
// else in the body is opaque and stored verbatim for audit.
type webhookBody struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// PaymentWebhook handles POST /payments/webhook/:provider. A known reference
// is always acknowledged with 200, duplicates included, so the provider
// stops retrying; only an unrecognized reference is a 404.
func (wc *WebhookController) PaymentWebhook(c *gin.Context) {
	provider := c.Param("provider")

	rawPayload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	var body webhookBody
	if err := json.Unmarshal(rawPayload, &body); err != nil || body.Reference == "" {
		wc.Logger.Warn("Malformed webhook payload", zap.String("provider", provider), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference is required"})
		return
	}

	succeeded := body.Status == models.TransactionStatusSuccessful

	result, appErr := wc.Settlement.ApplyNotification(c.Request.Context(), body.Reference, succeeded, rawPayload)
	if appErr != nil {
		c.JSON(appErr.Code, gin.H{"error": appErr.Message})
		return
	}

	wc.Logger.Info("Webhook processed",
		zap.String("provider", provider),
		zap.String("reference", body.Reference),
		zap.String("status", result.Status),
		zap.Bool("duplicate", result.AlreadySettled),
	)
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
