package routes

import (
	"github.com/Otuja/bookshop/controllers"

	"github.com/gin-gonic/gin"
)

// Register wires all HTTP routes onto the engine
func Register(
	r *gin.Engine,
	checkout *controllers.CheckoutController,
	webhook *controllers.WebhookController,
	orders *controllers.OrderController,
	books *controllers.BookController,
) {
	checkoutRoutes := r.Group("/checkout")
	checkoutRoutes.POST("/initiate", checkout.InitiateCheckout)
	checkoutRoutes.GET("/confirm", checkout.ConfirmPayment)

	r.POST("/payments/webhook/:provider", webhook.PaymentWebhook)

	orderRoutes := r.Group("/orders")
	orderRoutes.GET("", orders.GetOrders)
	orderRoutes.GET("/:id", orders.GetOrderByID)

	bookRoutes := r.Group("/books")
	bookRoutes.GET("/internal/:id", books.GetBookInternal)
	bookRoutes.PUT("/:id/stock", books.SetStock)
}
