package controllers

import (
	"net/http"

	"github.com/Otuja/bookshop/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type BookController struct {
	catalogService *services.CatalogService
}

func NewBookController(catalogService *services.CatalogService) *BookController {
	return &BookController{catalogService: catalogService}
}

// GetBookInternal handles GET /books/internal/:id, the catalog lookup
// contract checkout prices against: id, current price, available stock.
func (bc *BookController) GetBookInternal(c *gin.Context) {
	bookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid book ID format"})
		return
	}

	book, appErr := bc.catalogService.GetBook(c.Request.Context(), bookID)
	if appErr != nil {
		c.JSON(appErr.Code, gin.H{"error": appErr.Message})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":    book.ID,
		"price": book.Price,
		"stock": book.StockQuantity,
	})
}

// SetStock handles PUT /books/:id/stock (admin upsert)
func (bc *BookController) SetStock(c *gin.Context) {
	bookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid book ID format"})
		return
	}

	var req services.SetStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	book, appErr := bc.catalogService.SetStock(c.Request.Context(), bookID, &req)
	if appErr != nil {
		c.JSON(appErr.Code, gin.H{"error": appErr.Message})
		return
	}

	c.JSON(http.StatusOK, gin.H{"book": book})
}
