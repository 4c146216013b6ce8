package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/payment-gateway/services/payment/internal/service"
)

// MessageCreditCardHealth — ответ health endpoint проверки карт.
const MessageCreditCardHealth = "Credit Card validation service is up and running!"

// CreditCardHandler — проверка карт без проведения платежа.
type CreditCardHandler struct {
	cards *service.CardService
}

// NewCreditCardHandler создает обработчик.
func NewCreditCardHandler(cards *service.CardService) *CreditCardHandler {
	return &CreditCardHandler{cards: cards}
}

// CreditCardValidationRequest — тело POST /api/v1/credit-cards/validate.
// Поля не обязательны: пустое поле дает результат Invalid, а не 400.
type CreditCardValidationRequest struct {
	CardNumber     string `json:"cardNumber"`
	ExpiryMonth    string `json:"expiryMonth"`
	ExpiryYear     string `json:"expiryYear"`
	CVV            string `json:"cvv"`
	CardHolderName string `json:"cardHolderName"`
}

// Validate — POST /api/v1/credit-cards/validate. Всегда 200 с результатом проверки.
func (h *CreditCardHandler) Validate(c *gin.Context) {
	var req CreditCardValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindError(c, err)
		return
	}

	result := h.cards.ValidateCardInput(req.CardNumber, req.ExpiryMonth, req.ExpiryYear, req.CVV, req.CardHolderName)
	c.JSON(http.StatusOK, result)
}

// CardType — GET /api/v1/credit-cards/card-type/:cardNumber.
func (h *CreditCardHandler) CardType(c *gin.Context) {
	c.String(http.StatusOK, h.cards.DetermineCardType(c.Param("cardNumber")))
}

// Health — GET /api/v1/credit-cards/health.
func (h *CreditCardHandler) Health(c *gin.Context) {
	c.String(http.StatusOK, MessageCreditCardHealth)
}
