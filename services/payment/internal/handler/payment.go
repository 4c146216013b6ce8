package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"example.com/payment-gateway/pkg/logger"
	"example.com/payment-gateway/services/payment/internal/domain"
	"example.com/payment-gateway/services/payment/internal/middleware"
	"example.com/payment-gateway/services/payment/internal/repository"
	"example.com/payment-gateway/services/payment/internal/service"
)

// MessagePaymentHealth — ответ health endpoint платежей.
const MessagePaymentHealth = "Payment service is up and running!"

// Типы paymentDetails в теле запроса.
const (
	DetailsTypeCreditCard = "CREDIT_CARD"
	DetailsTypePayPal     = "PAYPAL"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// PaymentHandler — обработчик платежей.
type PaymentHandler struct {
	payments service.PaymentService
}

// NewPaymentHandler создает обработчик.
func NewPaymentHandler(payments service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// === Request/Response DTOs ===

// ProcessPaymentRequest — тело POST /api/v1/payments.
type ProcessPaymentRequest struct {
	PaymentReference string                 `json:"paymentReference" binding:"required"`
	Amount           *decimal.Decimal       `json:"amount" binding:"required"`
	Currency         string                 `json:"currency" binding:"required,supported_currency"`
	PaymentMethod    string                 `json:"paymentMethod" binding:"required"`
	CustomerID       string                 `json:"customerId" binding:"required"`
	MerchantID       string                 `json:"merchantId" binding:"required"`
	Description      string                 `json:"description"`
	GatewayProvider  string                 `json:"gatewayProvider"`
	PaymentDetails   *PaymentDetailsRequest `json:"paymentDetails" binding:"required"`
}

// PaymentDetailsRequest — реквизиты; набор полей определяется Type.
type PaymentDetailsRequest struct {
	Type string `json:"type" binding:"required"`

	CardNumber     string `json:"cardNumber"`
	ExpiryMonth    string `json:"expiryMonth"`
	ExpiryYear     string `json:"expiryYear"`
	CVV            string `json:"cvv"`
	CardHolderName string `json:"cardHolderName"`

	Email     string `json:"email"`
	ReturnURL string `json:"returnUrl"`
	CancelURL string `json:"cancelUrl"`
}

// RefundPaymentRequest — тело POST /api/v1/payments/:id/refund.
type RefundPaymentRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// PaymentResponse — платеж в ответе API.
type PaymentResponse struct {
	ID                   string      `json:"id"`
	PaymentReference     string      `json:"paymentReference"`
	Amount               json.Number `json:"amount"`
	Currency             string      `json:"currency"`
	Status               string      `json:"status"`
	PaymentMethod        string      `json:"paymentMethod"`
	GatewayProvider      string      `json:"gatewayProvider"`
	GatewayTransactionID *string     `json:"gatewayTransactionId"`
	RefundTransactionID  *string     `json:"refundTransactionId,omitempty"`
	CustomerID           string      `json:"customerId"`
	MerchantID           string      `json:"merchantId"`
	Description          string      `json:"description"`
	CreatedAt            time.Time   `json:"createdAt"`
	UpdatedAt            *time.Time  `json:"updatedAt"`
	CompletedAt          *time.Time  `json:"completedAt"`
	FailureReason        *string     `json:"failureReason"`
	Version              int64       `json:"version"`
	Completed            bool        `json:"completed"`
	Failed               bool        `json:"failed"`
	Pending              bool        `json:"pending"`
}

// PaymentStatusResponse — ответ провайдера на запрос статуса.
type PaymentStatusResponse struct {
	Success              bool                        `json:"success"`
	GatewayTransactionID *string                     `json:"gatewayTransactionId"`
	Status               string                      `json:"status"`
	Message              string                      `json:"message"`
	ErrorCode            string                      `json:"errorCode,omitempty"`
	ProcessedAt          time.Time                   `json:"processedAt"`
	GatewayData          *domain.GatewaySpecificData `json:"gatewayData,omitempty"`
}

// ListPaymentsResponse — страница платежей мерчанта.
type ListPaymentsResponse struct {
	Payments []PaymentResponse `json:"payments"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// NewPaymentResponse преобразует агрегат в DTO.
func NewPaymentResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:                   p.ID(),
		PaymentReference:     p.PaymentReference(),
		Amount:               json.Number(p.Amount().String()),
		Currency:             p.Currency(),
		Status:               string(p.Status()),
		PaymentMethod:        string(p.PaymentMethod()),
		GatewayProvider:      p.GatewayProvider(),
		GatewayTransactionID: p.GatewayTransactionID(),
		RefundTransactionID:  p.RefundTransactionID(),
		CustomerID:           p.CustomerID(),
		MerchantID:           p.MerchantID(),
		Description:          p.Description(),
		CreatedAt:            p.CreatedAt(),
		UpdatedAt:            p.UpdatedAt(),
		CompletedAt:          p.CompletedAt(),
		FailureReason:        p.FailureReason(),
		Version:              p.Version(),
		Completed:            p.IsCompleted(),
		Failed:               p.IsFailed(),
		Pending:              p.IsPending(),
	}
}

// toDomain собирает PaymentRequest. Ошибки формата возвращаются как *fieldError,
// нарушения доменных правил — как *domain.PaymentError.
func (r *ProcessPaymentRequest) toDomain() (*domain.PaymentRequest, error) {
	method, ok := domain.ParsePaymentMethod(r.PaymentMethod)
	if !ok {
		return nil, &fieldError{field: "paymentMethod", value: r.PaymentMethod}
	}

	details, err := r.PaymentDetails.toDomain()
	if err != nil {
		return nil, err
	}

	return domain.NewPaymentRequest(r.PaymentReference, *r.Amount, r.Currency, method,
		r.CustomerID, r.MerchantID, r.Description, details)
}

func (d *PaymentDetailsRequest) toDomain() (domain.PaymentDetails, error) {
	switch d.Type {
	case DetailsTypeCreditCard:
		return domain.NewCreditCardDetails(d.CardNumber, d.ExpiryMonth, d.ExpiryYear, d.CVV, d.CardHolderName)
	case DetailsTypePayPal:
		return domain.NewPayPalDetails(d.Email, d.ReturnURL, d.CancelURL)
	}
	return nil, &fieldError{field: "paymentDetails"}
}

// === Handlers ===

// ProcessPayment — POST /api/v1/payments.
// Отказ провайдера возвращается с кодом 200 и статусом FAILED в теле.
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindError(c, err)
		return
	}

	payReq, err := req.toDomain()
	if err != nil {
		var fe *fieldError
		if errors.As(err, &fe) {
			RespondBindError(c, fe)
			return
		}
		RespondError(c, err)
		return
	}

	var opts []service.ProcessOption
	if key := c.GetHeader(middleware.HeaderIdempotencyKey); key != "" {
		opts = append(opts, service.WithIdempotencyKey(key))
	}
	if req.GatewayProvider != "" {
		opts = append(opts, service.WithGatewayProvider(req.GatewayProvider))
	}

	payment, err := h.payments.ProcessPayment(c.Request.Context(), payReq, opts...)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewPaymentResponse(payment))
}

// Health — GET /api/v1/payments/health.
func (h *PaymentHandler) Health(c *gin.Context) {
	c.String(http.StatusOK, MessagePaymentHealth)
}

// GetPayment — GET /api/v1/payments/:id.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, ok := h.merchantPayment(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, NewPaymentResponse(payment))
}

// GetPaymentByReference — GET /api/v1/payments/reference/:reference.
func (h *PaymentHandler) GetPaymentByReference(c *gin.Context) {
	reference := c.Param("reference")

	payment, err := h.payments.GetPaymentByReference(c.Request.Context(), reference)
	if err != nil {
		RespondError(c, err)
		return
	}
	if payment.MerchantID() != c.GetString(middleware.ContextMerchantID) {
		RespondError(c, &domain.PaymentError{
			Code:    service.CodePaymentNotFound,
			Message: "Payment not found with reference: " + reference,
			Err:     domain.ErrPaymentNotFound,
		})
		return
	}

	c.JSON(http.StatusOK, NewPaymentResponse(payment))
}

// ListPayments — GET /api/v1/payments?status=&customerId=&limit=&offset=.
// Всегда ограничен мерчантом из токена.
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	filter := repository.Filter{
		MerchantID: c.GetString(middleware.ContextMerchantID),
		CustomerID: c.Query("customerId"),
		Limit:      defaultListLimit,
	}

	if raw := c.Query("status"); raw != "" {
		status, ok := domain.ParsePaymentStatus(raw)
		if !ok {
			RespondBindError(c, &fieldError{field: "status", value: raw})
			return
		}
		filter.Status = status
	}

	var ok bool
	if filter.Limit, ok = queryInt(c, "limit", defaultListLimit, 1, maxListLimit); !ok {
		return
	}
	if filter.Offset, ok = queryInt(c, "offset", 0, 0, -1); !ok {
		return
	}

	payments, err := h.payments.ListPayments(c.Request.Context(), filter)
	if err != nil {
		RespondError(c, err)
		return
	}

	resp := ListPaymentsResponse{
		Payments: make([]PaymentResponse, 0, len(payments)),
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}
	for _, p := range payments {
		resp.Payments = append(resp.Payments, NewPaymentResponse(p))
	}
	c.JSON(http.StatusOK, resp)
}

// CancelPayment — POST /api/v1/payments/:id/cancel.
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	if _, ok := h.merchantPayment(c); !ok {
		return
	}

	payment, err := h.payments.CancelPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}

	logger.Ctx(c.Request.Context()).Info().Str("payment_id", payment.ID()).Msg("Платеж отменен через API")
	c.JSON(http.StatusOK, NewPaymentResponse(payment))
}

// RefundPayment — POST /api/v1/payments/:id/refund.
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	var req RefundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBindError(c, err)
		return
	}
	if _, ok := h.merchantPayment(c); !ok {
		return
	}

	payment, err := h.payments.RefundPayment(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewPaymentResponse(payment))
}

// GetPaymentStatus — GET /api/v1/payments/:id/status. Статус запрашивается у провайдера.
func (h *PaymentHandler) GetPaymentStatus(c *gin.Context) {
	if _, ok := h.merchantPayment(c); !ok {
		return
	}

	resp, err := h.payments.CheckPaymentStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, PaymentStatusResponse{
		Success:              resp.Success,
		GatewayTransactionID: resp.GatewayTransactionID,
		Status:               string(resp.Status),
		Message:              resp.Message,
		ErrorCode:            resp.ErrorCode,
		ProcessedAt:          resp.ProcessedAt,
		GatewayData:          resp.GatewayData,
	})
}

// merchantPayment загружает платеж из :id и проверяет, что он принадлежит
// мерчанту из токена. Чужой платеж неотличим от несуществующего.
func (h *PaymentHandler) merchantPayment(c *gin.Context) (*domain.Payment, bool) {
	id := c.Param("id")

	payment, err := h.payments.GetPaymentByID(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return nil, false
	}
	if payment.MerchantID() != c.GetString(middleware.ContextMerchantID) {
		RespondError(c, &domain.PaymentError{
			Code:    service.CodePaymentNotFound,
			Message: "Payment not found: " + id,
			Err:     domain.ErrPaymentNotFound,
		})
		return nil, false
	}
	return payment, true
}

// queryInt читает целый query параметр. upper < 0 — без верхней границы.
func queryInt(c *gin.Context, name string, def, lower, upper int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lower || (upper >= 0 && n > upper) {
		RespondBindError(c, &fieldError{field: name, value: raw})
		return 0, false
	}
	return n, true
}
