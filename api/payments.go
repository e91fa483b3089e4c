package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Domenick1991/tourledger/internal/domain"
	"github.com/Domenick1991/tourledger/internal/service/payment"
	"github.com/gin-gonic/gin"
)

const timeLayout = time.RFC3339

type PaymentHandler struct {
	service payment.PaymentUseCase
}

type processPaymentRequest struct {
	PaymentMethod    string  `json:"paymentMethod" binding:"required"`
	Amount           float64 `json:"amount"`
	UserID           string  `json:"userId" binding:"required"`
	BookingID        *string `json:"bookingId"`
	TravelScheduleID *string `json:"travelScheduleId"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type refundRequest struct {
	Amount *float64 `json:"amount"`
}

type invoiceResponse struct {
	InvoiceNumber string `json:"invoiceNumber"`
	DateIssued    string `json:"dateIssued"`
	DueDate       string `json:"dueDate"`
}

type paymentResponse struct {
	ID               string           `json:"id"`
	PaymentMethod    string           `json:"paymentMethod"`
	Amount           float64          `json:"amount"`
	Status           string           `json:"status"`
	Invoice          *invoiceResponse `json:"invoice,omitempty"`
	BookingID        *string          `json:"bookingId,omitempty"`
	TravelScheduleID *string          `json:"travelScheduleId,omitempty"`
	UserID           string           `json:"userId"`
	CompletedAt      *string          `json:"completedAt,omitempty"`
	RefundAmount     *float64         `json:"refundAmount,omitempty"`
	RefundedAt       *string          `json:"refundedAt,omitempty"`
	CreatedAt        string           `json:"createdAt"`
	UpdatedAt        string           `json:"updatedAt"`
}

type statusUpdateResponse struct {
	ID      string           `json:"id"`
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Payment *paymentResponse `json:"payment,omitempty"`
}

func formatTime(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(timeLayout)
	return &s
}

func toInvoiceResponse(inv domain.Invoice) *invoiceResponse {
	return &invoiceResponse{
		InvoiceNumber: inv.Number,
		DateIssued:    inv.DateIssued.UTC().Format(timeLayout),
		DueDate:       inv.DueDate.UTC().Format(timeLayout),
	}
}

func toPaymentResponse(p *domain.Payment) *paymentResponse {
	resp := &paymentResponse{
		ID:               p.ID,
		PaymentMethod:    string(p.Method),
		Amount:           p.Amount,
		Status:           string(p.Status),
		BookingID:        p.BookingID,
		TravelScheduleID: p.TravelScheduleID,
		UserID:           p.UserID,
		CompletedAt:      formatTime(p.CompletedAt),
		CreatedAt:        p.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:        p.UpdatedAt.UTC().Format(timeLayout),
	}
	if p.Invoice.Number != "" {
		resp.Invoice = toInvoiceResponse(p.Invoice)
	}
	if p.Refund != nil {
		amount := p.Refund.Amount
		resp.RefundAmount = &amount
		resp.RefundedAt = formatTime(&p.Refund.RefundedAt)
	}
	return resp
}

func NewPaymentHandler(service payment.PaymentUseCase) *PaymentHandler {
	return &PaymentHandler{service: service}
}

func (h *PaymentHandler) Register(router *gin.RouterGroup) {
	router.POST("/payments", h.process)
	router.PATCH("/payments/:id/status", h.updateStatus)
	router.POST("/payments/:id/refund", h.refund)
	router.GET("/payments/:id/invoice", h.invoiceByPayment)
	router.GET("/invoices/:number", h.invoiceByNumber)
}

func (h *PaymentHandler) process(c *gin.Context) {
	var req processPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	p, err := h.service.ProcessPayment(c.Request.Context(), payment.ProcessInput{
		Method:           req.PaymentMethod,
		Amount:           req.Amount,
		UserID:           req.UserID,
		BookingID:        req.BookingID,
		TravelScheduleID: req.TravelScheduleID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPaymentResponse(p))
}

func (h *PaymentHandler) updateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	update, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := statusUpdateResponse{ID: update.ID, Status: string(update.Status), Message: update.Message}
	if update.Payment != nil {
		resp.Payment = toPaymentResponse(update.Payment)
	}
	c.JSON(http.StatusOK, resp)
}

// refund accepts an empty body as a full refund.
func (h *PaymentHandler) refund(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}

	p, err := h.service.ProcessRefund(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(p))
}

func (h *PaymentHandler) invoiceByPayment(c *gin.Context) {
	inv, err := h.service.GetInvoice(c.Request.Context(), payment.InvoiceLookup{PaymentID: c.Param("id")})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toInvoiceResponse(*inv))
}

func (h *PaymentHandler) invoiceByNumber(c *gin.Context) {
	inv, err := h.service.GetInvoice(c.Request.Context(), payment.InvoiceLookup{InvoiceNumber: c.Param("number")})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toInvoiceResponse(*inv))
}
