package api

import (
	"net/http"

	"github.com/Domenick1991/tourledger/internal/apperr"
	"github.com/Domenick1991/tourledger/internal/repository"
	"github.com/Domenick1991/tourledger/internal/service/payment"
	"github.com/gin-gonic/gin"
)

const (
	defaultFailureLimit = 50
	maxFailureLimit     = 500
)

type SettlementHandler struct {
	payments payment.PaymentUseCase
	failures repository.SettlementFailureRepository
}

type settlementStatusResponse struct {
	IsPaid        bool    `json:"isPaid"`
	PaymentStatus string  `json:"paymentStatus"`
	PaymentID     string  `json:"paymentId"`
	Amount        float64 `json:"amount"`
	PaidAt        *string `json:"paidAt,omitempty"`
}

func NewSettlementHandler(payments payment.PaymentUseCase, failures repository.SettlementFailureRepository) *SettlementHandler {
	return &SettlementHandler{payments: payments, failures: failures}
}

func (h *SettlementHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.status)
	router.GET("/failures", h.listFailures)
}

func (h *SettlementHandler) status(c *gin.Context) {
	st, err := h.payments.GetSettlementStatus(c.Request.Context(), payment.SettlementLookup{
		BookingID:        c.Query("bookingId"),
		TravelScheduleID: c.Query("travelScheduleId"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settlementStatusResponse{
		IsPaid:        st.IsPaid,
		PaymentStatus: string(st.PaymentStatus),
		PaymentID:     st.PaymentID,
		Amount:        st.Amount,
		PaidAt:        formatTime(st.PaidAt),
	})
}

func (h *SettlementHandler) listFailures(c *gin.Context) {
	limit, err := intQuery(c, "limit", defaultFailureLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	if limit < 1 || limit > maxFailureLimit {
		writeError(c, apperr.Validation("limit must be between 1 and %d, got %d", maxFailureLimit, limit))
		return
	}
	failures, err := h.failures.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, failures)
}
