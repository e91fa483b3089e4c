package api

import (
	"net/http"
	"strconv"

	"github.com/Domenick1991/tourledger/internal/apperr"
	"github.com/Domenick1991/tourledger/internal/daterange"
	"github.com/Domenick1991/tourledger/internal/service/inventory"
	"github.com/gin-gonic/gin"
)

type InventoryHandler struct {
	ledger inventory.InventoryUseCase
	query  inventory.AvailabilityQuery
}

type reserveRequest struct {
	SubjectID    string `json:"subjectId" binding:"required"`
	Date         string `json:"date" binding:"required"`
	Participants int    `json:"participants"`
}

type rangeRequest struct {
	SubjectID          string   `json:"subjectId" binding:"required"`
	StartDate          string   `json:"startDate" binding:"required"`
	EndDate            string   `json:"endDate" binding:"required"`
	Slots              int      `json:"slots"`
	HotelAvailable     bool     `json:"hotelAvailable"`
	TransportAvailable bool     `json:"transportAvailable"`
	SkipWeekdays       []int    `json:"skipWeekdays"`
	SkipDates          []string `json:"skipDates"`
	DryRun             bool     `json:"dryRun"`
}

type upsertRequest struct {
	SubjectID          string `json:"subjectId" binding:"required"`
	Date               string `json:"date" binding:"required"`
	Slots              *int   `json:"slots"`
	HotelAvailable     *bool  `json:"hotelAvailable"`
	TransportAvailable *bool  `json:"transportAvailable"`
}

type inventoryRecordResponse struct {
	SubjectID          string `json:"subjectId"`
	Date               string `json:"date"`
	Slots              int    `json:"slots"`
	HotelAvailable     bool   `json:"hotelAvailable"`
	TransportAvailable bool   `json:"transportAvailable"`
	CreatedAt          string `json:"createdAt"`
	UpdatedAt          string `json:"updatedAt"`
}

func NewInventoryHandler(ledger inventory.InventoryUseCase, query inventory.AvailabilityQuery) *InventoryHandler {
	return &InventoryHandler{ledger: ledger, query: query}
}

func (h *InventoryHandler) Register(router *gin.RouterGroup) {
	router.GET("/available", h.availableOnDate)
	router.GET("/:subjectId/availability", h.checkAvailability)
	router.GET("/:subjectId/status", h.status)
	router.GET("/:subjectId/range", h.rangeForSubject)
	router.POST("/reservations", h.reserve)
	router.PUT("", h.upsert)
	router.POST("/ranges", h.initializeRange)
	router.PUT("/ranges", h.updateRange)
	router.DELETE("/:subjectId", h.deleteBySubject)
}

func parseDate(field, value string) (daterange.Date, error) {
	d, err := daterange.ParseDate(value)
	if err != nil {
		return daterange.Date{}, apperr.Validation("%s: %v", field, err)
	}
	return d, nil
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", key)
	}
	return v, nil
}

func (h *InventoryHandler) checkAvailability(c *gin.Context) {
	date, err := parseDate("date", c.Query("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	participants, err := intQuery(c, "participants", 1)
	if err != nil {
		writeError(c, err)
		return
	}

	availability, err := h.ledger.CheckAvailability(c.Request.Context(), c.Param("subjectId"), date, participants)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, availability)
}

func (h *InventoryHandler) status(c *gin.Context) {
	statuses, err := h.query.StatusForSubject(c.Request.Context(), c.Param("subjectId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, statuses)
}

func (h *InventoryHandler) rangeForSubject(c *gin.Context) {
	start, err := parseDate("start", c.Query("start"))
	if err != nil {
		writeError(c, err)
		return
	}
	end, err := parseDate("end", c.Query("end"))
	if err != nil {
		writeError(c, err)
		return
	}

	statuses, err := h.query.RangeForSubject(c.Request.Context(), c.Param("subjectId"), start, end)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, statuses)
}

func (h *InventoryHandler) availableOnDate(c *gin.Context) {
	date, err := parseDate("date", c.Query("date"))
	if err != nil {
		writeError(c, err)
		return
	}
	minSlots, err := intQuery(c, "minSlots", 1)
	if err != nil {
		writeError(c, err)
		return
	}

	statuses, err := h.query.SubjectsAvailableOnDate(c.Request.Context(), date, minSlots)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, statuses)
}

// reserve answers 200 for business failures; the body carries success=false.
func (h *InventoryHandler) reserve(c *gin.Context) {
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.ledger.ReserveSlots(c.Request.Context(), inventory.ReserveInput{
		SubjectID:    req.SubjectID,
		Date:         date,
		Participants: req.Participants,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *InventoryHandler) upsert(c *gin.Context) {
	var req upsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		writeError(c, err)
		return
	}

	rec, err := h.ledger.UpsertInventory(c.Request.Context(), inventory.UpsertInput{
		SubjectID:          req.SubjectID,
		Date:               date,
		Slots:              req.Slots,
		HotelAvailable:     req.HotelAvailable,
		TransportAvailable: req.TransportAvailable,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inventoryRecordResponse{
		SubjectID:          rec.SubjectID,
		Date:               rec.Date.String(),
		Slots:              rec.Slots,
		HotelAvailable:     rec.HotelAvailable,
		TransportAvailable: rec.TransportAvailable,
		CreatedAt:          rec.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:          rec.UpdatedAt.UTC().Format(timeLayout),
	})
}

func (h *InventoryHandler) bindRange(c *gin.Context) (inventory.RangeInput, bool) {
	var req rangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return inventory.RangeInput{}, false
	}
	start, err := parseDate("startDate", req.StartDate)
	if err != nil {
		writeError(c, err)
		return inventory.RangeInput{}, false
	}
	end, err := parseDate("endDate", req.EndDate)
	if err != nil {
		writeError(c, err)
		return inventory.RangeInput{}, false
	}
	var skipDates []daterange.Date
	for _, raw := range req.SkipDates {
		d, err := parseDate("skipDates", raw)
		if err != nil {
			writeError(c, err)
			return inventory.RangeInput{}, false
		}
		skipDates = append(skipDates, d)
	}

	return inventory.RangeInput{
		SubjectID:          req.SubjectID,
		Start:              start,
		End:                end,
		Slots:              req.Slots,
		HotelAvailable:     req.HotelAvailable,
		TransportAvailable: req.TransportAvailable,
		SkipWeekdays:       req.SkipWeekdays,
		SkipDates:          skipDates,
		DryRun:             req.DryRun,
	}, true
}

func (h *InventoryHandler) initializeRange(c *gin.Context) {
	input, ok := h.bindRange(c)
	if !ok {
		return
	}
	result, err := h.ledger.InitializeRange(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *InventoryHandler) updateRange(c *gin.Context) {
	input, ok := h.bindRange(c)
	if !ok {
		return
	}
	result, err := h.ledger.UpdateRange(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *InventoryHandler) deleteBySubject(c *gin.Context) {
	result, err := h.ledger.DeleteBySubject(c.Request.Context(), c.Param("subjectId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
