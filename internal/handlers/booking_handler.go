package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/smarttransit/seat-reservation-engine/internal/utils"
)

// BookingService is the subset of the booking engine the HTTP layer drives
type BookingService interface {
	CheckAvailability(ctx context.Context, vehicleID int64, travelDate models.Date, seats []int) (*models.SeatAvailability, error)
	CreateBooking(ctx context.Context, req *models.CreateReservationRequest, requester models.Requester, client models.ClientInfo) (*models.Reservation, error)
	GetBooking(ctx context.Context, slug string, requester models.Requester) (*models.Reservation, error)
	ListBookingsForUser(ctx context.Context, userID uuid.UUID, filter models.ReservationFilter) (*models.ReservationPage, error)
	UpdateStatus(ctx context.Context, slug string, req *models.UpdateStatusRequest, requester models.Requester) (*models.Reservation, error)
	CancelBooking(ctx context.Context, slug string, requester models.Requester, reason string) (*models.Reservation, error)
}

// BookingHandler handles traveler booking operations
type BookingHandler struct {
	service BookingService
	logger  *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(service BookingService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		logger:  logger,
	}
}

// CheckAvailability handles GET /api/v1/bookings/availability
// @Summary Check seat availability
// @Tags Bookings
// @Produce json
// @Param vehicle_id query int true "Vehicle ID"
// @Param travel_date query string true "Travel date (YYYY-MM-DD)"
// @Param seats query string false "Comma separated seat numbers"
// @Success 200 {object} models.SeatAvailability
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/bookings/availability [get]
func (h *BookingHandler) CheckAvailability(c *gin.Context) {
	vehicleID, err := strconv.ParseInt(c.Query("vehicle_id"), 10, 64)
	if err != nil || vehicleID <= 0 {
		badRequest(c, "vehicle_id", "vehicle_id must be a positive integer")
		return
	}

	travelDate, err := models.ParseDate(c.Query("travel_date"))
	if err != nil {
		badRequest(c, "travel_date", "travel_date must be a date in YYYY-MM-DD format")
		return
	}

	seats, err := parseSeatList(c.Query("seats"))
	if err != nil {
		badRequest(c, "seats", err.Error())
		return
	}

	availability, err := h.service.CheckAvailability(c.Request.Context(), vehicleID, travelDate, seats)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, availability)
}

// CreateBooking handles POST /api/v1/bookings
// @Summary Book seats on a vehicle
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.CreateReservationRequest true "Booking request"
// @Success 201 {object} models.Reservation
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Seats not available"
// @Security BearerAuth
// @Router /api/v1/bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}

	var req models.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Debug("Invalid booking request body")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation",
			Message: "Invalid request body: " + err.Error(),
			Code:    "INVALID_REQUEST",
		})
		return
	}

	client := models.ClientInfo{
		IP:        utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}

	reservation, err := h.service.CreateBooking(c.Request.Context(), &req, userCtx.Requester(), client)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, reservation)
}

// GetMyBookings handles GET /api/v1/bookings/my-bookings
// @Summary List the caller's bookings
// @Tags Bookings
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(10)
// @Param status query string false "Status filter"
// @Param from_date query string false "Earliest travel date"
// @Param to_date query string false "Latest travel date"
// @Success 200 {object} models.ReservationPage
// @Security BearerAuth
// @Router /api/v1/bookings/my-bookings [get]
func (h *BookingHandler) GetMyBookings(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}

	filter, ok := bindReservationFilter(c)
	if !ok {
		return
	}

	page, err := h.service.ListBookingsForUser(c.Request.Context(), userCtx.UserID, filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// GetBooking handles GET /api/v1/bookings/:slug
// @Summary Get a booking
// @Tags Bookings
// @Produce json
// @Param slug path string true "Booking slug"
// @Success 200 {object} models.Reservation
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /api/v1/bookings/{slug} [get]
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}

	reservation, err := h.service.GetBooking(c.Request.Context(), c.Param("slug"), userCtx.Requester())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, reservation)
}

// UpdateStatus handles PATCH /api/v1/bookings/:slug/status
// @Summary Change booking status or payment data
// @Tags Bookings
// @Accept json
// @Produce json
// @Param slug path string true "Booking slug"
// @Param request body models.UpdateStatusRequest true "Status update"
// @Success 200 {object} models.Reservation
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Transition not allowed"
// @Security BearerAuth
// @Router /api/v1/bookings/{slug}/status [patch]
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}

	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation",
			Message: "Invalid request body: " + err.Error(),
			Code:    "INVALID_REQUEST",
		})
		return
	}

	reservation, err := h.service.UpdateStatus(c.Request.Context(), c.Param("slug"), &req, userCtx.Requester())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, reservation)
}

// CancelBooking handles PATCH /api/v1/bookings/:slug/cancel
// @Summary Cancel a booking
// @Tags Bookings
// @Accept json
// @Produce json
// @Param slug path string true "Booking slug"
// @Param request body models.CancelReservationRequest false "Cancellation reason"
// @Success 200 {object} models.Reservation
// @Failure 403 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse "Already closed or inside the cancellation window"
// @Security BearerAuth
// @Router /api/v1/bookings/{slug}/cancel [patch]
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}

	// Body is optional; chunked requests carry no Content-Length
	var req models.CancelReservationRequest
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "validation",
				Message: "Invalid request body: " + err.Error(),
				Code:    "INVALID_REQUEST",
			})
			return
		}
	}

	reservation, err := h.service.CancelBooking(c.Request.Context(), c.Param("slug"), userCtx.Requester(), req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, reservation)
}

// bindReservationFilter reads paging and filter query parameters. It writes
// a 400 and returns false on malformed input.
func bindReservationFilter(c *gin.Context) (models.ReservationFilter, bool) {
	var filter models.ReservationFilter

	page, err := intQuery(c, "page", 1)
	if err != nil {
		badRequest(c, "page", err.Error())
		return filter, false
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		badRequest(c, "limit", err.Error())
		return filter, false
	}
	filter.Page = page
	filter.Limit = limit

	if raw := c.Query("status"); raw != "" {
		status := models.ReservationStatus(raw)
		filter.Status = &status
	}

	if filter.FromDate, err = optionalDateQuery(c, "from_date"); err != nil {
		badRequest(c, "from_date", "from_date must be a date in YYYY-MM-DD format")
		return filter, false
	}
	if filter.ToDate, err = optionalDateQuery(c, "to_date"); err != nil {
		badRequest(c, "to_date", "to_date must be a date in YYYY-MM-DD format")
		return filter, false
	}
	return filter, true
}
