package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

// AdminBookingService is the administrative read surface of the booking engine
type AdminBookingService interface {
	ListVehicleManifest(ctx context.Context, vehicleID int64, travelDate models.Date) (*models.VehicleManifest, error)
	GetStatistics(ctx context.Context, from, to *models.Date) (*models.BookingStatistics, error)
	PopularRoutes(ctx context.Context, limit int) ([]models.RoutePopularity, error)
	ListAllBookings(ctx context.Context, filter models.ReservationFilter) (*models.ReservationPage, error)
}

// AdminHandler handles admin-related HTTP requests
type AdminHandler struct {
	service AdminBookingService
	logger  *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(service AdminBookingService, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		logger:  logger,
	}
}

// GetVehicleManifest handles GET /api/v1/admin/bookings/vehicles/:vehicle_id/manifest?travel_date=
func (h *AdminHandler) GetVehicleManifest(c *gin.Context) {
	vehicleID, err := strconv.ParseInt(c.Param("vehicle_id"), 10, 64)
	if err != nil || vehicleID <= 0 {
		badRequest(c, "vehicle_id", "Vehicle ID must be a positive integer")
		return
	}

	travelDate, err := models.ParseDate(c.Query("travel_date"))
	if err != nil {
		badRequest(c, "travel_date", "travel_date must be a date in YYYY-MM-DD format")
		return
	}

	manifest, err := h.service.ListVehicleManifest(c.Request.Context(), vehicleID, travelDate)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, manifest)
}

// GetStatistics handles GET /api/v1/admin/bookings/statistics?from_date=&to_date=
func (h *AdminHandler) GetStatistics(c *gin.Context) {
	from, err := optionalDateQuery(c, "from_date")
	if err != nil {
		badRequest(c, "from_date", "from_date must be a date in YYYY-MM-DD format")
		return
	}
	to, err := optionalDateQuery(c, "to_date")
	if err != nil {
		badRequest(c, "to_date", "to_date must be a date in YYYY-MM-DD format")
		return
	}

	stats, err := h.service.GetStatistics(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetPopularRoutes handles GET /api/v1/admin/bookings/popular-routes?limit=
func (h *AdminHandler) GetPopularRoutes(c *gin.Context) {
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		badRequest(c, "limit", err.Error())
		return
	}

	routes, err := h.service.PopularRoutes(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"routes": routes})
}

// ListAllBookings handles GET /api/v1/admin/bookings/all
// Accepts the my-bookings filters plus an optional user_id.
func (h *AdminHandler) ListAllBookings(c *gin.Context) {
	filter, ok := bindReservationFilter(c)
	if !ok {
		return
	}
	if raw := c.Query("user_id"); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "user_id", "user_id must be a UUID")
			return
		}
		filter.UserID = &userID
	}

	page, err := h.service.ListAllBookings(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, page)
}
