package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/seat-reservation-engine/internal/database"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/smarttransit/seat-reservation-engine/internal/notification"
	"github.com/smarttransit/seat-reservation-engine/internal/utils"
	"github.com/smarttransit/seat-reservation-engine/pkg/metrics"
	"github.com/smarttransit/seat-reservation-engine/pkg/validator"
)

// ReservationStore is the durable record of reservations and the seat ledger
type ReservationStore interface {
	WithTx(ctx context.Context, fn func(tx database.ReservationTx) error) error
	OccupiedSeats(ctx context.Context, vehicleID int64, travelDate models.Date) ([]int, error)
	GetBySlug(ctx context.Context, slug string) (*models.Reservation, error)
	List(ctx context.Context, filter models.ReservationFilter) ([]models.Reservation, int, error)
	ListManifest(ctx context.Context, vehicleID int64, travelDate models.Date) ([]models.Reservation, error)
	Statistics(ctx context.Context, from, to *time.Time) (*models.BookingStatistics, error)
	PopularRoutes(ctx context.Context, limit int) ([]models.RoutePopularity, error)
	SweepDeparted(ctx context.Context, cutoff time.Time, expiredReason string) ([]models.Reservation, error)
}

// VehicleLookup resolves capacity, sellability and fare of a vehicle
type VehicleLookup interface {
	GetByID(ctx context.Context, id int64) (*models.Vehicle, error)
}

// Notifier accepts lifecycle events with fire-and-forget semantics
type Notifier interface {
	Notify(event notification.Event)
}

// BookingConfig holds configuration for the booking service
type BookingConfig struct {
	Location           *time.Location
	QueryTimeout       time.Duration
	CancellationNotice time.Duration
	MaxSeats           int
	IdentifierAttempts int
	DefaultPageSize    int
	MaxPageSize        int
}

// DefaultBookingConfig returns default configuration
func DefaultBookingConfig() BookingConfig {
	return BookingConfig{
		Location:           time.UTC,
		QueryTimeout:       5 * time.Second,
		CancellationNotice: DefaultCancellationNotice,
		MaxSeats:           6,
		IdentifierAttempts: 3,
		DefaultPageSize:    10,
		MaxPageSize:        100,
	}
}

// DefaultPopularRoutes is the number of routes ranked when no limit is given
const DefaultPopularRoutes = 10

// ExpiredReservationReason is recorded on pending reservations swept after departure
const ExpiredReservationReason = "Expired: not confirmed before departure"

// BookingService creates reservations and drives them through their lifecycle
type BookingService struct {
	store    ReservationStore
	vehicles VehicleLookup
	notifier Notifier
	contacts *validator.ContactValidator
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	config   BookingConfig
	policy   CancellationPolicy
	now      func() time.Time
}

// NewBookingService creates a new BookingService
func NewBookingService(
	store ReservationStore,
	vehicles VehicleLookup,
	notifier Notifier,
	m *metrics.Metrics,
	logger *logrus.Logger,
	config BookingConfig,
) *BookingService {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &BookingService{
		store:    store,
		vehicles: vehicles,
		notifier: notifier,
		contacts: validator.NewContactValidator(),
		metrics:  m,
		logger:   logger,
		config:   config,
		policy:   NewCancellationPolicy(config.CancellationNotice),
		now:      time.Now,
	}
}

// WithClock replaces the clock used for date checks and the cancellation window
func (s *BookingService) WithClock(now func() time.Time) *BookingService {
	s.now = now
	s.policy.Now = now
	return s
}

// ============================================================================
// AVAILABILITY
// ============================================================================

// CheckAvailability reports which seats of a vehicle are held on a travel date.
// When seats are given, it also reports which of them are taken.
func (s *BookingService) CheckAvailability(ctx context.Context, vehicleID int64, travelDate models.Date, seats []int) (*models.SeatAvailability, error) {
	defer s.metrics.ObserveDuration("check_availability", time.Now())

	if travelDate.IsZero() {
		return nil, invalidField("travel_date", "Travel date is required")
	}

	vehicle, err := s.lookupVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	for _, seat := range seats {
		if seat < 1 || seat > vehicle.Capacity {
			return nil, ErrSeatOutOfRange.withMessage("Seat %d is outside 1-%d", seat, vehicle.Capacity)
		}
	}

	rctx, cancel := s.readContext(ctx)
	defer cancel()
	occupied, err := s.store.OccupiedSeats(rctx, vehicleID, travelDate)
	if err != nil {
		return nil, s.storeError(err, "read occupied seats")
	}

	taken := make(map[int]bool, len(occupied))
	for _, seat := range occupied {
		taken[seat] = true
	}

	availability := &models.SeatAvailability{
		VehicleID:     vehicleID,
		TravelDate:    travelDate,
		Capacity:      vehicle.Capacity,
		OccupiedSeats: occupied,
		SeatMap:       make(map[int]bool, vehicle.Capacity),
	}
	for seat := 1; seat <= vehicle.Capacity; seat++ {
		availability.SeatMap[seat] = !taken[seat]
		if !taken[seat] {
			availability.FreeCount++
		}
	}

	if len(seats) > 0 {
		availability.RequestedSeats = seats
		availability.UnavailableSeats = intersectSeats(seats, occupied)
		all := len(availability.UnavailableSeats) == 0
		availability.AllAvailable = &all
	}

	return availability, nil
}

// ============================================================================
// CREATION
// ============================================================================

// CreateBooking validates req, claims its seats and persists a pending reservation.
// Nothing is written unless every check passes.
func (s *BookingService) CreateBooking(ctx context.Context, req *models.CreateReservationRequest, requester models.Requester, client models.ClientInfo) (*models.Reservation, error) {
	defer s.metrics.ObserveDuration("create_booking", time.Now())

	vehicle, err := s.lookupVehicle(ctx, req.VehicleID)
	if err != nil {
		return nil, err
	}
	if !vehicle.IsSellable() {
		return nil, ErrVehicleNotSellable
	}

	seats, err := s.validateSeats(req.SeatNumbers, vehicle.Capacity)
	if err != nil {
		return nil, err
	}
	if len(req.PassengerNames) != len(seats) {
		return nil, ErrPassengerCountMismatch.withMessage(
			"Number of passenger names (%d) must match number of seats (%d)", len(req.PassengerNames), len(seats))
	}

	now := s.now()
	if req.TravelDate.IsZero() {
		return nil, invalidField("travel_date", "Travel date is required")
	}
	if req.TravelDate.Before(models.DateOf(now.In(s.config.Location))) {
		return nil, ErrPastTravelDate
	}

	res, err := s.buildReservation(req, vehicle, seats, requester, client)
	if err != nil {
		return nil, err
	}

	departure, err := req.TravelDate.At(vehicle.Departure(), s.config.Location)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"vehicle_id":     vehicle.ID,
			"departure_time": vehicle.Departure(),
		}).Warn("Unparseable vehicle departure time, using midnight")
		departure, _ = req.TravelDate.At("", s.config.Location)
	}
	res.DepartureAt = departure

	fare := CalculateFare(len(seats), *vehicle.FarePerSeat)
	res.FarePerSeat = vehicle.FarePerSeat.Round(2)
	res.BaseAmount = fare.Base
	res.TaxAmount = fare.Tax
	res.TotalAmount = fare.Total

	if err := s.persistReservation(ctx, res, now); err != nil {
		if errors.Is(err, ErrSeatsUnavailable) {
			s.metrics.SeatConflicts.Inc()
			var be *BookingError
			errors.As(err, &be)
			s.logger.WithFields(logrus.Fields{
				"vehicle_id":  res.VehicleID,
				"travel_date": res.TravelDate.String(),
				"seats":       be.Seats,
			}).Info("Seat conflict on booking creation")
		}
		return nil, err
	}

	res.ApplyVehicle(vehicle)

	s.metrics.BookingsCreated.Inc()
	s.metrics.SeatsBooked.Add(float64(len(seats)))
	s.logger.WithFields(logrus.Fields{
		"booking_reference": res.BookingReference,
		"slug":              res.Slug,
		"user_id":           res.UserID,
		"vehicle_id":        res.VehicleID,
		"travel_date":       res.TravelDate.String(),
		"seats":             []int(res.SeatNumbers),
		"total_amount":      res.TotalAmount.StringFixed(2),
	}).Info("Booking created")

	s.notifier.Notify(notification.NewEvent(notification.EventBookingCreated, res, now))
	return res, nil
}

// validateSeats checks range, count and duplicates in that order
func (s *BookingService) validateSeats(seats []int, capacity int) ([]int, error) {
	for _, seat := range seats {
		if seat < 1 || seat > capacity {
			return nil, ErrSeatOutOfRange.withMessage("Seat %d is outside 1-%d", seat, capacity)
		}
	}
	if len(seats) == 0 || len(seats) > s.config.MaxSeats {
		return nil, ErrInvalidSeatCount.withMessage("Between 1 and %d seats must be selected", s.config.MaxSeats)
	}
	seen := make(map[int]bool, len(seats))
	for _, seat := range seats {
		if seen[seat] {
			return nil, ErrDuplicateSeat.withMessage("Seat %d is selected more than once", seat)
		}
		seen[seat] = true
	}
	out := append([]int(nil), seats...)
	sort.Ints(out)
	return out, nil
}

func (s *BookingService) buildReservation(req *models.CreateReservationRequest, vehicle *models.Vehicle, seats []int, requester models.Requester, client models.ClientInfo) (*models.Reservation, error) {
	names := make(models.StringArray, len(req.PassengerNames))
	for i, name := range req.PassengerNames {
		clean, err := s.contacts.ValidatePassengerName(name)
		if err != nil {
			return nil, invalidField(fmt.Sprintf("passenger_names[%d]", i), err.Error())
		}
		names[i] = clean
	}

	phone, err := s.contacts.ValidatePhone(req.ContactPhone)
	if err != nil {
		return nil, invalidField("contact_phone", err.Error())
	}
	email, err := s.contacts.ValidateEmail(req.ContactEmail)
	if err != nil {
		return nil, invalidField("contact_email", err.Error())
	}

	boarding, err := s.contacts.ValidateOptionalText(req.BoardingPoint, 200)
	if err != nil {
		return nil, invalidField("boarding_point", "Boarding point must be at most 200 characters")
	}
	dropping, err := s.contacts.ValidateOptionalText(req.DroppingPoint, 200)
	if err != nil {
		return nil, invalidField("dropping_point", "Dropping point must be at most 200 characters")
	}
	requests, err := s.contacts.ValidateOptionalText(req.SpecialRequests, 500)
	if err != nil {
		return nil, invalidField("special_requests", "Special requests must be at most 500 characters")
	}

	method := req.PaymentMethod
	if method == "" {
		method = models.PaymentMethodCash
	}
	if !method.IsValid() {
		return nil, invalidField("payment_method", "Payment method must be one of cash, card, upi, wallet")
	}

	res := &models.Reservation{
		UserID:          requester.UserID,
		VehicleID:       vehicle.ID,
		TravelDate:      req.TravelDate,
		SeatNumbers:     models.IntArray(seats),
		PassengerNames:  names,
		ContactPhone:    phone,
		ContactEmail:    email,
		BoardingPoint:   boarding,
		DroppingPoint:   dropping,
		SpecialRequests: requests,
		Status:          models.ReservationPending,
		PaymentStatus:   models.PaymentPending,
		PaymentMethod:   method,
	}
	if client.IP != "" {
		ip := client.IP
		res.BookingIP = &ip
	}
	if client.UserAgent != "" {
		agent := client.UserAgent
		res.UserAgent = &agent
		res.ClientDevice = utils.ParseClientDevice(agent)
	}
	return res, nil
}

// persistReservation runs the check-and-insert transaction, regenerating
// identifiers when they collide with an existing reservation.
func (s *BookingService) persistReservation(ctx context.Context, res *models.Reservation, now time.Time) error {
	for attempt := 1; ; attempt++ {
		if err := s.assignIdentifiers(res, now); err != nil {
			return err
		}

		err := s.insertReservation(ctx, res)
		if err == nil {
			return nil
		}

		constraint, unique := database.IsUniqueViolation(err)
		switch {
		case unique && strings.HasPrefix(constraint, "seat_allocations"):
			return seatsUnavailable(res.SeatNumbers)
		case unique && attempt < s.config.IdentifierAttempts:
			s.logger.WithFields(logrus.Fields{
				"constraint": constraint,
				"attempt":    attempt,
			}).Warn("Reservation identifier collision, regenerating")
			continue
		}
		return s.storeError(err, "create reservation")
	}
}

func (s *BookingService) assignIdentifiers(res *models.Reservation, now time.Time) error {
	slug, err := NewSlug(now)
	if err != nil {
		return err
	}
	reference, err := NewBookingReference()
	if err != nil {
		return err
	}
	res.Slug = slug
	res.BookingReference = reference
	res.SecurityHash = SecurityHash(slug, res.UserID, res.VehicleID)
	return nil
}

func (s *BookingService) insertReservation(ctx context.Context, res *models.Reservation) error {
	wctx, cancel := s.writeContext(ctx)
	defer cancel()

	return s.store.WithTx(wctx, func(tx database.ReservationTx) error {
		occupied, err := tx.OccupiedSeats(wctx, res.VehicleID, res.TravelDate)
		if err != nil {
			return err
		}
		if conflicts := intersectSeats(res.SeatNumbers, occupied); len(conflicts) > 0 {
			return seatsUnavailable(conflicts)
		}

		if err := tx.Insert(wctx, res); err != nil {
			return err
		}

		claimed, err := tx.ClaimSeats(wctx, res)
		if err != nil {
			return err
		}
		if lost := subtractSeats(res.SeatNumbers, claimed); len(lost) > 0 {
			return seatsUnavailable(lost)
		}
		return nil
	})
}

// ============================================================================
// READS
// ============================================================================

// GetBooking returns a reservation visible to its owner or an administrator
func (s *BookingService) GetBooking(ctx context.Context, slug string, requester models.Requester) (*models.Reservation, error) {
	rctx, cancel := s.readContext(ctx)
	defer cancel()

	res, err := s.store.GetBySlug(rctx, slug)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, s.storeError(err, "get reservation")
	}
	if !res.IsOwnedBy(requester.UserID) && !requester.IsAdmin() {
		return nil, ErrUnauthorized
	}
	return res, nil
}

// ListBookingsForUser returns one page of a user's reservations, newest first
func (s *BookingService) ListBookingsForUser(ctx context.Context, userID uuid.UUID, filter models.ReservationFilter) (*models.ReservationPage, error) {
	filter.UserID = &userID
	return s.listBookings(ctx, filter)
}

// ListAllBookings returns one page of every user's reservations, newest first.
// A UserID in filter narrows the listing to that user.
func (s *BookingService) ListAllBookings(ctx context.Context, filter models.ReservationFilter) (*models.ReservationPage, error) {
	return s.listBookings(ctx, filter)
}

func (s *BookingService) listBookings(ctx context.Context, filter models.ReservationFilter) (*models.ReservationPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = s.config.DefaultPageSize
	}
	if filter.Limit > s.config.MaxPageSize {
		filter.Limit = s.config.MaxPageSize
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, invalidField("status", "Status must be one of pending, confirmed, cancelled, completed")
	}
	if filter.FromDate != nil && filter.ToDate != nil && filter.ToDate.Before(*filter.FromDate) {
		return nil, invalidField("to_date", "to_date must not be before from_date")
	}

	rctx, cancel := s.readContext(ctx)
	defer cancel()

	reservations, total, err := s.store.List(rctx, filter)
	if err != nil {
		return nil, s.storeError(err, "list reservations")
	}

	return &models.ReservationPage{
		Bookings:   reservations,
		Pagination: models.NewPagination(filter.Page, filter.Limit, total),
	}, nil
}

// ListVehicleManifest returns the pending, confirmed and completed
// reservations of a vehicle on a travel date with their totals
func (s *BookingService) ListVehicleManifest(ctx context.Context, vehicleID int64, travelDate models.Date) (*models.VehicleManifest, error) {
	if travelDate.IsZero() {
		return nil, invalidField("travel_date", "Travel date is required")
	}
	vehicle, err := s.lookupVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	rctx, cancel := s.readContext(ctx)
	defer cancel()

	reservations, err := s.store.ListManifest(rctx, vehicleID, travelDate)
	if err != nil {
		return nil, s.storeError(err, "list vehicle reservations")
	}

	manifest := &models.VehicleManifest{
		VehicleID:    vehicleID,
		BusNumber:    vehicle.BusNumber,
		TravelDate:   travelDate,
		Capacity:     vehicle.Capacity,
		Reservations: reservations,
	}
	manifest.Summarize()
	return manifest, nil
}

// GetStatistics aggregates reservations created between the start of from and
// the end of to, both read as calendar days in the booking location
func (s *BookingService) GetStatistics(ctx context.Context, from, to *models.Date) (*models.BookingStatistics, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, invalidField("to_date", "to_date must not be before from_date")
	}

	var lower, upper *time.Time
	if from != nil {
		start, _ := from.At("", s.config.Location)
		lower = &start
	}
	if to != nil {
		end, _ := models.DateOf(to.AddDate(0, 0, 1)).At("", s.config.Location)
		upper = &end
	}

	rctx, cancel := s.readContext(ctx)
	defer cancel()

	stats, err := s.store.Statistics(rctx, lower, upper)
	if err != nil {
		return nil, s.storeError(err, "aggregate reservations")
	}
	stats.DeriveRates()
	return stats, nil
}

// PopularRoutes ranks routes by reservation count. A limit below one falls
// back to DefaultPopularRoutes; limits above the page size are capped.
func (s *BookingService) PopularRoutes(ctx context.Context, limit int) ([]models.RoutePopularity, error) {
	if limit < 1 {
		limit = DefaultPopularRoutes
	}
	if limit > s.config.MaxPageSize {
		limit = s.config.MaxPageSize
	}

	rctx, cancel := s.readContext(ctx)
	defer cancel()

	routes, err := s.store.PopularRoutes(rctx, limit)
	if err != nil {
		return nil, s.storeError(err, "rank routes")
	}
	return routes, nil
}

// ============================================================================
// STATE MACHINE
// ============================================================================

// UpdateStatus moves a reservation through the state machine and/or corrects
// its payment data. Owners and administrators only; payment changes on a
// closed reservation are reserved for administrators.
func (s *BookingService) UpdateStatus(ctx context.Context, slug string, req *models.UpdateStatusRequest, requester models.Requester) (*models.Reservation, error) {
	defer s.metrics.ObserveDuration("update_status", time.Now())

	if req.Status == nil && req.PaymentStatus == nil && req.PaymentMethod == nil {
		return nil, invalidField("status", "status, payment_status or payment_method is required")
	}
	if req.Status != nil && !req.Status.IsValid() {
		return nil, invalidField("status", "Status must be one of pending, confirmed, cancelled, completed")
	}
	if req.PaymentStatus != nil && !req.PaymentStatus.IsValid() {
		return nil, invalidField("payment_status", "Payment status must be one of pending, paid, failed, refunded")
	}
	if req.PaymentMethod != nil && !req.PaymentMethod.IsValid() {
		return nil, invalidField("payment_method", "Payment method must be one of cash, card, upi, wallet")
	}

	reason := ""
	if req.Status != nil && *req.Status == models.ReservationCancelled {
		var given string
		if req.CancellationReason != nil {
			given = *req.CancellationReason
		}
		var err error
		if reason, err = NormalizeCancellationReason(given, StatusUpdateCancellationReason); err != nil {
			return nil, err
		}
	}

	wctx, cancel := s.writeContext(ctx)
	defer cancel()

	now := s.now()
	var (
		updated *models.Reservation
		from    models.ReservationStatus
	)
	err := s.store.WithTx(wctx, func(tx database.ReservationTx) error {
		res, err := tx.GetBySlugForUpdate(wctx, slug)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrReservationNotFound
			}
			return err
		}
		if !res.IsOwnedBy(requester.UserID) && !requester.IsAdmin() {
			return ErrUnauthorized
		}
		from = res.Status

		if req.PaymentStatus != nil || req.PaymentMethod != nil {
			if res.Status.IsTerminal() && !requester.IsAdmin() {
				return ErrUnauthorized.withMessage("Payment changes on a %s booking are reserved for administrators", res.Status)
			}
			if req.PaymentStatus != nil {
				res.PaymentStatus = *req.PaymentStatus
			}
			if req.PaymentMethod != nil {
				res.PaymentMethod = *req.PaymentMethod
			}
		}

		if req.Status != nil {
			to := *req.Status
			if !res.Status.CanTransitionTo(to) {
				return ErrInvalidTransition.withMessage("Cannot change status from %s to %s", res.Status, to)
			}
			if to == models.ReservationCancelled && !requester.IsAdmin() {
				if err := s.policy.CheckWindow(res); err != nil {
					return err
				}
			}
			applyTransition(res, to, requester, reason, now)
		}

		if err := tx.SaveTransition(wctx, res); err != nil {
			return err
		}
		if res.Status.IsTerminal() && from.IsActive() {
			if err := tx.ReleaseSeats(wctx, res.ID); err != nil {
				return err
			}
		}
		updated = res
		return nil
	})
	if err != nil {
		return nil, s.storeError(err, "update reservation status")
	}

	fields := logrus.Fields{
		"booking_reference": updated.BookingReference,
		"slug":              updated.Slug,
		"requested_by":      requester.UserID,
		"from":              from,
		"to":                updated.Status,
		"payment_status":    updated.PaymentStatus,
	}
	s.logger.WithFields(fields).Info("Booking updated")

	if updated.Status != from {
		s.metrics.StatusTransitions.WithLabelValues(string(updated.Status)).Inc()
		s.notifier.Notify(notification.NewEvent(notification.EventForStatus(updated.Status), updated, now))
	}
	return updated, nil
}

// applyTransition sets status and the timestamp that belongs to it
func applyTransition(res *models.Reservation, to models.ReservationStatus, requester models.Requester, reason string, now time.Time) {
	res.Status = to
	switch to {
	case models.ReservationConfirmed:
		res.ConfirmedAt = &now
	case models.ReservationCancelled:
		by := requester.UserID
		res.CancelledAt = &now
		res.CancelledBy = &by
		res.CancellationReason = &reason
	case models.ReservationCompleted:
		res.CompletedAt = &now
	}
}

// ============================================================================
// CANCELLATION
// ============================================================================

// CancelBooking cancels a traveler's own reservation and frees its seats.
// The row is locked for the duration, so of two concurrent cancels the
// second observes ErrAlreadyCancelled.
func (s *BookingService) CancelBooking(ctx context.Context, slug string, requester models.Requester, reason string) (*models.Reservation, error) {
	defer s.metrics.ObserveDuration("cancel_booking", time.Now())

	reason, err := NormalizeCancellationReason(reason, DefaultCancellationReason)
	if err != nil {
		return nil, err
	}

	wctx, cancel := s.writeContext(ctx)
	defer cancel()

	now := s.now()
	var cancelled *models.Reservation
	err = s.store.WithTx(wctx, func(tx database.ReservationTx) error {
		res, err := tx.GetBySlugForUpdate(wctx, slug)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return err
		}
		if err := s.policy.Check(res, requester); err != nil {
			return err
		}

		applyTransition(res, models.ReservationCancelled, requester, reason, now)
		if err := tx.SaveTransition(wctx, res); err != nil {
			return err
		}
		if err := tx.ReleaseSeats(wctx, res.ID); err != nil {
			return err
		}
		cancelled = res
		return nil
	})
	if err != nil {
		return nil, s.storeError(err, "cancel reservation")
	}

	s.metrics.BookingsCancelled.Inc()
	s.metrics.StatusTransitions.WithLabelValues(string(models.ReservationCancelled)).Inc()
	s.logger.WithFields(logrus.Fields{
		"booking_reference": cancelled.BookingReference,
		"slug":              cancelled.Slug,
		"user_id":           requester.UserID,
		"seats":             []int(cancelled.SeatNumbers),
		"reason":            reason,
	}).Info("Booking cancelled")

	s.notifier.Notify(notification.NewEvent(notification.EventBookingCancelled, cancelled, now))
	return cancelled, nil
}

// ============================================================================
// SWEEP
// ============================================================================

// CompleteDepartedReservations closes active reservations whose departure has
// passed: confirmed ones complete, pending ones expire as cancelled.
func (s *BookingService) CompleteDepartedReservations(ctx context.Context) (int, error) {
	wctx, cancel := s.writeContext(ctx)
	defer cancel()

	now := s.now()
	swept, err := s.store.SweepDeparted(wctx, now, ExpiredReservationReason)
	if err != nil {
		return 0, s.storeError(err, "sweep departed reservations")
	}

	for i := range swept {
		res := &swept[i]
		s.metrics.StatusTransitions.WithLabelValues(string(res.Status)).Inc()
		s.notifier.Notify(notification.NewEvent(notification.EventForStatus(res.Status), res, now))
	}
	return len(swept), nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *BookingService) lookupVehicle(ctx context.Context, vehicleID int64) (*models.Vehicle, error) {
	rctx, cancel := s.readContext(ctx)
	defer cancel()

	vehicle, err := s.vehicles.GetByID(rctx, vehicleID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrVehicleNotFound
		}
		return nil, s.storeError(err, "look up vehicle")
	}
	return vehicle, nil
}

// readContext bounds a store read; it still honours caller cancellation
func (s *BookingService) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.QueryTimeout)
}

// writeContext bounds a store write and detaches it from caller cancellation,
// so an issued write either completes or fails on its own deadline
func (s *BookingService) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.config.QueryTimeout)
}

// storeError passes BookingErrors through and classifies everything else
func (s *BookingService) storeError(err error, operation string) error {
	var be *BookingError
	if errors.As(err, &be) {
		return err
	}
	if database.IsTransient(err) {
		s.metrics.StoreErrors.WithLabelValues(operation).Inc()
		s.logger.WithFields(logrus.Fields{
			"operation": operation,
			"error":     err.Error(),
		}).Warn("Transient store failure")
		e := *ErrStoreUnavailable
		e.Err = err
		return &e
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}

// intersectSeats returns the sorted seats of requested that appear in occupied
func intersectSeats(requested, occupied []int) []int {
	taken := make(map[int]bool, len(occupied))
	for _, s := range occupied {
		taken[s] = true
	}
	var out []int
	for _, s := range requested {
		if taken[s] {
			out = append(out, s)
		}
	}
	sort.Ints(out)
	return out
}

// subtractSeats returns the sorted seats of requested missing from claimed
func subtractSeats(requested, claimed []int) []int {
	got := make(map[int]bool, len(claimed))
	for _, s := range claimed {
		got[s] = true
	}
	var out []int
	for _, s := range requested {
		if !got[s] {
			out = append(out, s)
		}
	}
	sort.Ints(out)
	return out
}
