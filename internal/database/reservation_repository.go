package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

// ReservationTx is the set of reservation operations available inside a transaction
type ReservationTx interface {
	OccupiedSeats(ctx context.Context, vehicleID int64, travelDate models.Date) ([]int, error)
	Insert(ctx context.Context, r *models.Reservation) error
	ClaimSeats(ctx context.Context, r *models.Reservation) ([]int, error)
	GetBySlugForUpdate(ctx context.Context, slug string) (*models.Reservation, error)
	SaveTransition(ctx context.Context, r *models.Reservation) error
	ReleaseSeats(ctx context.Context, reservationID int64) error
}

// ReservationRepository handles reservation and seat ledger database operations
type ReservationRepository struct {
	db *sqlx.DB
}

// NewReservationRepository creates a new ReservationRepository
func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

const reservationSelect = `
	SELECT
		r.id, r.slug, r.booking_reference, r.user_id,
		r.vehicle_id, r.travel_date, r.departure_at,
		r.seat_numbers, r.passenger_names, r.contact_phone, r.contact_email,
		r.boarding_point, r.dropping_point, r.special_requests,
		r.fare_per_seat, r.base_amount, r.tax_amount, r.total_amount,
		r.status, r.payment_status, r.payment_method,
		r.cancellation_reason, r.cancelled_at, r.cancelled_by, r.confirmed_at, r.completed_at,
		r.booking_ip, r.user_agent, r.client_device, r.security_hash,
		r.created_at, r.updated_at,
		COALESCE(v.bus_number, '') AS bus_number,
		COALESCE(v.bus_type, '') AS bus_type,
		COALESCE(rt.route_name, '') AS route_name,
		COALESCE(rt.origin, '') AS origin,
		COALESCE(rt.destination, '') AS destination
	FROM reservations r
	LEFT JOIN vehicles v ON v.id = r.vehicle_id
	LEFT JOIN routes rt ON rt.id = v.route_id`

// ============================================================================
// TRANSACTIONS
// ============================================================================

// WithTx runs fn inside a transaction, committing when fn returns nil
func (r *ReservationRepository) WithTx(ctx context.Context, fn func(tx ReservationTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&reservationTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type reservationTx struct {
	tx *sqlx.Tx
}

// OccupiedSeats reads the active seats on the transaction's snapshot
func (t *reservationTx) OccupiedSeats(ctx context.Context, vehicleID int64, travelDate models.Date) ([]int, error) {
	return occupiedSeats(ctx, t.tx, vehicleID, travelDate)
}

// Insert writes the reservation row and fills ID, CreatedAt and UpdatedAt
func (t *reservationTx) Insert(ctx context.Context, res *models.Reservation) error {
	query := `
		INSERT INTO reservations (
			slug, booking_reference, user_id,
			vehicle_id, travel_date, departure_at,
			seat_numbers, passenger_names, contact_phone, contact_email,
			boarding_point, dropping_point, special_requests,
			fare_per_seat, base_amount, tax_amount, total_amount,
			status, payment_status, payment_method,
			booking_ip, user_agent, client_device, security_hash
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24
		) RETURNING id, created_at, updated_at`

	err := t.tx.QueryRowxContext(ctx, query,
		res.Slug, res.BookingReference, res.UserID,
		res.VehicleID, res.TravelDate, res.DepartureAt,
		res.SeatNumbers, res.PassengerNames, res.ContactPhone, res.ContactEmail,
		res.BoardingPoint, res.DroppingPoint, res.SpecialRequests,
		res.FarePerSeat, res.BaseAmount, res.TaxAmount, res.TotalAmount,
		res.Status, res.PaymentStatus, res.PaymentMethod,
		res.BookingIP, res.UserAgent, res.ClientDevice, res.SecurityHash,
	).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	return nil
}

// ClaimSeats writes one ledger row per seat of res and returns the seats it
// actually claimed. Seats held by a concurrent transaction are skipped, so a
// result shorter than res.SeatNumbers means the caller lost the race.
func (t *reservationTx) ClaimSeats(ctx context.Context, res *models.Reservation) ([]int, error) {
	query := `
		INSERT INTO seat_allocations (reservation_id, vehicle_id, travel_date, seat_number)
		SELECT $1, $2, $3, seat FROM unnest($4::int[]) AS seat
		ON CONFLICT (vehicle_id, travel_date, seat_number) DO NOTHING
		RETURNING seat_number`

	var claimed []int
	err := t.tx.SelectContext(ctx, &claimed, query,
		res.ID, res.VehicleID, res.TravelDate, res.SeatNumbers)
	if err != nil {
		return nil, fmt.Errorf("failed to claim seats: %w", err)
	}
	sort.Ints(claimed)
	return claimed, nil
}

// GetBySlugForUpdate loads a reservation and locks its row until the transaction ends
func (t *reservationTx) GetBySlugForUpdate(ctx context.Context, slug string) (*models.Reservation, error) {
	var res models.Reservation
	err := t.tx.GetContext(ctx, &res, reservationSelect+` WHERE r.slug = $1 FOR UPDATE OF r`, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock reservation: %w", err)
	}
	return &res, nil
}

// SaveTransition persists the mutable lifecycle columns of res.
// Seats, vehicle and travel date are never written after insert.
func (t *reservationTx) SaveTransition(ctx context.Context, res *models.Reservation) error {
	query := `
		UPDATE reservations SET
			status = $2,
			payment_status = $3,
			payment_method = $4,
			cancellation_reason = $5,
			cancelled_at = $6,
			cancelled_by = $7,
			confirmed_at = $8,
			completed_at = $9,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := t.tx.QueryRowxContext(ctx, query,
		res.ID, res.Status, res.PaymentStatus, res.PaymentMethod,
		res.CancellationReason, res.CancelledAt, res.CancelledBy,
		res.ConfirmedAt, res.CompletedAt,
	).Scan(&res.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update reservation status: %w", err)
	}
	return nil
}

// ReleaseSeats removes the ledger rows of a reservation
func (t *reservationTx) ReleaseSeats(ctx context.Context, reservationID int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM seat_allocations WHERE reservation_id = $1`, reservationID)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}
	return nil
}

// ============================================================================
// READS
// ============================================================================

// OccupiedSeats returns the sorted seats held by active reservations of a vehicle on a date
func (r *ReservationRepository) OccupiedSeats(ctx context.Context, vehicleID int64, travelDate models.Date) ([]int, error) {
	return occupiedSeats(ctx, r.db, vehicleID, travelDate)
}

func occupiedSeats(ctx context.Context, q sqlx.QueryerContext, vehicleID int64, travelDate models.Date) ([]int, error) {
	query := `
		SELECT seat_numbers FROM reservations
		WHERE vehicle_id = $1 AND travel_date = $2 AND status IN ('pending', 'confirmed')`

	rows, err := q.QueryxContext(ctx, query, vehicleID, travelDate)
	if err != nil {
		return nil, fmt.Errorf("failed to read occupied seats: %w", err)
	}
	defer rows.Close()

	seen := make(map[int]bool)
	for rows.Next() {
		var seats models.IntArray
		if err := rows.Scan(&seats); err != nil {
			return nil, fmt.Errorf("failed to scan seat numbers: %w", err)
		}
		for _, s := range seats {
			seen[s] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read occupied seats: %w", err)
	}

	occupied := make([]int, 0, len(seen))
	for s := range seen {
		occupied = append(occupied, s)
	}
	sort.Ints(occupied)
	return occupied, nil
}

// GetBySlug retrieves a reservation by its public slug
func (r *ReservationRepository) GetBySlug(ctx context.Context, slug string) (*models.Reservation, error) {
	var res models.Reservation
	err := r.db.GetContext(ctx, &res, reservationSelect+` WHERE r.slug = $1`, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return &res, nil
}

// List returns one page of reservations matching filter, newest first, with the total match count
func (r *ReservationRepository) List(ctx context.Context, filter models.ReservationFilter) ([]models.Reservation, int, error) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != nil {
		add("r.user_id = $%d", *filter.UserID)
	}
	if filter.Status != nil {
		add("r.status = $%d", *filter.Status)
	}
	if filter.FromDate != nil {
		add("r.travel_date >= $%d", *filter.FromDate)
	}
	if filter.ToDate != nil {
		add("r.travel_date <= $%d", *filter.ToDate)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM reservations r`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count reservations: %w", err)
	}

	query := fmt.Sprintf(`%s%s ORDER BY r.created_at DESC, r.id DESC LIMIT $%d OFFSET $%d`,
		reservationSelect, where, len(args)+1, len(args)+2)
	reservations := []models.Reservation{}
	if err := r.db.SelectContext(ctx, &reservations, query, append(args, filter.Limit, filter.Offset())...); err != nil {
		return nil, 0, fmt.Errorf("failed to list reservations: %w", err)
	}

	return reservations, total, nil
}

// ListManifest returns the pending, confirmed and completed reservations of a
// vehicle on a date, ordered by first seat
func (r *ReservationRepository) ListManifest(ctx context.Context, vehicleID int64, travelDate models.Date) ([]models.Reservation, error) {
	reservations := []models.Reservation{}
	query := reservationSelect + `
		WHERE r.vehicle_id = $1 AND r.travel_date = $2
			AND r.status IN ('pending', 'confirmed', 'completed')
		ORDER BY r.seat_numbers[1] ASC, r.id ASC`
	if err := r.db.SelectContext(ctx, &reservations, query, vehicleID, travelDate); err != nil {
		return nil, fmt.Errorf("failed to list vehicle reservations: %w", err)
	}
	return reservations, nil
}

// Statistics aggregates reservations created in [from, to). Seats sold count
// confirmed and completed reservations; revenue counts paid ones.
func (r *ReservationRepository) Statistics(ctx context.Context, from, to *time.Time) (*models.BookingStatistics, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if from != nil {
		args = append(args, *from)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := `
		SELECT COUNT(*) AS total_bookings,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending_bookings,
			COUNT(*) FILTER (WHERE status = 'confirmed') AS confirmed_bookings,
			COUNT(*) FILTER (WHERE status = 'cancelled') AS cancelled_bookings,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed_bookings,
			COALESCE(SUM(cardinality(seat_numbers)) FILTER (WHERE status IN ('confirmed', 'completed')), 0) AS total_seats_sold,
			COUNT(*) FILTER (WHERE payment_status = 'paid') AS paid_bookings,
			COALESCE(SUM(total_amount) FILTER (WHERE payment_status = 'paid'), 0) AS total_revenue
		FROM reservations` + where

	var stats models.BookingStatistics
	if err := r.db.GetContext(ctx, &stats, query, args...); err != nil {
		return nil, fmt.Errorf("failed to aggregate reservations: %w", err)
	}
	return &stats, nil
}

// PopularRoutes ranks routes by number of reservations, most booked first
func (r *ReservationRepository) PopularRoutes(ctx context.Context, limit int) ([]models.RoutePopularity, error) {
	query := `
		SELECT rt.id AS route_id, rt.route_name, rt.origin, rt.destination,
			COUNT(r.id) AS booking_count,
			COALESCE(SUM(r.total_amount), 0) AS total_revenue
		FROM reservations r
		JOIN vehicles v ON v.id = r.vehicle_id
		JOIN routes rt ON rt.id = v.route_id
		GROUP BY rt.id, rt.route_name, rt.origin, rt.destination
		ORDER BY booking_count DESC, rt.id ASC
		LIMIT $1`

	routes := []models.RoutePopularity{}
	if err := r.db.SelectContext(ctx, &routes, query, limit); err != nil {
		return nil, fmt.Errorf("failed to rank routes: %w", err)
	}
	return routes, nil
}

// ============================================================================
// SWEEPS
// ============================================================================

// SweepDeparted closes every active reservation whose departure is before cutoff:
// confirmed ones complete, unconfirmed ones are cancelled with expiredReason.
// Their ledger rows are released in the same transaction.
func (r *ReservationRepository) SweepDeparted(ctx context.Context, cutoff time.Time, expiredReason string) ([]models.Reservation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE reservations SET
			status = CASE WHEN status = 'confirmed' THEN 'completed' ELSE 'cancelled' END,
			completed_at = CASE WHEN status = 'confirmed' THEN NOW() ELSE completed_at END,
			cancelled_at = CASE WHEN status = 'pending' THEN NOW() ELSE cancelled_at END,
			cancellation_reason = CASE WHEN status = 'pending' THEN $2 ELSE cancellation_reason END,
			updated_at = NOW()
		WHERE status IN ('pending', 'confirmed') AND departure_at < $1
		RETURNING id, slug, booking_reference, user_id, vehicle_id, travel_date,
			seat_numbers, contact_phone, contact_email, total_amount, status, cancellation_reason`

	swept := []models.Reservation{}
	if err := tx.SelectContext(ctx, &swept, query, cutoff, expiredReason); err != nil {
		return nil, fmt.Errorf("failed to sweep departed reservations: %w", err)
	}
	if len(swept) == 0 {
		return swept, nil
	}

	ids := make(pq.Int64Array, len(swept))
	for i, res := range swept {
		ids[i] = res.ID
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM seat_allocations WHERE reservation_id = ANY($1)`, ids); err != nil {
		return nil, fmt.Errorf("failed to release swept seats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return swept, nil
}
