package database

import (
	"context"
	"database/sql/driver"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttransit/seat-reservation-engine/internal/models"
)

func setupReservationRepo(t *testing.T) (*ReservationRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewReservationRepository(sqlx.NewDb(db, "sqlmock")), mock
}

var reservationColumns = []string{
	"id", "slug", "booking_reference", "user_id",
	"vehicle_id", "travel_date", "departure_at",
	"seat_numbers", "passenger_names", "contact_phone", "contact_email",
	"boarding_point", "dropping_point", "special_requests",
	"fare_per_seat", "base_amount", "tax_amount", "total_amount",
	"status", "payment_status", "payment_method",
	"cancellation_reason", "cancelled_at", "cancelled_by", "confirmed_at", "completed_at",
	"booking_ip", "user_agent", "client_device", "security_hash",
	"created_at", "updated_at",
	"bus_number", "bus_type", "route_name", "origin", "destination",
}

func reservationRow(id int64, slug string, userID uuid.UUID, status string, seats string) []driver.Value {
	now := time.Date(2026, 3, 10, 3, 30, 0, 0, time.UTC)
	return []driver.Value{
		id, slug, "A1B2C3D4E5F60718", userID.String(),
		int64(7), time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 12, 3, 0, 0, 0, time.UTC),
		[]byte(seats), []byte(`{"Nimal Perera","Kamala Silva"}`), "0771234567", "traveler@example.com",
		nil, nil, nil,
		"500.00", "1000.00", "180.00", "1180.00",
		status, "pending", "cash",
		nil, nil, nil, nil, nil,
		"203.0.113.9", "Mozilla/5.0", []byte(`{"os":"Android"}`), "hash",
		now, now,
		"NB-1234", "AC", "Colombo - Kandy", "Colombo", "Kandy",
	}
}

func TestOccupiedSeats(t *testing.T) {
	repo, mock := setupReservationRepo(t)
	date := models.NewDate(2026, 3, 12)

	t.Run("Union of active reservations", func(t *testing.T) {
		mock.ExpectQuery(`SELECT seat_numbers FROM reservations`).
			WithArgs(int64(7), date).
			WillReturnRows(sqlmock.NewRows([]string{"seat_numbers"}).
				AddRow([]byte(`{5,4}`)).
				AddRow([]byte(`{9}`)).
				AddRow([]byte(`{4}`)))

		seats, err := repo.OccupiedSeats(context.Background(), 7, date)
		require.NoError(t, err)
		assert.Equal(t, []int{4, 5, 9}, seats)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Empty vehicle", func(t *testing.T) {
		mock.ExpectQuery(`SELECT seat_numbers FROM reservations`).
			WithArgs(int64(7), date).
			WillReturnRows(sqlmock.NewRows([]string{"seat_numbers"}))

		seats, err := repo.OccupiedSeats(context.Background(), 7, date)
		require.NoError(t, err)
		assert.Empty(t, seats)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT seat_numbers FROM reservations`).
			WillReturnError(fmt.Errorf("connection reset"))

		_, err := repo.OccupiedSeats(context.Background(), 7, date)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read occupied seats")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWithTx_CreateReservation(t *testing.T) {
	repo, mock := setupReservationRepo(t)
	userID := uuid.New()
	res := &models.Reservation{
		Slug:             "BK-abc",
		BookingReference: "A1B2C3D4E5F60718",
		UserID:           userID,
		VehicleID:        7,
		TravelDate:       models.NewDate(2026, 3, 12),
		SeatNumbers:      models.IntArray{4, 5},
		PassengerNames:   models.StringArray{"Nimal Perera", "Kamala Silva"},
		Status:           models.ReservationPending,
		PaymentStatus:    models.PaymentPending,
		PaymentMethod:    models.PaymentMethodCash,
	}
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT seat_numbers FROM reservations`).
		WithArgs(int64(7), res.TravelDate).
		WillReturnRows(sqlmock.NewRows([]string{"seat_numbers"}).AddRow([]byte(`{1}`)))
	mock.ExpectQuery(`INSERT INTO reservations`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(42), now, now))
	mock.ExpectQuery(`INSERT INTO seat_allocations`).
		WithArgs(int64(42), int64(7), res.TravelDate, res.SeatNumbers).
		WillReturnRows(sqlmock.NewRows([]string{"seat_number"}).AddRow(5).AddRow(4))
	mock.ExpectCommit()

	var claimed []int
	err := repo.WithTx(context.Background(), func(tx ReservationTx) error {
		occupied, err := tx.OccupiedSeats(context.Background(), res.VehicleID, res.TravelDate)
		if err != nil {
			return err
		}
		assert.Equal(t, []int{1}, occupied)
		if err := tx.Insert(context.Background(), res); err != nil {
			return err
		}
		claimed, err = tx.ClaimSeats(context.Background(), res)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.ID)
	assert.Equal(t, []int{4, 5}, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimSeats_ConflictingRowsAreSkipped(t *testing.T) {
	repo, mock := setupReservationRepo(t)
	res := &models.Reservation{
		ID:          42,
		VehicleID:   7,
		TravelDate:  models.NewDate(2026, 3, 12),
		SeatNumbers: models.IntArray{4, 5, 6},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`ON CONFLICT \(vehicle_id, travel_date, seat_number\) DO NOTHING`).
		WithArgs(int64(42), int64(7), res.TravelDate, res.SeatNumbers).
		WillReturnRows(sqlmock.NewRows([]string{"seat_number"}).AddRow(6).AddRow(4))
	mock.ExpectCommit()

	var claimed []int
	err := repo.WithTx(context.Background(), func(tx ReservationTx) error {
		var err error
		claimed, err = tx.ClaimSeats(context.Background(), res)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 6}, claimed, "seat 5 already has a ledger row")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackOnError(t *testing.T) {
	repo, mock := setupReservationRepo(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	sentinel := fmt.Errorf("seats taken")
	err := repo.WithTx(context.Background(), func(tx ReservationTx) error {
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_BeginError(t *testing.T) {
	repo, mock := setupReservationRepo(t)

	mock.ExpectBegin().WillReturnError(fmt.Errorf("too many connections"))

	called := false
	err := repo.WithTx(context.Background(), func(tx ReservationTx) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
	assert.Contains(t, err.Error(), "failed to begin transaction")
}

func TestWithTx_CancelReservation(t *testing.T) {
	repo, mock := setupReservationRepo(t)
	userID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE r.slug = \$1 FOR UPDATE OF r`).
		WithArgs("BK-abc").
		WillReturnRows(sqlmock.NewRows(reservationColumns).
			AddRow(reservationRow(42, "BK-abc", userID, "confirmed", `{4,5}`)...))
	mock.ExpectQuery(`UPDATE reservations SET`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectExec(`DELETE FROM seat_allocations WHERE reservation_id = \$1`).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.WithTx(context.Background(), func(tx ReservationTx) error {
		res, err := tx.GetBySlugForUpdate(context.Background(), "BK-abc")
		if err != nil {
			return err
		}
		assert.Equal(t, models.ReservationConfirmed, res.Status)
		assert.Equal(t, models.IntArray{4, 5}, res.SeatNumbers)
		assert.Equal(t, models.StringArray{"Nimal Perera", "Kamala Silva"}, res.PassengerNames)
		assert.Equal(t, "Android", res.ClientDevice["os"])

		res.Status = models.ReservationCancelled
		if err := tx.SaveTransition(context.Background(), res); err != nil {
			return err
		}
		return tx.ReleaseSeats(context.Background(), res.ID)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBySlugForUpdate_NotFound(t *testing.T) {
	repo, mock := setupReservationRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE OF r`).
		WithArgs("BK-missing").
		WillReturnRows(sqlmock.NewRows(reservationColumns))
	mock.ExpectRollback()

	err := repo.WithTx(context.Background(), func(tx ReservationTx) error {
		_, err := tx.GetBySlugForUpdate(context.Background(), "BK-missing")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBySlug(t *testing.T) {
	repo, mock := setupReservationRepo(t)
	userID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(`FROM reservations r`).
			WithArgs("BK-abc").
			WillReturnRows(sqlmock.NewRows(reservationColumns).
				AddRow(reservationRow(42, "BK-abc", userID, "pending", `{4,5}`)...))

		res, err := repo.GetBySlug(context.Background(), "BK-abc")
		require.NoError(t, err)
		assert.Equal(t, int64(42), res.ID)
		assert.Equal(t, userID, res.UserID)
		assert.Equal(t, "2026-03-12", res.TravelDate.String())
		assert.Equal(t, "NB-1234", res.BusNumber)
		assert.Nil(t, res.BoardingPoint)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(`FROM reservations r`).
			WithArgs("BK-missing").
			WillReturnRows(sqlmock.NewRows(reservationColumns))

		res, err := repo.GetBySlug(context.Background(), "BK-missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, res)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestList(t *testing.T) {
	repo, mock := setupReservationRepo(t)
	userID := uuid.New()
	status := models.ReservationPending
	filter := models.ReservationFilter{UserID: &userID, Status: &status, Page: 2, Limit: 1}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM reservations r WHERE r.user_id = \$1 AND r.status = \$2`).
		WithArgs(userID, status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`ORDER BY r.created_at DESC, r.id DESC LIMIT \$3 OFFSET \$4`).
		WithArgs(userID, status, 1, 1).
		WillReturnRows(sqlmock.NewRows(reservationColumns).
			AddRow(reservationRow(2, "BK-two", userID, "pending", `{2}`)...))

	reservations, total, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, reservations, 1)
	assert.Equal(t, "BK-two", reservations[0].Slug)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListManifest(t *testing.T) {
	repo, mock := setupReservationRepo(t)
	date := models.NewDate(2026, 3, 12)
	userID := uuid.New()

	mock.ExpectQuery(`r.status IN \('pending', 'confirmed', 'completed'\)\s+ORDER BY r.seat_numbers\[1\] ASC`).
		WithArgs(int64(7), date).
		WillReturnRows(sqlmock.NewRows(reservationColumns).
			AddRow(reservationRow(3, "BK-three", userID, "completed", `{1,2}`)...).
			AddRow(reservationRow(1, "BK-one", userID, "pending", `{4,5}`)...))

	reservations, err := repo.ListManifest(context.Background(), 7, date)
	require.NoError(t, err)
	require.Len(t, reservations, 2)
	assert.Equal(t, models.ReservationCompleted, reservations[0].Status)
	assert.Equal(t, "1180.00", reservations[1].TotalAmount.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

var statisticsColumns = []string{
	"total_bookings", "pending_bookings", "confirmed_bookings", "cancelled_bookings",
	"completed_bookings", "total_seats_sold", "paid_bookings", "total_revenue",
}

func TestStatistics(t *testing.T) {
	repo, mock := setupReservationRepo(t)

	t.Run("Bounded by creation time", func(t *testing.T) {
		from := time.Date(2026, 2, 28, 18, 30, 0, 0, time.UTC)
		to := time.Date(2026, 3, 31, 18, 30, 0, 0, time.UTC)
		mock.ExpectQuery(`FROM reservations WHERE created_at >= \$1 AND created_at < \$2`).
			WithArgs(from, to).
			WillReturnRows(sqlmock.NewRows(statisticsColumns).
				AddRow(8, 4, 2, 1, 1, 4, 3, "2360.00"))

		stats, err := repo.Statistics(context.Background(), &from, &to)
		require.NoError(t, err)
		assert.Equal(t, 8, stats.TotalBookings)
		assert.Equal(t, 4, stats.PendingBookings)
		assert.Equal(t, 2, stats.ConfirmedBookings)
		assert.Equal(t, 1, stats.CancelledBookings)
		assert.Equal(t, 1, stats.CompletedBookings)
		assert.Equal(t, 4, stats.TotalSeatsSold)
		assert.Equal(t, 3, stats.PaidBookings)
		assert.Equal(t, "2360.00", stats.TotalRevenue.StringFixed(2))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Revenue counts paid reservations", func(t *testing.T) {
		mock.ExpectQuery(`SUM\(total_amount\) FILTER \(WHERE payment_status = 'paid'\)`).
			WillReturnRows(sqlmock.NewRows(statisticsColumns).
				AddRow(0, 0, 0, 0, 0, 0, 0, "0"))

		stats, err := repo.Statistics(context.Background(), nil, nil)
		require.NoError(t, err)
		assert.Zero(t, stats.TotalBookings)
		assert.True(t, stats.TotalRevenue.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		mock.ExpectQuery(`FROM reservations`).
			WillReturnError(fmt.Errorf("connection reset"))

		_, err := repo.Statistics(context.Background(), nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to aggregate reservations")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPopularRoutes(t *testing.T) {
	repo, mock := setupReservationRepo(t)

	mock.ExpectQuery(`GROUP BY rt.id, rt.route_name, rt.origin, rt.destination\s+ORDER BY booking_count DESC, rt.id ASC\s+LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{
			"route_id", "route_name", "origin", "destination", "booking_count", "total_revenue",
		}).
			AddRow(int64(2), "Colombo - Kandy", "Colombo", "Kandy", 12, "14160.00").
			AddRow(int64(1), "Colombo - Galle", "Colombo", "Galle", 3, "1770.00"))

	routes, err := repo.PopularRoutes(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, int64(2), routes[0].RouteID)
	assert.Equal(t, 12, routes[0].BookingCount)
	assert.Equal(t, "14160.00", routes[0].TotalRevenue.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepDeparted(t *testing.T) {
	repo, mock := setupReservationRepo(t)
	cutoff := time.Date(2026, 3, 12, 4, 0, 0, 0, time.UTC)
	userID := uuid.New()

	t.Run("Closes and releases", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE reservations SET`).
			WithArgs(cutoff, "Expired").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "slug", "booking_reference", "user_id", "vehicle_id", "travel_date",
				"seat_numbers", "contact_phone", "contact_email", "total_amount", "status", "cancellation_reason",
			}).
				AddRow(int64(1), "BK-one", "REF1", userID.String(), int64(7), time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
					[]byte(`{1}`), "0771234567", "a@example.com", "590.00", "completed", nil).
				AddRow(int64(2), "BK-two", "REF2", userID.String(), int64(7), time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
					[]byte(`{2}`), "0771234567", "a@example.com", "590.00", "cancelled", "Expired"))
		mock.ExpectExec(`DELETE FROM seat_allocations WHERE reservation_id = ANY`).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		swept, err := repo.SweepDeparted(context.Background(), cutoff, "Expired")
		require.NoError(t, err)
		require.Len(t, swept, 2)
		assert.Equal(t, models.ReservationCompleted, swept[0].Status)
		assert.Equal(t, models.ReservationCancelled, swept[1].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Nothing departed", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE reservations SET`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		swept, err := repo.SweepDeparted(context.Background(), cutoff, "Expired")
		require.NoError(t, err)
		assert.Empty(t, swept)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
