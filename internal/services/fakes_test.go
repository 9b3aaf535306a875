package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/smarttransit/seat-reservation-engine/internal/database"
	"github.com/smarttransit/seat-reservation-engine/internal/models"
	"github.com/smarttransit/seat-reservation-engine/internal/notification"
)

type ledgerKey struct {
	vehicleID int64
	date      string
	seat      int
}

// fakeStore is an in-memory ReservationStore with read-committed visibility.
// Transactions run concurrently: inserts and transitions are staged until
// commit, ledger claims are immediate and undone on rollback, and
// GetBySlugForUpdate holds a row lock until the transaction ends.
type fakeStore struct {
	mu           sync.Mutex
	nextID       int64
	reservations map[string]models.Reservation
	ledger       map[ledgerKey]int64
	rowLocks     map[string]*sync.Mutex
	clock        func() time.Time

	insertErrs []error
	txErr      error
	commits    int

	routes        []models.RoutePopularity
	gotRouteLimit int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reservations: make(map[string]models.Reservation),
		ledger:       make(map[ledgerKey]int64),
		rowLocks:     make(map[string]*sync.Mutex),
		clock:        time.Now,
	}
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(tx database.ReservationTx) error) error {
	s.mu.Lock()
	txErr := s.txErr
	s.mu.Unlock()
	if txErr != nil {
		return txErr
	}

	tx := &fakeTx{
		s:       s,
		staged:  make(map[string]models.Reservation),
		claimed: make(map[ledgerKey]int64),
	}
	err := fn(tx)

	s.mu.Lock()
	if err != nil {
		for key, owner := range tx.claimed {
			if s.ledger[key] == owner {
				delete(s.ledger, key)
			}
		}
	} else {
		for slug, r := range tx.staged {
			s.reservations[slug] = r
		}
		for _, id := range tx.released {
			s.release(id)
		}
		s.commits++
	}
	s.mu.Unlock()

	for _, lock := range tx.locked {
		lock.Unlock()
	}
	return err
}

func (s *fakeStore) rowLock(slug string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.rowLocks[slug]
	if !ok {
		lock = &sync.Mutex{}
		s.rowLocks[slug] = lock
	}
	return lock
}

func (s *fakeStore) occupied(vehicleID int64, date models.Date, extra map[string]models.Reservation) []int {
	seen := make(map[int]bool)
	collect := func(r models.Reservation) {
		if r.VehicleID == vehicleID && r.TravelDate.Equal(date) && r.Status.IsActive() {
			for _, seat := range r.SeatNumbers {
				seen[seat] = true
			}
		}
	}
	for _, r := range s.reservations {
		collect(r)
	}
	for _, r := range extra {
		collect(r)
	}
	out := []int{}
	for seat := range seen {
		out = append(out, seat)
	}
	sort.Ints(out)
	return out
}

func (s *fakeStore) OccupiedSeats(ctx context.Context, vehicleID int64, travelDate models.Date) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occupied(vehicleID, travelDate, nil), nil
}

func (s *fakeStore) GetBySlug(ctx context.Context, slug string) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[slug]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &r, nil
}

func (s *fakeStore) List(ctx context.Context, filter models.ReservationFilter) ([]models.Reservation, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.Reservation
	for _, r := range s.reservations {
		if filter.UserID != nil && r.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.FromDate != nil && r.TravelDate.Before(*filter.FromDate) {
			continue
		}
		if filter.ToDate != nil && filter.ToDate.Before(r.TravelDate) {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	page := []models.Reservation{}
	for i := filter.Offset(); i < len(matched) && len(page) < filter.Limit; i++ {
		page = append(page, matched[i])
	}
	return page, len(matched), nil
}

func (s *fakeStore) ListManifest(ctx context.Context, vehicleID int64, travelDate models.Date) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Reservation{}
	for _, r := range s.reservations {
		if r.VehicleID != vehicleID || !r.TravelDate.Equal(travelDate) {
			continue
		}
		if r.Status == models.ReservationCancelled {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SeatNumbers[0] != out[j].SeatNumbers[0] {
			return out[i].SeatNumbers[0] < out[j].SeatNumbers[0]
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *fakeStore) Statistics(ctx context.Context, from, to *time.Time) (*models.BookingStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &models.BookingStatistics{TotalRevenue: decimal.Zero}
	for _, r := range s.reservations {
		if from != nil && r.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && !r.CreatedAt.Before(*to) {
			continue
		}
		stats.TotalBookings++
		switch r.Status {
		case models.ReservationPending:
			stats.PendingBookings++
		case models.ReservationConfirmed:
			stats.ConfirmedBookings++
			stats.TotalSeatsSold += r.SeatCount()
		case models.ReservationCancelled:
			stats.CancelledBookings++
		case models.ReservationCompleted:
			stats.CompletedBookings++
			stats.TotalSeatsSold += r.SeatCount()
		}
		if r.PaymentStatus == models.PaymentPaid {
			stats.PaidBookings++
			stats.TotalRevenue = stats.TotalRevenue.Add(r.TotalAmount)
		}
	}
	return stats, nil
}

func (s *fakeStore) PopularRoutes(ctx context.Context, limit int) ([]models.RoutePopularity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gotRouteLimit = limit
	out := []models.RoutePopularity{}
	for i := 0; i < len(s.routes) && i < limit; i++ {
		out = append(out, s.routes[i])
	}
	return out, nil
}

func (s *fakeStore) SweepDeparted(ctx context.Context, cutoff time.Time, expiredReason string) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := []models.Reservation{}
	for slug, r := range s.reservations {
		if !r.Status.IsActive() || !r.DepartureAt.Before(cutoff) {
			continue
		}
		if r.Status == models.ReservationConfirmed {
			r.Status = models.ReservationCompleted
		} else {
			reason := expiredReason
			r.Status = models.ReservationCancelled
			r.CancellationReason = &reason
		}
		s.reservations[slug] = r
		s.release(r.ID)
		swept = append(swept, r)
	}
	return swept, nil
}

func (s *fakeStore) release(id int64) {
	for k, owner := range s.ledger {
		if owner == id {
			delete(s.ledger, k)
		}
	}
}

func (s *fakeStore) ledgerSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ledger)
}

// seedLedger records a claim on seat that no committed reservation owns,
// as a concurrent transaction that has claimed but not yet committed would
func (s *fakeStore) seedLedger(vehicleID int64, date models.Date, seat int, owner int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger[ledgerKey{vehicleID, date.String(), seat}] = owner
}

func (s *fakeStore) ledgerOwners() map[ledgerKey]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[ledgerKey]int64, len(s.ledger))
	for k, v := range s.ledger {
		out[k] = v
	}
	return out
}

type fakeTx struct {
	s        *fakeStore
	staged   map[string]models.Reservation
	claimed  map[ledgerKey]int64
	released []int64
	locked   []*sync.Mutex
}

func (t *fakeTx) OccupiedSeats(ctx context.Context, vehicleID int64, travelDate models.Date) ([]int, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.occupied(vehicleID, travelDate, t.staged), nil
}

func (t *fakeTx) Insert(ctx context.Context, r *models.Reservation) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if len(t.s.insertErrs) > 0 {
		err := t.s.insertErrs[0]
		t.s.insertErrs = t.s.insertErrs[1:]
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	if _, exists := t.s.reservations[r.Slug]; exists {
		return &pq.Error{Code: "23505", Constraint: "reservations_slug_key"}
	}
	t.s.nextID++
	r.ID = t.s.nextID
	r.CreatedAt = t.s.clock()
	r.UpdatedAt = r.CreatedAt
	t.staged[r.Slug] = *r
	return nil
}

func (t *fakeTx) ClaimSeats(ctx context.Context, r *models.Reservation) ([]int, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	claimed := []int{}
	for _, seat := range r.SeatNumbers {
		key := ledgerKey{r.VehicleID, r.TravelDate.String(), seat}
		if _, taken := t.s.ledger[key]; taken {
			continue
		}
		t.s.ledger[key] = r.ID
		t.claimed[key] = r.ID
		claimed = append(claimed, seat)
	}
	sort.Ints(claimed)
	return claimed, nil
}

func (t *fakeTx) GetBySlugForUpdate(ctx context.Context, slug string) (*models.Reservation, error) {
	if r, ok := t.staged[slug]; ok {
		return &r, nil
	}

	lock := t.s.rowLock(slug)
	lock.Lock()
	t.locked = append(t.locked, lock)

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	r, ok := t.s.reservations[slug]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &r, nil
}

func (t *fakeTx) SaveTransition(ctx context.Context, r *models.Reservation) error {
	t.s.mu.Lock()
	_, committed := t.s.reservations[r.Slug]
	t.s.mu.Unlock()
	if _, staged := t.staged[r.Slug]; !committed && !staged {
		return database.ErrNotFound
	}
	r.UpdatedAt = time.Now()
	t.staged[r.Slug] = *r
	return nil
}

func (t *fakeTx) ReleaseSeats(ctx context.Context, reservationID int64) error {
	t.released = append(t.released, reservationID)
	return nil
}

type fakeVehicles map[int64]*models.Vehicle

func (f fakeVehicles) GetByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	v, ok := f[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *v
	return &copied, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (n *recordingNotifier) Notify(event notification.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) types() []notification.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notification.EventType, len(n.events))
	for i, e := range n.events {
		out[i] = e.Type
	}
	return out
}
