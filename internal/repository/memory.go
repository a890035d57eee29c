package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
)

// MemoryStore keeps users, trains and bookings in process memory. It backs
// the "memory" storage mode and the service tests, and gives the same
// atomicity guarantees as the Postgres repositories: every method runs
// under one mutex, so CommitReservation is all-or-nothing.
type MemoryStore struct {
	mu sync.RWMutex

	users       map[int64]domain.User
	usersByName map[string]int64
	trains      map[int64]domain.Train
	bookings    []domain.Booking
	seats       map[int64]map[int]struct{}

	nextUserID    int64
	nextTrainID   int64
	nextBookingID int64

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[int64]domain.User),
		usersByName: make(map[string]int64),
		trains:      make(map[int64]domain.Train),
		seats:       make(map[int64]map[int]struct{}),
		now:         time.Now,
	}
}

func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }
func (s *MemoryStore) Trains() TrainRepository { return memoryTrains{s} }
func (s *MemoryStore) Bookings() BookingRepository { return memoryBookings{s} }

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usersByName[user.Username]; taken {
		return domain.ErrUsernameTaken
	}
	s.nextUserID++
	user.ID = s.nextUserID
	user.CreatedAt = s.now().UTC()
	s.users[user.ID] = *user
	s.usersByName[user.Username] = user.ID
	return nil
}

func (r memoryUsers) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (r memoryUsers) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.usersByName[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u := r.s.users[id]
	return &u, nil
}

type memoryTrains struct{ s *MemoryStore }

func (r memoryTrains) Create(ctx context.Context, train *domain.Train) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTrainID++
	train.ID = s.nextTrainID
	train.CreatedAt = s.now().UTC()
	s.trains[train.ID] = *train
	return nil
}

func (r memoryTrains) GetByID(ctx context.Context, id int64) (*domain.Train, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.trains[id]
	if !ok {
		return nil, domain.ErrTrainNotFound
	}
	return &t, nil
}

func (r memoryTrains) FindByRoute(ctx context.Context, source, destination string) ([]domain.Train, error) {
	return r.filter(ctx, func(t domain.Train) bool {
		return t.Source == source && t.Destination == destination
	})
}

func (r memoryTrains) List(ctx context.Context) ([]domain.Train, error) {
	return r.filter(ctx, func(domain.Train) bool { return true })
}

func (r memoryTrains) filter(ctx context.Context, keep func(domain.Train) bool) ([]domain.Train, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	trains := make([]domain.Train, 0)
	for _, t := range r.s.trains {
		if keep(t) {
			trains = append(trains, t)
		}
	}
	sort.Slice(trains, func(i, j int) bool { return trains[i].ID < trains[j].ID })
	return trains, nil
}

type memoryBookings struct{ s *MemoryStore }

func (r memoryBookings) CommitReservation(ctx context.Context, booking *domain.Booking, expectedAvailable int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trains[booking.TrainID]
	switch {
	case !ok:
		return domain.ErrTrainNotFound
	case t.AvailableSeats <= 0:
		return domain.ErrSoldOut
	case t.AvailableSeats != expectedAvailable:
		return domain.ErrSeatConflict
	}

	seat := t.TotalSeats - (t.AvailableSeats - 1)
	if booking.SeatNumber != 0 && booking.SeatNumber != seat {
		return domain.ErrSeatConflict
	}
	taken := s.seats[t.ID]
	if taken == nil {
		taken = make(map[int]struct{})
		s.seats[t.ID] = taken
	}
	if _, dup := taken[seat]; dup {
		return domain.ErrSeatConflict
	}

	t.AvailableSeats--
	s.trains[t.ID] = t
	taken[seat] = struct{}{}

	s.nextBookingID++
	booking.ID = s.nextBookingID
	booking.SeatNumber = seat
	s.bookings = append(s.bookings, *booking)
	return nil
}

func (r memoryBookings) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	bookings, err := r.filter(ctx, func(b domain.Booking) bool { return b.UserID == userID })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(bookings, func(i, j int) bool {
		if bookings[i].CreatedAt.Equal(bookings[j].CreatedAt) {
			return bookings[i].ID < bookings[j].ID
		}
		return bookings[i].CreatedAt.Before(bookings[j].CreatedAt)
	})
	return bookings, nil
}

func (r memoryBookings) ListByTrain(ctx context.Context, trainID int64) ([]domain.Booking, error) {
	bookings, err := r.filter(ctx, func(b domain.Booking) bool { return b.TrainID == trainID })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(bookings, func(i, j int) bool { return bookings[i].SeatNumber < bookings[j].SeatNumber })
	return bookings, nil
}

func (r memoryBookings) filter(ctx context.Context, keep func(domain.Booking) bool) ([]domain.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	bookings := make([]domain.Booking, 0)
	for _, b := range r.s.bookings {
		if keep(b) {
			bookings = append(bookings, b)
		}
	}
	return bookings, nil
}

var (
	_ UserRepository    = memoryUsers{}
	_ TrainRepository   = memoryTrains{}
	_ BookingRepository = memoryBookings{}
)
