package reservation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/Domenick1991/railbooking/internal/pkg/metrics"
	"github.com/Domenick1991/railbooking/internal/repository"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTrainRepository struct {
	mock.Mock
}

func (m *MockTrainRepository) Create(ctx context.Context, train *domain.Train) error {
	args := m.Called(ctx, train)
	return args.Error(0)
}

func (m *MockTrainRepository) GetByID(ctx context.Context, id int64) (*domain.Train, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Train), args.Error(1)
}

func (m *MockTrainRepository) FindByRoute(ctx context.Context, source, destination string) ([]domain.Train, error) {
	args := m.Called(ctx, source, destination)
	return args.Get(0).([]domain.Train), args.Error(1)
}

func (m *MockTrainRepository) List(ctx context.Context) ([]domain.Train, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Train), args.Error(1)
}

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) CommitReservation(ctx context.Context, booking *domain.Booking, expectedAvailable int) error {
	args := m.Called(ctx, booking, expectedAvailable)
	return args.Error(0)
}

func (m *MockBookingRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListByTrain(ctx context.Context, trainID int64) ([]domain.Booking, error) {
	args := m.Called(ctx, trainID)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

type MockRouteInvalidator struct {
	mock.Mock
}

func (m *MockRouteInvalidator) InvalidateRoute(ctx context.Context, source, destination string) error {
	args := m.Called(ctx, source, destination)
	return args.Error(0)
}

// fakeTrainLocker counts lock traffic and fails if a train is locked twice.
type fakeTrainLocker struct {
	mu       sync.Mutex
	held     map[int64]bool
	acquired int
	released int
	fail     error
}

func (f *fakeTrainLocker) LockTrain(ctx context.Context, trainID int64, ttl time.Duration) (func(context.Context) error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	if f.held == nil {
		f.held = make(map[int64]bool)
	}
	if f.held[trainID] {
		return nil, errors.New("train lock held twice")
	}
	f.held[trainID] = true
	f.acquired++
	return func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.held[trainID] = false
		f.released++
		return nil
	}, nil
}

func seedTrain(t *testing.T, store *repository.MemoryStore, capacity int) *domain.Train {
	t.Helper()
	train := &domain.Train{Name: "Express", Source: "Delhi", Destination: "Mumbai", TotalSeats: capacity, AvailableSeats: capacity}
	require.NoError(t, store.Trains().Create(context.Background(), train))
	return train
}

func reserveConcurrently(e *Engine, trainID int64, n int) ([]*domain.Booking, []error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		bookings []*domain.Booking
		errs     []error
		start    = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			<-start
			b, err := e.Reserve(context.Background(), trainID, userID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			bookings = append(bookings, b)
		}(int64(i + 1))
	}
	close(start)
	wg.Wait()
	return bookings, errs
}

func seatNumbers(bookings []*domain.Booking) []int {
	seats := make([]int, 0, len(bookings))
	for _, b := range bookings {
		seats = append(seats, b.SeatNumber)
	}
	sort.Ints(seats)
	return seats
}

func TestEngine_Reserve_Success(t *testing.T) {
	store := repository.NewMemoryStore()
	train := seedTrain(t, store, 3)
	now := time.Date(2026, 2, 1, 9, 30, 0, 0, time.FixedZone("IST", 19800))
	engine := NewEngine(store.Trains(), store.Bookings(), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	booking, err := engine.Reserve(ctx, train.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, booking.SeatNumber)
	assert.Equal(t, int64(10), booking.UserID)
	assert.Equal(t, train.ID, booking.TrainID)
	assert.NotZero(t, booking.ID)
	assert.Equal(t, time.UTC, booking.CreatedAt.Location())
	assert.True(t, booking.CreatedAt.Equal(now))

	got, err := store.Trains().GetByID(ctx, train.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableSeats)
}

func TestEngine_Reserve_CapacityTwoThreeCallers(t *testing.T) {
	store := repository.NewMemoryStore()
	train := seedTrain(t, store, 2)
	engine := NewEngine(store.Trains(), store.Bookings())

	bookings, errs := reserveConcurrently(engine, train.ID, 3)

	assert.Equal(t, []int{1, 2}, seatNumbers(bookings))
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], domain.ErrSoldOut)

	got, err := store.Trains().GetByID(context.Background(), train.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableSeats)
}

func TestEngine_Reserve_NoOversell(t *testing.T) {
	const capacity, callers = 20, 64

	store := repository.NewMemoryStore()
	train := seedTrain(t, store, capacity)
	engine := NewEngine(store.Trains(), store.Bookings())

	bookings, errs := reserveConcurrently(engine, train.ID, callers)

	expected := make([]int, capacity)
	for i := range expected {
		expected[i] = i + 1
	}
	assert.Equal(t, expected, seatNumbers(bookings))
	assert.Len(t, errs, callers-capacity)
	for _, err := range errs {
		assert.ErrorIs(t, err, domain.ErrSoldOut)
	}

	discrepancies, err := engine.Audit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, discrepancies)
}

func TestEngine_Reserve_TrainNotFound(t *testing.T) {
	store := repository.NewMemoryStore()
	train := seedTrain(t, store, 1)
	m := metrics.New(nil)
	engine := NewEngine(store.Trains(), store.Bookings(), WithMetrics(m))
	ctx := context.Background()

	booking, err := engine.Reserve(ctx, 999, 1)
	assert.Nil(t, booking)
	assert.ErrorIs(t, err, domain.ErrTrainNotFound)

	got, err := store.Trains().GetByID(ctx, train.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AvailableSeats)
	all, err := store.Bookings().ListByTrain(ctx, train.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 0, engine.locks.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReservationsTotal.WithLabelValues(metrics.OutcomeTrainNotFound)))
}

func TestEngine_Reserve_SoldOutLeavesStateUnchanged(t *testing.T) {
	store := repository.NewMemoryStore()
	train := seedTrain(t, store, 1)
	engine := NewEngine(store.Trains(), store.Bookings())
	ctx := context.Background()

	_, err := engine.Reserve(ctx, train.ID, 1)
	require.NoError(t, err)

	_, err = engine.Reserve(ctx, train.ID, 2)
	assert.ErrorIs(t, err, domain.ErrSoldOut)
	assert.Equal(t, domain.KindReservation, domain.KindOf(err))

	got, err := store.Trains().GetByID(ctx, train.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableSeats)
	booked, err := store.Bookings().ListByTrain(ctx, train.ID)
	require.NoError(t, err)
	assert.Len(t, booked, 1)
}

func TestEngine_Reserve_FIFO(t *testing.T) {
	store := repository.NewMemoryStore()
	train := seedTrain(t, store, 10)
	engine := NewEngine(store.Trains(), store.Bookings())
	ctx := context.Background()

	unlock, err := engine.locks.Lock(ctx, train.ID)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		seats = make(map[int64]int)
	)
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			b, err := engine.Reserve(ctx, train.ID, userID)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seats[userID] = b.SeatNumber
			mu.Unlock()
		}(int64(i))
		require.Eventually(t, func() bool { return engine.locks.Waiters(train.ID) == i }, time.Second, time.Millisecond)
	}

	unlock()
	wg.Wait()

	for userID := int64(1); userID <= 5; userID++ {
		assert.Equal(t, int(userID), seats[userID], "user %d", userID)
	}
}

func TestEngine_Reserve_DifferentTrainsDoNotContend(t *testing.T) {
	store := repository.NewMemoryStore()
	busy := seedTrain(t, store, 1)
	free := seedTrain(t, store, 1)
	engine := NewEngine(store.Trains(), store.Bookings())
	ctx := context.Background()

	unlock, err := engine.locks.Lock(ctx, busy.ID)
	require.NoError(t, err)
	defer unlock()

	done := make(chan error, 1)
	go func() {
		_, err := engine.Reserve(ctx, free.ID, 1)
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reservation on an idle train waited for a busy one")
	}
}

func TestEngine_Reserve_AbandonedWhileWaiting(t *testing.T) {
	store := repository.NewMemoryStore()
	train := seedTrain(t, store, 2)
	m := metrics.New(nil)
	engine := NewEngine(store.Trains(), store.Bookings(), WithMetrics(m))

	unlock, err := engine.locks.Lock(context.Background(), train.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := engine.Reserve(ctx, train.ID, 1)
		done <- err
	}()
	require.Eventually(t, func() bool { return engine.locks.Waiters(train.ID) == 1 }, time.Second, time.Millisecond)
	cancel()

	err = <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	unlock()

	got, err := store.Trains().GetByID(context.Background(), train.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableSeats)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReservationsTotal.WithLabelValues(metrics.OutcomeAbandoned)))

	// The next caller still gets seat 1.
	b, err := engine.Reserve(context.Background(), train.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, b.SeatNumber)
}

func TestEngine_Reserve_AcquireTimeout(t *testing.T) {
	store := repository.NewMemoryStore()
	train := seedTrain(t, store, 2)
	engine := NewEngine(store.Trains(), store.Bookings(), WithAcquireTimeout(20*time.Millisecond))

	unlock, err := engine.locks.Lock(context.Background(), train.ID)
	require.NoError(t, err)
	defer unlock()

	_, err = engine.Reserve(context.Background(), train.ID, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))
	assert.Equal(t, "lock_timeout", domain.CodeOf(err))
}

func TestEngine_Reserve_CancelAfterLockStillCommits(t *testing.T) {
	mockTrains := &MockTrainRepository{}
	mockBookings := &MockBookingRepository{}
	engine := NewEngine(mockTrains, mockBookings)

	ctx, cancel := context.WithCancel(context.Background())
	train := &domain.Train{ID: 1, Name: "A", Source: "X", Destination: "Y", TotalSeats: 5, AvailableSeats: 5}
	mockTrains.On("GetByID", mock.Anything, int64(1)).Return(train, nil).Twice()
	mockBookings.On("CommitReservation", mock.Anything, mock.AnythingOfType("*domain.Booking"), 5).
		Run(func(args mock.Arguments) {
			// The caller gives up mid-commit; the commit context must not follow.
			cancel()
			assert.NoError(t, args.Get(0).(context.Context).Err())
			args.Get(1).(*domain.Booking).ID = 77
		}).Return(nil).Once()

	booking, err := engine.Reserve(ctx, 1, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(77), booking.ID)
	assert.Equal(t, 1, booking.SeatNumber)

	mockTrains.AssertExpectations(t)
	mockBookings.AssertExpectations(t)
}

func TestEngine_Reserve_RetriesSeatConflict(t *testing.T) {
	mockTrains := &MockTrainRepository{}
	mockBookings := &MockBookingRepository{}
	m := metrics.New(nil)
	engine := NewEngine(mockTrains, mockBookings, WithMetrics(m))
	ctx := context.Background()

	stale := &domain.Train{ID: 1, TotalSeats: 5, AvailableSeats: 5}
	fresh := &domain.Train{ID: 1, TotalSeats: 5, AvailableSeats: 3}
	mockTrains.On("GetByID", mock.Anything, int64(1)).Return(stale, nil).Twice()
	mockTrains.On("GetByID", mock.Anything, int64(1)).Return(fresh, nil).Once()
	mockBookings.On("CommitReservation", mock.Anything, mock.AnythingOfType("*domain.Booking"), 5).Return(domain.ErrSeatConflict).Once()
	mockBookings.On("CommitReservation", mock.Anything, mock.AnythingOfType("*domain.Booking"), 3).Return(nil).Once()

	booking, err := engine.Reserve(ctx, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, booking.SeatNumber)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitConflicts))

	mockTrains.AssertExpectations(t)
	mockBookings.AssertExpectations(t)
}

func TestEngine_Reserve_ConflictRetriesExhausted(t *testing.T) {
	mockTrains := &MockTrainRepository{}
	mockBookings := &MockBookingRepository{}
	engine := NewEngine(mockTrains, mockBookings, WithCommitRetries(1))
	ctx := context.Background()

	train := &domain.Train{ID: 1, TotalSeats: 5, AvailableSeats: 5}
	mockTrains.On("GetByID", mock.Anything, int64(1)).Return(train, nil)
	mockBookings.On("CommitReservation", mock.Anything, mock.Anything, 5).Return(domain.ErrSeatConflict).Twice()

	booking, err := engine.Reserve(ctx, 1, 4)
	assert.Nil(t, booking)
	assert.ErrorIs(t, err, domain.ErrSeatConflict)
	mockBookings.AssertExpectations(t)
}

func TestEngine_Reserve_CommitErrorPropagates(t *testing.T) {
	mockTrains := &MockTrainRepository{}
	mockBookings := &MockBookingRepository{}
	mockProducer := &MockProducer{}
	engine := NewEngine(mockTrains, mockBookings, WithEvents(mockProducer, "bookings", ""))
	ctx := context.Background()

	train := &domain.Train{ID: 1, TotalSeats: 5, AvailableSeats: 5}
	dbErr := errors.New("database error")
	mockTrains.On("GetByID", mock.Anything, int64(1)).Return(train, nil)
	mockBookings.On("CommitReservation", mock.Anything, mock.Anything, 5).Return(dbErr).Once()

	booking, err := engine.Reserve(ctx, 1, 4)
	assert.Nil(t, booking)
	assert.Equal(t, dbErr, err)
	mockProducer.AssertNotCalled(t, "Publish")
	assert.Equal(t, 0, engine.locks.Len())
}

func TestEngine_Reserve_PublishesAndInvalidates(t *testing.T) {
	store := repository.NewMemoryStore()
	train := seedTrain(t, store, 2)
	mockProducer := &MockProducer{}
	mockRoutes := &MockRouteInvalidator{}
	engine := NewEngine(store.Trains(), store.Bookings(),
		WithEvents(mockProducer, "bookings", "notifications"),
		WithRouteCache(mockRoutes),
	)

	isCreated := mock.MatchedBy(func(e kafka.BookingEvent) bool {
		return e.Type == kafka.EventBookingCreated && e.SeatNumber == 1 && e.UserID == 3 && e.TrainName == "Express"
	})
	mockRoutes.On("InvalidateRoute", mock.Anything, "Delhi", "Mumbai").Return(nil).Once()
	mockProducer.On("Publish", mock.Anything, "bookings", "1", isCreated).Return(nil).Once()
	mockProducer.On("Publish", mock.Anything, "notifications", "1", isCreated).Return(nil).Once()

	_, err := engine.Reserve(context.Background(), train.ID, 3)
	require.NoError(t, err)

	mockProducer.AssertExpectations(t)
	mockRoutes.AssertExpectations(t)
}

func TestEngine_Reserve_PublishFailureDoesNotFailBooking(t *testing.T) {
	store := repository.NewMemoryStore()
	train := seedTrain(t, store, 2)
	mockProducer := &MockProducer{}
	engine := NewEngine(store.Trains(), store.Bookings(), WithEvents(mockProducer, "bookings", "notifications"))

	mockProducer.On("Publish", mock.Anything, "bookings", "1", mock.Anything).Return(errors.New("kafka down")).Once()

	booking, err := engine.Reserve(context.Background(), train.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, booking.SeatNumber)
	mockProducer.AssertNotCalled(t, "Publish", mock.Anything, "notifications", mock.Anything, mock.Anything)
}

func TestEngine_Reserve_DistributedLock(t *testing.T) {
	store := repository.NewMemoryStore()
	train := seedTrain(t, store, 5)
	locker := &fakeTrainLocker{}
	engine := NewEngine(store.Trains(), store.Bookings(), WithDistributedLock(locker, time.Second))

	bookings, errs := reserveConcurrently(engine, train.ID, 8)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seatNumbers(bookings))
	assert.Len(t, errs, 3)
	assert.Equal(t, 8, locker.acquired)
	assert.Equal(t, 8, locker.released)
}

func TestEngine_Reserve_DistributedLockFailure(t *testing.T) {
	store := repository.NewMemoryStore()
	train := seedTrain(t, store, 5)
	locker := &fakeTrainLocker{fail: errors.New("redis down")}
	engine := NewEngine(store.Trains(), store.Bookings(), WithDistributedLock(locker, time.Second))
	ctx := context.Background()

	_, err := engine.Reserve(ctx, train.ID, 1)
	assert.ErrorContains(t, err, "redis down")
	assert.NotErrorIs(t, err, domain.ErrLockTimeout)
	assert.Equal(t, 0, engine.locks.Len())

	got, err := store.Trains().GetByID(ctx, train.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.AvailableSeats)
}

func TestEngine_Stamp_Monotonic(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC)
	engine := NewEngine(nil, nil, WithClock(func() time.Time { return clock }))

	first := engine.stamp()
	clock = clock.Add(-5 * time.Second)
	second := engine.stamp()
	assert.False(t, second.Before(first))
}

func TestEngine_BookingsForUser(t *testing.T) {
	store := repository.NewMemoryStore()
	a := seedTrain(t, store, 3)
	b := seedTrain(t, store, 3)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	engine := NewEngine(store.Trains(), store.Bookings(), WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	ctx := context.Background()

	_, err := engine.Reserve(ctx, b.ID, 1)
	require.NoError(t, err)
	_, err = engine.Reserve(ctx, a.ID, 2)
	require.NoError(t, err)
	_, err = engine.Reserve(ctx, a.ID, 1)
	require.NoError(t, err)

	mine, err := engine.BookingsForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, b.ID, mine[0].TrainID)
	assert.Equal(t, a.ID, mine[1].TrainID)
	assert.Equal(t, 2, mine[1].SeatNumber)
	assert.True(t, mine[0].CreatedAt.Before(mine[1].CreatedAt))

	none, err := engine.BookingsForUser(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, metrics.OutcomeBooked, outcome(nil))
	assert.Equal(t, metrics.OutcomeSoldOut, outcome(domain.ErrSoldOut))
	assert.Equal(t, metrics.OutcomeTrainNotFound, outcome(domain.ErrTrainNotFound))
	assert.Equal(t, metrics.OutcomeAbandoned, outcome(context.DeadlineExceeded))
	assert.Equal(t, metrics.OutcomeError, outcome(errors.New("boom")))
}
