package reservation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"github.com/Domenick1991/railbooking/internal/lock"
	"github.com/Domenick1991/railbooking/internal/pkg/metrics"
	"github.com/Domenick1991/railbooking/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultCommitTimeout = 5 * time.Second
	defaultCommitRetries = 3
	sideEffectTimeout    = 2 * time.Second
)

type ReservationUseCase interface {
	Reserve(ctx context.Context, trainID, userID int64) (*domain.Booking, error)
	BookingsForUser(ctx context.Context, userID int64) ([]domain.Booking, error)
}

// TrainLocker is a lock shared between processes, held in addition to the
// in-process lock when several instances serve the same database.
type TrainLocker interface {
	LockTrain(ctx context.Context, trainID int64, ttl time.Duration) (func(context.Context) error, error)
}

type RouteInvalidator interface {
	InvalidateRoute(ctx context.Context, source, destination string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// Engine serializes reservations per train. Callers for the same train are
// served in arrival order; callers for different trains never wait on each
// other.
type Engine struct {
	trains   repository.TrainRepository
	bookings repository.BookingRepository
	locks    *lock.Keyed[int64]

	distLock    TrainLocker
	distLockTTL time.Duration

	routes             RouteInvalidator
	producer           Producer
	eventsTopic        string
	notificationsTopic string

	acquireTimeout time.Duration
	commitTimeout  time.Duration
	commitRetries  int

	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time

	stampMu   sync.Mutex
	lastStamp time.Time
}

type Option func(*Engine)

func WithDistributedLock(l TrainLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.distLock = l
		e.distLockTTL = ttl
	}
}

func WithRouteCache(r RouteInvalidator) Option {
	return func(e *Engine) {
		e.routes = r
	}
}

// WithEvents publishes booking_created to eventsTopic and, when set, to
// notificationsTopic.
func WithEvents(p Producer, eventsTopic, notificationsTopic string) Option {
	return func(e *Engine) {
		e.producer = p
		e.eventsTopic = eventsTopic
		e.notificationsTopic = notificationsTopic
	}
}

// WithAcquireTimeout bounds the wait for a train's lock. Zero waits until
// the caller's context is done.
func WithAcquireTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.acquireTimeout = d
	}
}

func WithCommitTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.commitTimeout = d
		}
	}
}

func WithCommitRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.commitRetries = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(trains repository.TrainRepository, bookings repository.BookingRepository, opts ...Option) *Engine {
	e := &Engine{
		trains:        trains,
		bookings:      bookings,
		locks:         lock.NewKeyed[int64](),
		commitTimeout: defaultCommitTimeout,
		commitRetries: defaultCommitRetries,
		log:           zap.NewNop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reserve claims the next free seat on trainID for userID.
func (e *Engine) Reserve(ctx context.Context, trainID, userID int64) (*domain.Booking, error) {
	train, err := e.trains.GetByID(ctx, trainID)
	if err != nil {
		e.record(err)
		return nil, err
	}

	booking, err := e.reserveLocked(ctx, trainID, userID)
	e.record(err)
	if err != nil {
		e.log.Debug("reservation rejected",
			zap.Int64("train_id", trainID), zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}

	e.afterCommit(ctx, train, booking)
	return booking, nil
}

func (e *Engine) reserveLocked(ctx context.Context, trainID, userID int64) (*domain.Booking, error) {
	acquireCtx := ctx
	if e.acquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, e.acquireTimeout)
		defer cancel()
	}

	waitStart := time.Now()
	unlock, err := e.locks.Lock(acquireCtx, trainID)
	if err != nil {
		return nil, waitError(trainID, err)
	}
	defer unlock()

	if e.distLock != nil {
		release, err := e.distLock.LockTrain(acquireCtx, trainID, e.distLockTTL)
		if err != nil {
			return nil, waitError(trainID, err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				e.log.Warn("train lock release failed", zap.Int64("train_id", trainID), zap.Error(err))
			}
		}()
	}
	if e.metrics != nil {
		e.metrics.LockWaitSeconds.Observe(time.Since(waitStart).Seconds())
	}

	// Past this point the caller can no longer abandon the reservation.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.commitTimeout)
	defer cancel()

	for attempt := 0; ; attempt++ {
		booking, err := e.commit(commitCtx, trainID, userID)
		if err == nil {
			return booking, nil
		}
		if !errors.Is(err, domain.ErrSeatConflict) || attempt >= e.commitRetries {
			return nil, err
		}
		if e.metrics != nil {
			e.metrics.CommitConflicts.Inc()
		}
		e.log.Debug("seat counter moved, retrying", zap.Int64("train_id", trainID), zap.Int("attempt", attempt+1))
	}
}

// waitError classifies a failed lock acquisition. Running out of time or
// being cancelled while queued is a lock timeout; anything else is passed on.
func waitError(trainID int64, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("wait for train %d: %w: %w", trainID, domain.ErrLockTimeout, err)
	}
	return fmt.Errorf("wait for train %d: %w", trainID, err)
}

// commit re-reads the counter and writes the decrement and the booking as
// one unit.
func (e *Engine) commit(ctx context.Context, trainID, userID int64) (*domain.Booking, error) {
	train, err := e.trains.GetByID(ctx, trainID)
	if err != nil {
		return nil, err
	}
	if train.SoldOut() {
		return nil, domain.ErrSoldOut
	}

	booking := &domain.Booking{
		UserID:     userID,
		TrainID:    trainID,
		SeatNumber: train.NextSeatNumber(),
		CreatedAt:  e.stamp(),
	}
	if err := e.bookings.CommitReservation(ctx, booking, train.AvailableSeats); err != nil {
		return nil, err
	}
	return booking, nil
}

// stamp returns the current UTC time, never earlier than a previous stamp.
func (e *Engine) stamp() time.Time {
	e.stampMu.Lock()
	defer e.stampMu.Unlock()

	now := e.now().UTC()
	if now.Before(e.lastStamp) {
		now = e.lastStamp
	}
	e.lastStamp = now
	return now
}

func (e *Engine) afterCommit(ctx context.Context, train *domain.Train, booking *domain.Booking) {
	e.log.Info("seat reserved",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("train_id", booking.TrainID),
		zap.Int64("user_id", booking.UserID),
		zap.Int("seat_number", booking.SeatNumber),
	)

	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if e.routes != nil {
		if err := e.routes.InvalidateRoute(sideCtx, train.Source, train.Destination); err != nil {
			e.log.Warn("route cache invalidation failed", zap.Int64("train_id", train.ID), zap.Error(err))
		}
	}

	if e.producer == nil || e.eventsTopic == "" {
		return
	}
	event := kafka.BookingEvent{
		Type:       kafka.EventBookingCreated,
		BookingID:  booking.ID,
		UserID:     booking.UserID,
		TrainID:    booking.TrainID,
		TrainName:  train.Name,
		SeatNumber: booking.SeatNumber,
		CreatedAt:  booking.CreatedAt,
	}
	key := strconv.FormatInt(booking.TrainID, 10)
	if err := e.producer.Publish(sideCtx, e.eventsTopic, key, event); err != nil {
		e.log.Warn("publish booking event failed", zap.Int64("booking_id", booking.ID), zap.Error(err))
		return
	}
	if e.notificationsTopic != "" {
		if err := e.producer.Publish(sideCtx, e.notificationsTopic, key, event); err != nil {
			e.log.Warn("publish notification failed", zap.Int64("booking_id", booking.ID), zap.Error(err))
		}
	}
}

func (e *Engine) record(err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.ReservationsTotal.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeBooked
	case errors.Is(err, domain.ErrSoldOut):
		return metrics.OutcomeSoldOut
	case errors.Is(err, domain.ErrTrainNotFound):
		return metrics.OutcomeTrainNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeAbandoned
	default:
		return metrics.OutcomeError
	}
}

// BookingsForUser lists a user's bookings, oldest first.
func (e *Engine) BookingsForUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	return e.bookings.ListByUser(ctx, userID)
}

var _ ReservationUseCase = (*Engine)(nil)
