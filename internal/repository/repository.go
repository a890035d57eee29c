package repository

import (
	"context"

	"github.com/Domenick1991/railbooking/internal/domain"
)

type UserRepository interface {
	// Create fills user.ID and user.CreatedAt. A duplicate username yields
	// domain.ErrUsernameTaken.
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

type TrainRepository interface {
	Create(ctx context.Context, train *domain.Train) error
	GetByID(ctx context.Context, id int64) (*domain.Train, error)
	// FindByRoute returns trains matching both stations ordered by id. No
	// match is an empty slice, not an error.
	FindByRoute(ctx context.Context, source, destination string) ([]domain.Train, error)
	List(ctx context.Context) ([]domain.Train, error)
}

type BookingRepository interface {
	// CommitReservation decrements the train's available seats from
	// expectedAvailable to expectedAvailable-1 and appends booking in one
	// atomic unit. If the counter no longer equals expectedAvailable nothing
	// is written and domain.ErrSeatConflict is returned.
	CommitReservation(ctx context.Context, booking *domain.Booking, expectedAvailable int) error
	ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error)
	ListByTrain(ctx context.Context, trainID int64) ([]domain.Booking, error)
}
