package trains

import (
	"context"
	"strings"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/repository"
	"go.uber.org/zap"
)

type TrainUseCase interface {
	Create(ctx context.Context, input CreateTrainInput) (*domain.Train, error)
	FindByRoute(ctx context.Context, source, destination string) ([]domain.Train, error)
	GetByID(ctx context.Context, id int64) (*domain.Train, error)
}

// RouteCache holds availability snapshots per route. Implementations must
// return nil, nil on a miss.
type RouteCache interface {
	GetRoute(ctx context.Context, source, destination string) ([]domain.Train, error)
	SetRoute(ctx context.Context, source, destination string, trains []domain.Train) error
	InvalidateRoute(ctx context.Context, source, destination string) error
}

type CreateTrainInput struct {
	Name        string
	Source      string
	Destination string
	Capacity    int
}

type TrainService struct {
	repo  repository.TrainRepository
	cache RouteCache
	log   *zap.Logger
}

func NewTrainService(repo repository.TrainRepository, cache RouteCache, log *zap.Logger) *TrainService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TrainService{repo: repo, cache: cache, log: log}
}

func (s *TrainService) Create(ctx context.Context, input CreateTrainInput) (*domain.Train, error) {
	name := strings.TrimSpace(input.Name)
	source := strings.TrimSpace(input.Source)
	destination := strings.TrimSpace(input.Destination)
	switch {
	case name == "":
		return nil, domain.Invalid("name is required")
	case source == "":
		return nil, domain.Invalid("source is required")
	case destination == "":
		return nil, domain.Invalid("destination is required")
	case input.Capacity <= 0:
		return nil, domain.Invalid("capacity must be a positive integer")
	}

	train := &domain.Train{
		Name:           name,
		Source:         source,
		Destination:    destination,
		TotalSeats:     input.Capacity,
		AvailableSeats: input.Capacity,
	}
	if err := s.repo.Create(ctx, train); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateRoute(ctx, source, destination); err != nil {
			s.log.Warn("route cache invalidation failed", zap.Int64("train_id", train.ID), zap.Error(err))
		}
	}
	s.log.Info("train created",
		zap.Int64("train_id", train.ID),
		zap.String("source", source),
		zap.String("destination", destination),
		zap.Int("capacity", train.TotalSeats),
	)
	return train, nil
}

func (s *TrainService) FindByRoute(ctx context.Context, source, destination string) ([]domain.Train, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetRoute(ctx, source, destination); err == nil && cached != nil {
			return cached, nil
		}
	}

	trains, err := s.repo.FindByRoute(ctx, source, destination)
	if err != nil {
		return nil, err
	}
	if trains == nil {
		trains = make([]domain.Train, 0)
	}
	if s.cache != nil {
		_ = s.cache.SetRoute(ctx, source, destination, trains)
	}
	return trains, nil
}

func (s *TrainService) GetByID(ctx context.Context, id int64) (*domain.Train, error) {
	return s.repo.GetByID(ctx, id)
}

var _ TrainUseCase = (*TrainService)(nil)
