package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const trainColumns = `id, name, source, destination, total_seats, available_seats, created_at`

type PGTrainRepository struct {
	db *pgxpool.Pool
}

func NewTrainRepository(db *pgxpool.Pool) TrainRepository {
	return &PGTrainRepository{db: db}
}

func (r *PGTrainRepository) Create(ctx context.Context, train *domain.Train) error {
	return r.db.QueryRow(ctx, `INSERT INTO trains (name, source, destination, total_seats, available_seats)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`, train.Name, train.Source, train.Destination, train.TotalSeats, train.AvailableSeats).
		Scan(&train.ID, &train.CreatedAt)
}

func (r *PGTrainRepository) GetByID(ctx context.Context, id int64) (*domain.Train, error) {
	row := r.db.QueryRow(ctx, `SELECT `+trainColumns+` FROM trains WHERE id=$1`, id)
	var t domain.Train
	if err := row.Scan(&t.ID, &t.Name, &t.Source, &t.Destination, &t.TotalSeats, &t.AvailableSeats, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTrainNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *PGTrainRepository) FindByRoute(ctx context.Context, source, destination string) ([]domain.Train, error) {
	rows, err := r.db.Query(ctx, `SELECT `+trainColumns+` FROM trains WHERE source=$1 AND destination=$2 ORDER BY id`, source, destination)
	if err != nil {
		return nil, err
	}
	return collectTrains(rows)
}

func (r *PGTrainRepository) List(ctx context.Context) ([]domain.Train, error) {
	rows, err := r.db.Query(ctx, `SELECT `+trainColumns+` FROM trains ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectTrains(rows)
}

func collectTrains(rows pgx.Rows) ([]domain.Train, error) {
	defer rows.Close()

	trains := make([]domain.Train, 0)
	for rows.Next() {
		var t domain.Train
		if err := rows.Scan(&t.ID, &t.Name, &t.Source, &t.Destination, &t.TotalSeats, &t.AvailableSeats, &t.CreatedAt); err != nil {
			return nil, err
		}
		trains = append(trains, t)
	}
	return trains, rows.Err()
}

var _ TrainRepository = (*PGTrainRepository)(nil)
