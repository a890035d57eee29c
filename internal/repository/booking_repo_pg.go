package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

func (r *PGBookingRepository) CommitReservation(ctx context.Context, booking *domain.Booking, expectedAvailable int) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin reservation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The row lock taken by UPDATE serializes writers from every process;
	// the equality guard turns a stale read into a conflict instead of a
	// wrong seat number.
	var total, available int
	err = tx.QueryRow(ctx, `UPDATE trains SET available_seats = available_seats - 1
		WHERE id=$1 AND available_seats=$2 AND available_seats > 0
		RETURNING total_seats, available_seats`, booking.TrainID, expectedAvailable).Scan(&total, &available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.classifyMiss(ctx, tx, booking.TrainID)
		}
		return fmt.Errorf("decrement seats: %w", err)
	}

	seat := total - available
	if booking.SeatNumber != 0 && booking.SeatNumber != seat {
		return domain.ErrSeatConflict
	}
	booking.SeatNumber = seat

	err = tx.QueryRow(ctx, `INSERT INTO bookings (user_id, train_id, seat_number, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, booking.UserID, booking.TrainID, booking.SeatNumber, booking.CreatedAt).Scan(&booking.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrSeatConflict
		}
		return fmt.Errorf("insert booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reservation: %w", err)
	}
	return nil
}

func (r *PGBookingRepository) classifyMiss(ctx context.Context, tx pgx.Tx, trainID int64) error {
	var available int
	err := tx.QueryRow(ctx, `SELECT available_seats FROM trains WHERE id=$1`, trainID).Scan(&available)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.ErrTrainNotFound
	case err != nil:
		return fmt.Errorf("read seats: %w", err)
	case available <= 0:
		return domain.ErrSoldOut
	default:
		return domain.ErrSeatConflict
	}
}

func (r *PGBookingRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT id, user_id, train_id, seat_number, created_at FROM bookings WHERE user_id=$1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *PGBookingRepository) ListByTrain(ctx context.Context, trainID int64) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT id, user_id, train_id, seat_number, created_at FROM bookings WHERE train_id=$1 ORDER BY seat_number`, trainID)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(&b.ID, &b.UserID, &b.TrainID, &b.SeatNumber, &b.CreatedAt); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

var _ BookingRepository = (*PGBookingRepository)(nil)
