package domain

import "time"

// Booking is one claimed seat. Bookings are never mutated after creation.
type Booking struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	TrainID    int64     `json:"train_id"`
	SeatNumber int       `json:"seat_number"`
	CreatedAt  time.Time `json:"created_at"`
}
