package domain

import "time"

type Train struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Source         string    `json:"source"`
	Destination    string    `json:"destination"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
	CreatedAt      time.Time `json:"created_at"`
}

// BookedSeats is the number of seats claimed so far, which is also the
// highest seat number issued.
func (t *Train) BookedSeats() int {
	return t.TotalSeats - t.AvailableSeats
}

// NextSeatNumber is the seat a successful reservation would assign.
func (t *Train) NextSeatNumber() int {
	return t.BookedSeats() + 1
}

func (t *Train) SoldOut() bool {
	return t.AvailableSeats <= 0
}
