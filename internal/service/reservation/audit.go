package reservation

import (
	"context"
	"fmt"
)

// Discrepancy is a train whose counter and ledger disagree.
type Discrepancy struct {
	TrainID int64
	Reason  string
}

// Audit checks every train: the counter stays within bounds, the number of
// bookings equals the seats taken, and seat numbers run 1..n without gaps.
// It reads without locking, so a reservation committing between the two
// reads of one train can show up as a transient mismatch.
func (e *Engine) Audit(ctx context.Context) ([]Discrepancy, error) {
	trains, err := e.trains.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list trains: %w", err)
	}

	var found []Discrepancy
	for _, t := range trains {
		if t.AvailableSeats < 0 || t.AvailableSeats > t.TotalSeats {
			found = append(found, Discrepancy{TrainID: t.ID,
				Reason: fmt.Sprintf("available seats %d outside 0..%d", t.AvailableSeats, t.TotalSeats)})
			continue
		}

		bookings, err := e.bookings.ListByTrain(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("list bookings for train %d: %w", t.ID, err)
		}
		if len(bookings) != t.BookedSeats() {
			found = append(found, Discrepancy{TrainID: t.ID,
				Reason: fmt.Sprintf("%d bookings for %d seats taken", len(bookings), t.BookedSeats())})
			continue
		}
		for i, b := range bookings {
			if b.SeatNumber != i+1 {
				found = append(found, Discrepancy{TrainID: t.ID,
					Reason: fmt.Sprintf("seat %d at position %d", b.SeatNumber, i+1)})
				break
			}
		}
	}
	return found, nil
}
