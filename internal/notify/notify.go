package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/kafka"
	"go.uber.org/zap"
)

type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// Sender delivers booking notifications. Delivery is a structured log line;
// there is no outbound mail transport.
type Sender struct {
	users UserLookup
	log   *zap.Logger
}

func NewSender(users UserLookup, log *zap.Logger) *Sender {
	return &Sender{users: users, log: log}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	recipient := fmt.Sprintf("user #%d", event.UserID)
	if s.users != nil {
		user, err := s.users.GetByID(ctx, event.UserID)
		switch {
		case err == nil:
			recipient = user.Username
		case errors.Is(err, domain.ErrUserNotFound):
			s.log.Warn("notification for unknown user", zap.Int64("user_id", event.UserID))
			return nil
		default:
			return fmt.Errorf("resolve recipient: %w", err)
		}
	}

	s.log.Info("notification sent",
		zap.String("to", recipient),
		zap.String("type", event.Type),
		zap.String("body", Message(event)),
	)
	return nil
}

func Message(event kafka.BookingEvent) string {
	switch event.Type {
	case kafka.EventBookingCreated:
		train := event.TrainName
		if train == "" {
			train = fmt.Sprintf("train %d", event.TrainID)
		}
		return fmt.Sprintf("Booking %d confirmed: seat %d on %s.", event.BookingID, event.SeatNumber, train)
	default:
		return fmt.Sprintf("Booking %d: %s.", event.BookingID, event.Type)
	}
}
