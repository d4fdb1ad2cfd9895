package notify

import (
	"context"

	"rentalshop/internal/domain/model"
	"rentalshop/internal/usecase"

	"github.com/sirupsen/logrus"
)

// LogNotifier は通知をログに出すだけ（Redisが無い環境用）。
type LogNotifier struct {
	log *logrus.Logger
}

func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) BookingCreated(ctx context.Context, b model.Booking) error {
	n.log.WithContext(ctx).WithFields(bookingFields(b)).Info("booking created")
	return nil
}

func (n *LogNotifier) BookingStatusChanged(ctx context.Context, b model.Booking, from model.BookingStatus) error {
	n.log.WithContext(ctx).WithFields(bookingFields(b)).WithField("from", from).Info("booking status changed")
	return nil
}

func bookingFields(b model.Booking) logrus.Fields {
	return logrus.Fields{
		"booking_id": b.ID,
		"product_id": b.ProductID,
		"user_id":    b.UserID,
		"status":     b.Status,
		"start_date": b.StartDate.Format("2006-01-02"),
		"end_date":   b.EndDate.Format("2006-01-02"),
	}
}

var _ usecase.BookingNotifier = (*LogNotifier)(nil)
