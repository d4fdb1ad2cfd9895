package repository

import (
	"context"
	"time"

	"rentalshop/internal/domain/model"
)

// 予約の絞り込み条件。nilは条件なし。
// From/To は両端を含む期間重複で絞る。
type BookingFilter struct {
	UserID           *int64
	ProductID        *int64
	From             *time.Time
	To               *time.Time
	ExcludeCancelled bool
}

type BookingRepository interface {
	Create(ctx context.Context, b model.Booking) (model.Booking, error)
	FindByID(ctx context.Context, id int64) (model.Booking, error)
	// id昇順
	List(ctx context.Context, f BookingFilter) ([]model.Booking, error)
	Update(ctx context.Context, b model.Booking) error
	Delete(ctx context.Context, id int64) error
}
