package usecase

import (
	"context"

	"rentalshop/internal/domain/model"
)

// 予約の通知先。失敗しても予約自体は成功扱い（ログだけ残す）。
type BookingNotifier interface {
	BookingCreated(ctx context.Context, b model.Booking) error
	BookingStatusChanged(ctx context.Context, b model.Booking, from model.BookingStatus) error
}
