package usecase_test

import (
	"context"
	"errors"
	"testing"

	"rentalshop/internal/domain/model"
	"rentalshop/internal/infra/db/dbtest"
	"rentalshop/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type NotifierMock struct{ mock.Mock }

func (m *NotifierMock) BookingCreated(ctx context.Context, b model.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *NotifierMock) BookingStatusChanged(ctx context.Context, b model.Booking, from model.BookingStatus) error {
	args := m.Called(ctx, b, from)
	return args.Error(0)
}

func bookingInput(productID int64, start, end string) usecase.CreateBookingInput {
	return usecase.CreateBookingInput{
		ProductID:       productID,
		Price:           decimal.RequireFromString("45.00"),
		StartDate:       start,
		EndDate:         end,
		DeliveryAddress: "2-1 Marunouchi",
		DeliveryTime:    "10:00-12:00",
	}
}

func strPtr(s string) *string { return &s }

func TestCreateBooking_DatesValidatedFirst(t *testing.T) {
	env := newEnv(t)

	// 価格も住所も不正だが日付エラーが優先
	_, err := env.bookings.CreateBooking(context.Background(), user(1), usecase.CreateBookingInput{
		StartDate: "2026-05-10",
		EndDate:   "2026-05-09",
	})
	assert.ErrorIs(t, err, usecase.ErrValidation)
	assertErrContains(t, err, "end_date must be on or after start_date")

	_, err = env.bookings.CreateBooking(context.Background(), user(1), usecase.CreateBookingInput{
		StartDate: "yesterday",
		EndDate:   "2026-05-09",
	})
	assertErrContains(t, err, "invalid date")
}

func TestCreateBooking_RequiredFields(t *testing.T) {
	env := newEnv(t)
	p := dbtest.SeedProduct(t, env.db, "Camera", "20", 1)
	ctx := context.Background()

	in := bookingInput(p.ID, "2026-05-01", "2026-05-03")
	in.Price = decimal.Zero
	_, err := env.bookings.CreateBooking(ctx, user(1), in)
	assertErrContains(t, err, "price must be > 0")

	in = bookingInput(p.ID, "2026-05-01", "2026-05-03")
	in.DeliveryTime = ""
	_, err = env.bookings.CreateBooking(ctx, user(1), in)
	assertErrContains(t, err, "delivery_time required")

	_, err = env.bookings.CreateBooking(ctx, user(1), bookingInput(999, "2026-05-01", "2026-05-03"))
	assert.ErrorIs(t, err, usecase.ErrNotFound)
}

func TestCreateBooking_OverlapIsConflict(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p := dbtest.SeedProduct(t, env.db, "Camera", "20", 1)
	other := dbtest.SeedProduct(t, env.db, "Tripod", "5", 1)

	b, err := env.bookings.CreateBooking(ctx, user(1), bookingInput(p.ID, "2026-05-01", "2026-05-03"))
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusPending, b.Status)
	assert.Equal(t, int64(1), b.UserID)
	assert.Equal(t, day("2026-05-01"), b.StartDate.UTC())

	// 境界の日が重なる
	_, err = env.bookings.CreateBooking(ctx, user(2), bookingInput(p.ID, "2026-05-03", "2026-05-05"))
	assert.ErrorIs(t, err, usecase.ErrConflict)

	// 別商品は関係ない
	_, err = env.bookings.CreateBooking(ctx, user(2), bookingInput(other.ID, "2026-05-03", "2026-05-05"))
	assert.NoError(t, err)

	// 翌日からなら空いている
	_, err = env.bookings.CreateBooking(ctx, user(2), bookingInput(p.ID, "2026-05-04", "2026-05-05"))
	assert.NoError(t, err)
}

func TestCreateBooking_CancelledIsIgnored(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p := dbtest.SeedProduct(t, env.db, "Camera", "20", 1)

	b, err := env.bookings.CreateBooking(ctx, user(1), bookingInput(p.ID, "2026-05-01", "2026-05-03"))
	require.NoError(t, err)
	_, err = env.bookings.UpdateBooking(ctx, user(1), b.ID, usecase.UpdateBookingInput{Status: strPtr("cancelled")})
	require.NoError(t, err)

	_, err = env.bookings.CreateBooking(ctx, user(2), bookingInput(p.ID, "2026-05-02", "2026-05-02"))
	assert.NoError(t, err)
}

func TestCheckAvailability_IsStable(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p := dbtest.SeedProduct(t, env.db, "Camera", "20", 1)

	b, err := env.bookings.CreateBooking(ctx, user(1), bookingInput(p.ID, "2026-06-10", "2026-06-12"))
	require.NoError(t, err)

	first, err := env.bookings.CheckAvailability(ctx, p.ID, "2026-06-12", "2026-06-20")
	require.NoError(t, err)
	second, err := env.bookings.CheckAvailability(ctx, p.ID, "2026-06-12", "2026-06-20")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.False(t, first.Available)
	require.NotNil(t, first.ConflictID)
	assert.Equal(t, b.ID, *first.ConflictID)

	free, err := env.bookings.CheckAvailability(ctx, p.ID, "2026-06-13", "2026-06-20")
	require.NoError(t, err)
	assert.True(t, free.Available)
	assert.Nil(t, free.ConflictID)

	// 商品の存在は問わない
	res, err := env.bookings.CheckAvailability(ctx, 4242, "2026-06-13", "2026-06-20")
	require.NoError(t, err)
	assert.True(t, res.Available)

	_, err = env.bookings.CheckAvailability(ctx, p.ID, "2026-06-20", "2026-06-13")
	assert.ErrorIs(t, err, usecase.ErrValidation)
	_, err = env.bookings.CheckAvailability(ctx, 0, "2026-06-13", "2026-06-20")
	assert.ErrorIs(t, err, usecase.ErrValidation)
}

func TestUpdateBooking_StateMachine(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p := dbtest.SeedProduct(t, env.db, "Camera", "20", 1)
	b, err := env.bookings.CreateBooking(ctx, user(1), bookingInput(p.ID, "2026-05-01", "2026-05-03"))
	require.NoError(t, err)

	_, err = env.bookings.UpdateBooking(ctx, user(1), b.ID, usecase.UpdateBookingInput{Status: strPtr("completed")})
	assert.ErrorIs(t, err, usecase.ErrConflict)

	_, err = env.bookings.UpdateBooking(ctx, user(1), b.ID, usecase.UpdateBookingInput{Status: strPtr("archived")})
	assert.ErrorIs(t, err, usecase.ErrValidation)

	got, err := env.bookings.UpdateBooking(ctx, user(1), b.ID, usecase.UpdateBookingInput{Status: strPtr("confirmed")})
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, got.Status)

	// 同じステータスは何もしない
	_, err = env.bookings.UpdateBooking(ctx, user(1), b.ID, usecase.UpdateBookingInput{Status: strPtr("confirmed")})
	require.NoError(t, err)

	got, err = env.bookings.UpdateBooking(ctx, user(1), b.ID, usecase.UpdateBookingInput{Status: strPtr("completed")})
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCompleted, got.Status)

	_, err = env.bookings.UpdateBooking(ctx, user(1), b.ID, usecase.UpdateBookingInput{Status: strPtr("pending")})
	assert.ErrorIs(t, err, usecase.ErrConflict)
}

func TestUpdateBooking_Dates(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p := dbtest.SeedProduct(t, env.db, "Camera", "20", 1)
	a, err := env.bookings.CreateBooking(ctx, user(1), bookingInput(p.ID, "2026-05-01", "2026-05-03"))
	require.NoError(t, err)
	_, err = env.bookings.CreateBooking(ctx, user(2), bookingInput(p.ID, "2026-05-10", "2026-05-12"))
	require.NoError(t, err)

	// 自分自身とは重ならない扱い
	got, err := env.bookings.UpdateBooking(ctx, user(1), a.ID, usecase.UpdateBookingInput{EndDate: strPtr("2026-05-05")})
	require.NoError(t, err)
	assert.Equal(t, day("2026-05-05"), got.EndDate.UTC())

	_, err = env.bookings.UpdateBooking(ctx, user(1), a.ID, usecase.UpdateBookingInput{EndDate: strPtr("2026-05-10")})
	assert.ErrorIs(t, err, usecase.ErrConflict)

	// 片方だけでも開始 <= 終了 を検証
	_, err = env.bookings.UpdateBooking(ctx, user(1), a.ID, usecase.UpdateBookingInput{StartDate: strPtr("2026-05-07")})
	assert.ErrorIs(t, err, usecase.ErrValidation)

	paid := true
	got, err = env.bookings.UpdateBooking(ctx, user(1), a.ID, usecase.UpdateBookingInput{
		Paid:            &paid,
		SpecialRequests: strPtr("leave at the door"),
	})
	require.NoError(t, err)
	assert.True(t, got.Paid)
	require.NotNil(t, got.SpecialRequests)

	stored, err := env.bookings.GetBooking(ctx, user(1), a.ID)
	require.NoError(t, err)
	assert.True(t, stored.Paid)
	assert.Equal(t, day("2026-05-05"), stored.EndDate.UTC())
}

func TestBooking_Access(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p := dbtest.SeedProduct(t, env.db, "Camera", "20", 1)
	b, err := env.bookings.CreateBooking(ctx, user(1), bookingInput(p.ID, "2026-05-01", "2026-05-03"))
	require.NoError(t, err)

	_, err = env.bookings.GetBooking(ctx, user(2), b.ID)
	assert.ErrorIs(t, err, usecase.ErrForbidden)
	_, err = env.bookings.UpdateBooking(ctx, user(2), b.ID, usecase.UpdateBookingInput{Status: strPtr("cancelled")})
	assert.ErrorIs(t, err, usecase.ErrForbidden)
	assert.ErrorIs(t, env.bookings.DeleteBooking(ctx, user(2), b.ID), usecase.ErrForbidden)

	_, err = env.bookings.GetBooking(ctx, admin(50), b.ID)
	assert.NoError(t, err)

	require.NoError(t, env.bookings.DeleteBooking(ctx, user(1), b.ID))
	_, err = env.bookings.GetBooking(ctx, user(1), b.ID)
	assert.ErrorIs(t, err, usecase.ErrNotFound)
}

func TestListBookings_Filters(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p1 := dbtest.SeedProduct(t, env.db, "Camera", "20", 1)
	p2 := dbtest.SeedProduct(t, env.db, "Tripod", "5", 1)

	_, err := env.bookings.CreateBooking(ctx, user(1), bookingInput(p1.ID, "2026-05-01", "2026-05-03"))
	require.NoError(t, err)
	_, err = env.bookings.CreateBooking(ctx, user(2), bookingInput(p1.ID, "2026-05-10", "2026-05-12"))
	require.NoError(t, err)
	_, err = env.bookings.CreateBooking(ctx, user(1), bookingInput(p2.ID, "2026-05-20", "2026-05-22"))
	require.NoError(t, err)

	// 一般ユーザーは他人を指定しても自分のだけ
	other := int64(2)
	mine, err := env.bookings.ListBookings(ctx, user(1), usecase.ListBookingsInput{UserID: &other})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := env.bookings.ListBookings(ctx, admin(9), usecase.ListBookingsInput{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byProduct, err := env.bookings.ListBookings(ctx, admin(9), usecase.ListBookingsInput{ProductID: &p1.ID})
	require.NoError(t, err)
	assert.Len(t, byProduct, 2)

	// fromだけ: end_date >= from
	later, err := env.bookings.ListBookings(ctx, admin(9), usecase.ListBookingsInput{From: "2026-05-12"})
	require.NoError(t, err)
	assert.Len(t, later, 2)

	window, err := env.bookings.ListBookings(ctx, admin(9), usecase.ListBookingsInput{From: "2026-05-03", To: "2026-05-10"})
	require.NoError(t, err)
	assert.Len(t, window, 2)

	_, err = env.bookings.ListBookings(ctx, admin(9), usecase.ListBookingsInput{From: "2026-05-10", To: "2026-05-03"})
	assert.ErrorIs(t, err, usecase.ErrValidation)
}

func TestUpdateBooking_AdminStatusChangeIsAudited(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	p := dbtest.SeedProduct(t, env.db, "Camera", "20", 1)
	b, err := env.bookings.CreateBooking(ctx, user(1), bookingInput(p.ID, "2026-05-01", "2026-05-03"))
	require.NoError(t, err)

	_, err = env.bookings.UpdateBooking(ctx, admin(77), b.ID, usecase.UpdateBookingInput{Status: strPtr("confirmed")})
	require.NoError(t, err)

	var logs []model.AuditLog
	require.NoError(t, env.db.Where("resource_type = ?", model.AuditResourceBooking).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, int64(77), logs[0].ActorUserID)
	assert.Equal(t, b.ID, logs[0].ResourceID)
	assert.Equal(t, `{"status":"pending"}`, logs[0].BeforeJSON)
	assert.Equal(t, `{"status":"confirmed"}`, logs[0].AfterJSON)
}

func TestBooking_NotifiesBestEffort(t *testing.T) {
	ctx := context.Background()
	n := new(NotifierMock)
	env := newEnvWith(t, n, usecase.CheckoutOptions{})
	p := dbtest.SeedProduct(t, env.db, "Camera", "20", 1)

	// 通知が失敗しても予約は成功
	n.On("BookingCreated", mock.Anything, mock.MatchedBy(func(b model.Booking) bool {
		return b.ProductID == p.ID && b.Status == model.BookingStatusPending
	})).Return(errors.New("broker down")).Once()

	b, err := env.bookings.CreateBooking(ctx, user(1), bookingInput(p.ID, "2026-05-01", "2026-05-03"))
	require.NoError(t, err)

	n.On("BookingStatusChanged", mock.Anything, mock.MatchedBy(func(got model.Booking) bool {
		return got.ID == b.ID && got.Status == model.BookingStatusConfirmed
	}), model.BookingStatusPending).Return(nil).Once()

	_, err = env.bookings.UpdateBooking(ctx, user(1), b.ID, usecase.UpdateBookingInput{Status: strPtr("confirmed")})
	require.NoError(t, err)

	// ステータスが変わらない更新では通知しない
	_, err = env.bookings.UpdateBooking(ctx, user(1), b.ID, usecase.UpdateBookingInput{DeliveryTime: strPtr("14:00-16:00")})
	require.NoError(t, err)

	n.AssertExpectations(t)
	n.AssertNumberOfCalls(t, "BookingStatusChanged", 1)
}
