package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"rentalshop/internal/domain/availability"
	"rentalshop/internal/domain/model"
	"rentalshop/internal/metrics"
	repo "rentalshop/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// BookingUsecase はレンタル予約のCRUDと空き状況の判定。
// 同じ商品の期間チェックは商品行のロックで直列にする。
type BookingUsecase struct {
	tx       repo.TransactionManager
	bookings repo.BookingRepository
	notifier BookingNotifier
	metrics  *metrics.AppMetrics
	log      *logrus.Logger
}

func NewBookingUsecase(tx repo.TransactionManager, bookings repo.BookingRepository, notifier BookingNotifier, m *metrics.AppMetrics, log *logrus.Logger) *BookingUsecase {
	return &BookingUsecase{tx: tx, bookings: bookings, notifier: notifier, metrics: m, log: log}
}

type CreateBookingInput struct {
	ProductID       int64
	Price           decimal.Decimal
	StartDate       string
	EndDate         string
	DeliveryAddress string
	DeliveryTime    string
	SpecialRequests *string
}

// nilの項目は変更しない
type UpdateBookingInput struct {
	Status          *string
	StartDate       *string
	EndDate         *string
	DeliveryAddress *string
	DeliveryTime    *string
	SpecialRequests *string
	Paid            *bool
}

type ListBookingsInput struct {
	UserID    *int64
	ProductID *int64
	From      string
	To        string
}

func dateError(err error) error {
	if errors.Is(err, availability.ErrEndBeforeStart) {
		return validationError("end_date must be on or after start_date")
	}
	return validationError("invalid date")
}

// 日付を先に検証する（他の項目がおかしくても日付エラーを優先）
func (u *BookingUsecase) CreateBooking(ctx context.Context, actor model.Actor, in CreateBookingInput) (model.Booking, error) {
	if actor.UserID <= 0 {
		return model.Booking{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	iv, err := availability.NewInterval(in.StartDate, in.EndDate)
	if err != nil {
		return model.Booking{}, dateError(err)
	}
	if in.ProductID <= 0 {
		return model.Booking{}, validationError("invalid product_id")
	}
	if !in.Price.IsPositive() {
		return model.Booking{}, validationError("price must be > 0")
	}
	address := strings.TrimSpace(in.DeliveryAddress)
	if address == "" {
		return model.Booking{}, validationError("delivery_address required")
	}
	deliveryTime := strings.TrimSpace(in.DeliveryTime)
	if deliveryTime == "" {
		return model.Booking{}, validationError("delivery_time required")
	}

	var created model.Booking
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//商品をロック（同じ商品の予約作成を直列に）
		if _, err := r.Products().FindByIDForUpdate(ctx, in.ProductID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFoundError("product not found")
			}
			return internalError(ctx, u.log, "lock product", err)
		}

		if err := u.ensureNoConflict(ctx, r.Bookings(), in.ProductID, iv, 0); err != nil {
			return err
		}

		b, err := r.Bookings().Create(ctx, model.Booking{
			ProductID:       in.ProductID,
			UserID:          actor.UserID,
			Price:           in.Price,
			Status:          model.BookingStatusPending,
			StartDate:       iv.Start,
			EndDate:         iv.End,
			DeliveryAddress: address,
			DeliveryTime:    deliveryTime,
			SpecialRequests: in.SpecialRequests,
		})
		if err != nil {
			return internalError(ctx, u.log, "create booking", err)
		}
		created = b
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}

	u.metrics.RecordBookingCreated(ctx)
	u.notify(ctx, created, func(ctx context.Context) error {
		return u.notifier.BookingCreated(ctx, created)
	})
	return created, nil
}

// 期間が重なる有効な予約があればConflict
func (u *BookingUsecase) ensureNoConflict(ctx context.Context, bookings repo.BookingRepository, productID int64, iv availability.Interval, excludeID int64) error {
	candidates, err := bookings.List(ctx, overlapFilter(productID, iv))
	if err != nil {
		return internalError(ctx, u.log, "list bookings", err)
	}
	if other, found := availability.FirstConflict(candidates, iv, excludeID); found {
		u.metrics.RecordBookingConflict(ctx)
		u.log.WithFields(logrus.Fields{
			"product_id":  productID,
			"conflict_id": other.ID,
		}).Info("booking overlap")
		return conflictError("booking dates overlap")
	}
	return nil
}

func overlapFilter(productID int64, iv availability.Interval) repo.BookingFilter {
	start, end := iv.Start, iv.End
	return repo.BookingFilter{
		ProductID:        &productID,
		From:             &start,
		To:               &end,
		ExcludeCancelled: true,
	}
}

// 本人か管理者のみ
func (u *BookingUsecase) GetBooking(ctx context.Context, actor model.Actor, id int64) (model.Booking, error) {
	if actor.UserID <= 0 {
		return model.Booking{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if id <= 0 {
		return model.Booking{}, validationError("invalid id")
	}

	b, err := u.bookings.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Booking{}, notFoundError("booking not found")
	}
	if err != nil {
		return model.Booking{}, internalError(ctx, u.log, "find booking", err)
	}
	if !actor.CanAccess(b.UserID) {
		return model.Booking{}, forbiddenError()
	}
	return b, nil
}

// 一般ユーザーは自分の予約だけ
func (u *BookingUsecase) ListBookings(ctx context.Context, actor model.Actor, in ListBookingsInput) ([]model.Booking, error) {
	if actor.UserID <= 0 {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	f := repo.BookingFilter{UserID: in.UserID, ProductID: in.ProductID}
	if !actor.IsAdmin() {
		self := actor.UserID
		f.UserID = &self
	}
	if strings.TrimSpace(in.From) != "" {
		from, err := availability.ParseDate(in.From)
		if err != nil {
			return nil, validationError("invalid from")
		}
		f.From = &from
	}
	if strings.TrimSpace(in.To) != "" {
		to, err := availability.ParseDate(in.To)
		if err != nil {
			return nil, validationError("invalid to")
		}
		f.To = &to
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, validationError("to must be on or after from")
	}

	items, err := u.bookings.List(ctx, f)
	if err != nil {
		return nil, internalError(ctx, u.log, "list bookings", err)
	}
	return items, nil
}

// 部分更新。日付が変わるときは自分以外との重複を再チェックする。
func (u *BookingUsecase) UpdateBooking(ctx context.Context, actor model.Actor, id int64, in UpdateBookingInput) (model.Booking, error) {
	if actor.UserID <= 0 {
		return model.Booking{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if id <= 0 {
		return model.Booking{}, validationError("invalid id")
	}

	var newStatus *model.BookingStatus
	if in.Status != nil {
		s := model.BookingStatus(strings.ToLower(strings.TrimSpace(*in.Status)))
		if !s.Valid() {
			return model.Booking{}, validationError("invalid status")
		}
		newStatus = &s
	}

	var (
		updated    model.Booking
		fromStatus model.BookingStatus
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		b, err := r.Bookings().FindByID(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return notFoundError("booking not found")
		}
		if err != nil {
			return internalError(ctx, u.log, "find booking", err)
		}
		if !actor.CanAccess(b.UserID) {
			return forbiddenError()
		}
		fromStatus = b.Status

		//日付は片方だけでも既存値とまとめて検証
		start, end := b.StartDate, b.EndDate
		if in.StartDate != nil {
			if start, err = availability.ParseDate(*in.StartDate); err != nil {
				return validationError("invalid date")
			}
		}
		if in.EndDate != nil {
			if end, err = availability.ParseDate(*in.EndDate); err != nil {
				return validationError("invalid date")
			}
		}
		iv, err := availability.FromTimes(start, end)
		if err != nil {
			return dateError(err)
		}
		datesChanged := !iv.Start.Equal(availability.Day(b.StartDate)) || !iv.End.Equal(availability.Day(b.EndDate))

		if newStatus != nil {
			if !b.Status.CanTransitionTo(*newStatus) {
				return conflictError("cannot change " + string(b.Status) + " booking to " + string(*newStatus))
			}
			b.Status = *newStatus
		}
		if in.DeliveryAddress != nil {
			v := strings.TrimSpace(*in.DeliveryAddress)
			if v == "" {
				return validationError("delivery_address required")
			}
			b.DeliveryAddress = v
		}
		if in.DeliveryTime != nil {
			v := strings.TrimSpace(*in.DeliveryTime)
			if v == "" {
				return validationError("delivery_time required")
			}
			b.DeliveryTime = v
		}
		if in.SpecialRequests != nil {
			b.SpecialRequests = in.SpecialRequests
		}
		if in.Paid != nil {
			b.Paid = *in.Paid
		}

		if datesChanged && b.Status != model.BookingStatusCancelled {
			if _, err := r.Products().FindByIDForUpdate(ctx, b.ProductID); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return notFoundError("product not found")
				}
				return internalError(ctx, u.log, "lock product", err)
			}
			if err := u.ensureNoConflict(ctx, r.Bookings(), b.ProductID, iv, b.ID); err != nil {
				return err
			}
		}
		b.StartDate, b.EndDate = iv.Start, iv.End

		if err := r.Bookings().Update(ctx, b); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFoundError("booking not found")
			}
			return internalError(ctx, u.log, "update booking", err)
		}

		// 管理者が他人の予約ステータスを変えたら監査ログ
		if b.Status != fromStatus && actor.IsAdmin() && actor.UserID != b.UserID {
			if err := r.AuditLogs().Create(ctx, model.AuditLog{
				ActorUserID:  actor.UserID,
				Action:       model.AuditActionUpdateBookingStatus,
				ResourceType: model.AuditResourceBooking,
				ResourceID:   b.ID,
				BeforeJSON:   auditJSON(map[string]interface{}{"status": fromStatus}),
				AfterJSON:    auditJSON(map[string]interface{}{"status": b.Status}),
			}); err != nil {
				return internalError(ctx, u.log, "audit booking status", err)
			}
		}

		updated = b
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}

	if updated.Status != fromStatus {
		u.notify(ctx, updated, func(ctx context.Context) error {
			return u.notifier.BookingStatusChanged(ctx, updated, fromStatus)
		})
	}
	return updated, nil
}

// 本人か管理者のみ
func (u *BookingUsecase) DeleteBooking(ctx context.Context, actor model.Actor, id int64) error {
	if _, err := u.GetBooking(ctx, actor, id); err != nil {
		return err
	}

	err := u.bookings.Delete(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return notFoundError("booking not found")
	}
	if err != nil {
		return internalError(ctx, u.log, "delete booking", err)
	}
	return nil
}

// CheckAvailability は読み取りだけ。書き込みが無ければ何回呼んでも同じ結果。
// 商品の存在はチェックしない。
func (u *BookingUsecase) CheckAvailability(ctx context.Context, productID int64, startDate string, endDate string) (availability.Result, error) {
	if productID <= 0 {
		return availability.Result{}, validationError("invalid product_id")
	}
	iv, err := availability.NewInterval(startDate, endDate)
	if err != nil {
		return availability.Result{}, dateError(err)
	}

	candidates, err := u.bookings.List(ctx, overlapFilter(productID, iv))
	if err != nil {
		return availability.Result{}, internalError(ctx, u.log, "list bookings", err)
	}

	res := availability.Check(candidates, iv, 0)
	u.metrics.RecordAvailabilityCheck(ctx, res.Available)
	return res, nil
}

// 通知はベストエフォート。失敗はログだけ。
func (u *BookingUsecase) notify(ctx context.Context, b model.Booking, send func(ctx context.Context) error) {
	if u.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := send(ctx); err != nil {
		u.log.WithContext(ctx).WithError(err).WithField("booking_id", b.ID).Warn("booking notification failed")
	}
}
