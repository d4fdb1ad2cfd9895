package repository

import (
	"context"
	"errors"

	"rentalshop/internal/domain/model"
	repo "rentalshop/internal/repository"

	"gorm.io/gorm"
)

type BookingGormRepository struct {
	db *gorm.DB
}

func NewBookingGormRepository(db *gorm.DB) *BookingGormRepository {
	return &BookingGormRepository{db: db}
}

func (r *BookingGormRepository) Create(ctx context.Context, b model.Booking) (model.Booking, error) {
	if err := r.db.WithContext(ctx).Create(&b).Error; err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

func (r *BookingGormRepository) FindByID(ctx context.Context, id int64) (model.Booking, error) {
	var b model.Booking
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Booking{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

// 条件の組み合わせで一覧（id昇順）
func (r *BookingGormRepository) List(ctx context.Context, f repo.BookingFilter) ([]model.Booking, error) {
	q := r.db.WithContext(ctx).Model(&model.Booking{})

	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if f.ProductID != nil {
		q = q.Where("product_id = ?", *f.ProductID)
	}

	//期間の重なり（両端を含む）: start <= to AND end >= from
	if f.From != nil {
		q = q.Where("end_date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("start_date <= ?", *f.To)
	}

	if f.ExcludeCancelled {
		q = q.Where("status <> ?", model.BookingStatusCancelled)
	}

	var list []model.Booking
	if err := q.Order("id asc").Find(&list).Error; err != nil {
		return []model.Booking{}, err
	}
	return list, nil
}

// 変更可能な項目だけ更新
func (r *BookingGormRepository) Update(ctx context.Context, b model.Booking) error {
	res := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("id = ?", b.ID).
		Updates(map[string]interface{}{
			"status":           b.Status,
			"start_date":       b.StartDate,
			"end_date":         b.EndDate,
			"delivery_address": b.DeliveryAddress,
			"delivery_time":    b.DeliveryTime,
			"special_requests": b.SpecialRequests,
			"paid":             b.Paid,
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *BookingGormRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Booking{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
