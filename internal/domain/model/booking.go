package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// completed / cancelled は終端
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusCancelled},
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusCompleted:
		return true
	}
	return false
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if s == next {
		return true
	}
	for _, to := range bookingTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// レンタル予約。StartDate/EndDateはUTCの0時（暦日）で保存する。
type Booking struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID       int64           `gorm:"not null;index:idx_bookings_product_dates" json:"product_id"`
	UserID          int64           `gorm:"not null;index" json:"user_id"`
	Price           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Status          BookingStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	StartDate       time.Time       `gorm:"not null;index:idx_bookings_product_dates" json:"start_date"`
	EndDate         time.Time       `gorm:"not null;index:idx_bookings_product_dates" json:"end_date"`
	DeliveryAddress string          `gorm:"type:varchar(255);not null" json:"delivery_address"`
	DeliveryTime    string          `gorm:"type:varchar(50);not null" json:"delivery_time"`
	SpecialRequests *string         `gorm:"type:text" json:"special_requests,omitempty"`
	Paid            bool            `gorm:"not null;default:false" json:"paid"`
	CreatedAt       time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
