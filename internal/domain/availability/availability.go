// Package availability は予約の期間重複を判定する。副作用はない。
package availability

import (
	"errors"
	"strings"
	"time"

	"rentalshop/internal/domain/model"
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrEndBeforeStart  = errors.New("end date is before start date")
	dateOnlyLayout     = "2006-01-02"
	acceptedDateLayout = []string{dateOnlyLayout, time.RFC3339, time.RFC3339Nano}
)

// 両端を含む暦日の期間 [Start, End]
type Interval struct {
	Start time.Time
	End   time.Time
}

// ParseDate は YYYY-MM-DD か RFC3339 を受け付け、その暦日のUTC 0時に丸める。
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range acceptedDateLayout {
		t, err := time.Parse(layout, s)
		if err == nil {
			return Day(t), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// 時刻を捨ててUTCの暦日にする（入力側のタイムゾーンの日付を採用）
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func NewInterval(start, end string) (Interval, error) {
	s, err := ParseDate(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return Interval{}, err
	}
	return FromTimes(s, e)
}

func FromTimes(start, end time.Time) (Interval, error) {
	iv := Interval{Start: Day(start), End: Day(end)}
	if iv.End.Before(iv.Start) {
		return Interval{}, ErrEndBeforeStart
	}
	return iv, nil
}

// 境界を含む: 同じ日に終わる予約と始まる予約は重なる
func (iv Interval) Overlaps(other Interval) bool {
	return !iv.Start.After(other.End) && !iv.End.Before(other.Start)
}

func BookingInterval(b model.Booking) Interval {
	return Interval{Start: Day(b.StartDate), End: Day(b.EndDate)}
}

// FirstConflict は cancelled 以外で期間が重なる最初の予約を返す。
// excludeID は自分自身を更新するとき用（0なら除外しない）。
func FirstConflict(bookings []model.Booking, req Interval, excludeID int64) (model.Booking, bool) {
	for _, b := range bookings {
		if b.Status == model.BookingStatusCancelled {
			continue
		}
		if excludeID != 0 && b.ID == excludeID {
			continue
		}
		if BookingInterval(b).Overlaps(req) {
			return b, true
		}
	}
	return model.Booking{}, false
}

// 判定結果
type Result struct {
	Available  bool   `json:"available"`
	ConflictID *int64 `json:"conflict_id"`
}

func Check(bookings []model.Booking, req Interval, excludeID int64) Result {
	b, found := FirstConflict(bookings, req, excludeID)
	if !found {
		return Result{Available: true}
	}
	id := b.ID
	return Result{Available: false, ConflictID: &id}
}
