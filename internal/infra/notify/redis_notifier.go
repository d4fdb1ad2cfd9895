package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rentalshop/internal/domain/model"
	"rentalshop/internal/usecase"

	"github.com/go-redis/redis/v8"
)

const (
	EventBookingCreated       = "booking.created"
	EventBookingStatusChanged = "booking.status_changed"
)

// 配信するイベント
type BookingEvent struct {
	Type       string              `json:"type"`
	BookingID  int64               `json:"booking_id"`
	ProductID  int64               `json:"product_id"`
	UserID     int64               `json:"user_id"`
	Status     model.BookingStatus `json:"status"`
	FromStatus model.BookingStatus `json:"from_status,omitempty"`
	StartDate  string              `json:"start_date"`
	EndDate    string              `json:"end_date"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// RedisNotifier は予約イベントをRedisのチャンネルにPUBLISHする。
// 購読者がいなくても失敗にはしない（配信保証なし）。
type RedisNotifier struct {
	client  *redis.Client
	channel string
	now     func() time.Time
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel, now: time.Now}
}

func (n *RedisNotifier) BookingCreated(ctx context.Context, b model.Booking) error {
	return n.publish(ctx, n.event(EventBookingCreated, b, ""))
}

func (n *RedisNotifier) BookingStatusChanged(ctx context.Context, b model.Booking, from model.BookingStatus) error {
	return n.publish(ctx, n.event(EventBookingStatusChanged, b, from))
}

func (n *RedisNotifier) event(typ string, b model.Booking, from model.BookingStatus) BookingEvent {
	return BookingEvent{
		Type:       typ,
		BookingID:  b.ID,
		ProductID:  b.ProductID,
		UserID:     b.UserID,
		Status:     b.Status,
		FromStatus: from,
		StartDate:  b.StartDate.Format("2006-01-02"),
		EndDate:    b.EndDate.Format("2006-01-02"),
		OccurredAt: n.now().UTC(),
	}
}

func (n *RedisNotifier) publish(ctx context.Context, ev BookingEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Type, err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", n.channel, err)
	}
	return nil
}

var _ usecase.BookingNotifier = (*RedisNotifier)(nil)
