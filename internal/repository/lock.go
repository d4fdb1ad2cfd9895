package repository

import (
	"context"
	"errors"
	"time"
)

var ErrLockNotAcquired = errors.New("lock not acquired")

// 取得済みのロック
type Lock interface {
	Release(ctx context.Context) error
}

// ユーザー単位の排他（チェックアウトの二重実行を早めに弾く）
type Locker interface {
	// 既に他で取られていたら ErrLockNotAcquired
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}
