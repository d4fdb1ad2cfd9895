package lock

import (
	"context"
	"sync"
	"time"

	repo "rentalshop/internal/repository"
)

// LocalLocker はRedisが無いとき用のプロセス内ロック（単一インスタンス前提）。
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]time.Time{}, now: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (repo.Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, repo.ErrLockNotAcquired
	}
	exp := now.Add(ttl)
	l.held[key] = exp
	return &localLock{owner: l, key: key, exp: exp}, nil
}

type localLock struct {
	owner *LocalLocker
	key   string
	exp   time.Time
}

func (l *localLock) Release(_ context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()

	// 期限切れ後に取り直されていたら消さない
	if l.owner.held[l.key].Equal(l.exp) {
		delete(l.owner.held, l.key)
	}
	return nil
}

var _ repo.Locker = (*LocalLocker)(nil)
