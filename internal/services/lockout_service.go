package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// Параметры блокировки входа
const (
	maxLoginAttempts = 5
	lockoutWindow    = 15 * time.Minute
)

// LockoutService считает неудачные попытки входа в Redis.
// Без Redis сервис работает в деградированном режиме: вход не блокируется.
type LockoutService struct {
	redis *redis.Client
}

func NewLockoutService(rdb *redis.Client) *LockoutService {
	return &LockoutService{redis: rdb}
}

func lockoutKey(email string) string {
	return fmt.Sprintf("login_attempts:%s", email)
}

// IsLocked проверяет, превышен ли лимит попыток для email
func (s *LockoutService) IsLocked(ctx context.Context, email string) bool {
	if s.redis == nil {
		return false
	}
	attempts, err := s.redis.Get(ctx, lockoutKey(email)).Int()
	if err != nil {
		return false
	}
	return attempts >= maxLoginAttempts
}

// RecordFailure увеличивает счетчик неудачных попыток.
// Окно отсчитывается от первой неудачи.
func (s *LockoutService) RecordFailure(ctx context.Context, email string) {
	if s.redis == nil {
		return
	}
	key := lockoutKey(email)
	attempts, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("Ошибка записи попытки входа в Redis: %v", err)
		return
	}
	if attempts == 1 {
		s.redis.Expire(ctx, key, lockoutWindow)
	}
}

// Reset сбрасывает счетчик после успешного входа
func (s *LockoutService) Reset(ctx context.Context, email string) {
	if s.redis == nil {
		return
	}
	s.redis.Del(ctx, lockoutKey(email))
}
