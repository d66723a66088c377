package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"lyra-atelier-server/modules/common/config"
)

// ErrDisabled - REDIS_HOST 미설정
var ErrDisabled = errors.New("redis disabled")

const pingTimeout = 10 * time.Second

// options - 설정값으로 클라이언트 옵션 구성
func options(cfg *config.Config) *redis.Options {
	opts := &redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	if cfg.RedisUseTLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.RedisHost,
		}
	}
	return opts
}

// Connect - Redis 연결 생성 후 ping 확인
func Connect(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if !cfg.RedisEnabled() {
		return nil, ErrDisabled
	}

	log.Printf("🔌 [Redis] Connecting to %s", cfg.GetRedisAddr())
	rdb := redis.NewClient(options(cfg))

	if err := Ping(ctx, rdb); err != nil {
		rdb.Close()
		return nil, err
	}

	log.Printf("✅ [Redis] Connected: %s", cfg.GetRedisAddr())
	return rdb, nil
}

// Ping - 헬스 체크용 (nil 클라이언트는 비활성으로 간주)
func Ping(ctx context.Context, rdb *redis.Client) error {
	if rdb == nil {
		return ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
