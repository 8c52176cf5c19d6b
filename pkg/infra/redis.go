package infra

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fystack/draw-engine/pkg/common/config"
	"github.com/fystack/draw-engine/pkg/common/constant"
	"github.com/fystack/draw-engine/pkg/common/logger"
	"github.com/redis/go-redis/v9"
)

// RedisClient abstracts the Redis client methods the engine relies on.
type RedisClient interface {
	GetClient() *redis.Client
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Close() error
}

type RedisWrapper struct {
	client *redis.Client
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func getTlsConfig(caCertPath string, clientCertPath string, clientKeyPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(expandHome(caCertPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to append CA cert to pool")
	}

	cert, err := tls.LoadX509KeyPair(clientCertPath, clientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caCertPool,
	}, nil
}

// NewRedisClient connects to cfg.URL, which may be a host:port or a
// redis:// URL, and pings it before returning.
func NewRedisClient(cfg config.RedisCfg, environment string) (RedisClient, error) {
	cpus := runtime.GOMAXPROCS(0)

	opts := &redis.Options{
		Addr:            cfg.URL,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cpus * 10,
		MinIdleConns:    cpus * 2,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	}
	if strings.Contains(cfg.URL, "://") {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts.Addr = parsed.Addr
		opts.Username = parsed.Username
		opts.DB = parsed.DB
		if parsed.Password != "" {
			opts.Password = parsed.Password
		}
		opts.TLSConfig = parsed.TLSConfig
	}

	if environment == constant.EnvProduction && opts.TLSConfig == nil {
		tlsCfg, err := getTlsConfig(
			"~/.local/share/mkcert/rootCA.pem",
			"./certs/redis/redis-client.crt",
			"./certs/redis/redis-client.key",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config for redis client: %w", err)
		}
		opts.TLSConfig = tlsCfg
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Connected to Redis", "pong", pong)

	return &RedisWrapper{client: client}, nil
}

func (rw *RedisWrapper) GetClient() *redis.Client {
	return rw.client
}

func (rw *RedisWrapper) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return rw.client.Set(ctx, key, value, expiration).Err()
}

func (rw *RedisWrapper) Get(ctx context.Context, key string) (string, error) {
	return rw.client.Get(ctx, key).Result()
}

func (rw *RedisWrapper) Del(ctx context.Context, keys ...string) error {
	return rw.client.Del(ctx, keys...).Err()
}

func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}
