package providers

import (
	"time"

	"github.com/go-redis/redis/v8"
)

// NewRedisProvider returns a client with short timeouts; the ledger is
// best-effort and must not stall an enrollment run.
func NewRedisProvider(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		MaxRetries:   1,
	})
}
