package lock

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

const redisKeyPrefix = "domainpay:lock:"

// NewLocker prefers Redis so saga runs are exclusive across replicas.
func NewLocker(client *redis.Client) Locker {
	if client != nil {
		return NewRedisLocker(client, redisKeyPrefix)
	}
	return NewLocalLocker(nil)
}

var Module = fx.Module("lock",
	fx.Provide(NewLocker),
)
