package health

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Pinger is anything that can verify connectivity, such as a database
// handle.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseCheck returns a readiness check against the relational store.
func DatabaseCheck(db Pinger) CheckFunc {
	return func(ctx context.Context) Check {
		if err := db.Ping(ctx); err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		return Check{Status: StatusHealthy}
	}
}

// RedisCheck returns a readiness check against the counter store's Redis
// backend. A Redis outage degrades rate limiting to per-instance
// counters rather than taking the service down, so failure reports
// degraded, not unhealthy.
func RedisCheck(client *redis.Client) CheckFunc {
	return func(ctx context.Context) Check {
		if err := client.Ping(ctx).Err(); err != nil {
			return Check{Status: StatusDegraded, Message: err.Error()}
		}
		return Check{Status: StatusHealthy}
	}
}
