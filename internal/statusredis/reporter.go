// Package statusredis implements agentclient.StatusReporter backed by
// Redis, publishing each client's lifecycle as a hash plus a pub/sub
// notification so an external dashboard can follow connections without
// polling. Grounded on redis/client.go's NewClient (dial/read/write
// timeouts, pool sizing, a named logger, and a connectivity Ping on
// construction).
package statusredis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ejudge-sh/agent-client/internal/agentclient"
)

const (
	keyPrefix  = "agentclient:status:"
	channel    = "agentclient:status:events"
	opTimeout  = 500 * time.Millisecond
	entryTTL   = 24 * time.Hour
)

// Reporter publishes Client lifecycle transitions to Redis. It implements
// agentclient.StatusReporter; every method is best-effort and never
// blocks a caller on Redis availability beyond opTimeout.
type Reporter struct {
	rdb *redis.Client
	log *zap.Logger
}

var _ agentclient.StatusReporter = (*Reporter)(nil)

// New dials Redis with the same timeout/pool profile as redis.NewClient
// and verifies connectivity with a bounded Ping, logging the result but
// never failing construction on a down Redis — a reporter is diagnostic,
// not load-bearing.
func New(addr string, db int, log *zap.Logger) *Reporter {
	log = log.Named("statusredis")

	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	r := &Reporter{rdb: rdb, log: log}
	r.ping()
	return r
}

func (r *Reporter) ping() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	start := time.Now()
	err := r.rdb.Ping(ctx).Err()
	elapsed := time.Since(start)

	if err != nil {
		r.log.Warn("connection failed", zap.Error(err), zap.Duration("ping_rtt", elapsed))
		return
	}
	r.log.Info("connection established", zap.Duration("ping_rtt", elapsed))
}

// Close releases the underlying Redis connection pool.
func (r *Reporter) Close() error {
	return r.rdb.Close()
}

// Connected records the pid a client spawned under and publishes a
// "connected" event.
func (r *Reporter) Connected(clientID string, pid int) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	key := keyPrefix + clientID
	if err := r.rdb.HSet(ctx, key, map[string]any{
		"state": "connected",
		"pid":   pid,
	}).Err(); err != nil {
		r.log.Warn("HSet failed", zap.String("id", clientID), zap.Error(err))
		return
	}
	r.rdb.Expire(ctx, key, entryTTL)
	r.publish(ctx, clientID, "connected")
}

// Closed marks a client's entry as closed and publishes a "closed" event.
// The hash is left in place (with a short TTL) rather than deleted so a
// dashboard can show the last-known pid briefly after disconnect.
func (r *Reporter) Closed(clientID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	key := keyPrefix + clientID
	if err := r.rdb.HSet(ctx, key, map[string]any{"state": "closed"}).Err(); err != nil {
		r.log.Warn("HSet failed", zap.String("id", clientID), zap.Error(err))
		return
	}
	r.rdb.Expire(ctx, key, time.Minute)
	r.publish(ctx, clientID, "closed")
}

// Pending updates the count of requests awaiting a reply for clientID.
// Called on every Submit, so this must stay cheap: a single HSet, no
// publish (pub/sub is reserved for state transitions, not per-request
// chatter).
func (r *Reporter) Pending(clientID string, n int) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	key := keyPrefix + clientID
	if err := r.rdb.HSet(ctx, key, "pending", strconv.Itoa(n)).Err(); err != nil {
		r.log.Debug("HSet pending failed", zap.String("id", clientID), zap.Error(err))
	}
}

func (r *Reporter) publish(ctx context.Context, clientID, event string) {
	if err := r.rdb.Publish(ctx, channel, clientID+":"+event).Err(); err != nil {
		r.log.Debug("publish failed", zap.String("id", clientID), zap.Error(err))
	}
}
