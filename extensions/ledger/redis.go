package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	breeze "github.com/beamo-co/breeze-go"
)

// RedisLedger records deliveries with SETNX so concurrent instances agree on
// which one delivers a transaction
type RedisLedger struct {
	client    goredis.Cmdable
	ttl       time.Duration
	keyPrefix string
}

type redisRecord struct {
	ProductID   string        `json:"productId"`
	Source      breeze.Source `json:"source"`
	DeliveredAt time.Time     `json:"deliveredAt"`
}

// NewRedisLedger creates a ledger backed by client
func NewRedisLedger(client goredis.Cmdable, opts ...Option) *RedisLedger {
	cfg := newConfig(opts)
	return &RedisLedger{client: client, ttl: cfg.ttl, keyPrefix: cfg.keyPrefix}
}

func (l *RedisLedger) key(id string) string {
	return l.keyPrefix + id
}

// MarkDelivered records tx and reports whether its id was new
func (l *RedisLedger) MarkDelivered(ctx context.Context, tx breeze.CompletedTransaction) (bool, error) {
	payload, err := json.Marshal(redisRecord{
		ProductID:   tx.ProductID,
		Source:      tx.Source,
		DeliveredAt: tx.ConfirmedAt,
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode ledger record: %w", err)
	}

	ok, err := l.client.SetNX(ctx, l.key(tx.ID), payload, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", tx.ID, err)
	}
	return ok, nil
}

// Delivered reports whether id has been recorded
func (l *RedisLedger) Delivered(ctx context.Context, id string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", id, err)
	}
	return n > 0, nil
}

var _ breeze.DeliveryLedger = (*RedisLedger)(nil)
