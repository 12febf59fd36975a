package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/osvaldoandrade/irisenroll/pkg/domain"

	"github.com/go-redis/redis/v8"
)

var ErrRunNotFound = errors.New("run not found")

// LedgerRepository records what each enrollment run did. It is an audit
// trail only; runs are never resumed from it.
type LedgerRepository interface {
	StartRun(ctx context.Context, rec domain.RunRecord) error
	RecordItem(ctx context.Context, runID string, item domain.ItemRecord) error
	FinishRun(ctx context.Context, rec domain.RunRecord) error
	GetRun(ctx context.Context, runID string) (*domain.RunRecord, error)
	ListItems(ctx context.Context, runID string) ([]domain.ItemRecord, error)
	RecentRuns(ctx context.Context, limit int) ([]string, error)
}

type ledgerRedisRepo struct {
	rdb    *redis.Client
	prefix string
}

func NewLedgerRepository(rdb *redis.Client, prefix string) LedgerRepository {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "irisenroll"
	}
	return &ledgerRedisRepo{rdb: rdb, prefix: prefix}
}

func (r *ledgerRedisRepo) keyRuns() string { return r.prefix + ":runs" }
func (r *ledgerRedisRepo) keyRun(id string) string {
	return fmt.Sprintf("%s:run:%s", r.prefix, id)
}
func (r *ledgerRedisRepo) keyRunItems(id string) string {
	return fmt.Sprintf("%s:run:%s:items", r.prefix, id)
}

func (r *ledgerRedisRepo) StartRun(ctx context.Context, rec domain.RunRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.keyRun(rec.RunID), string(b), 0)
	pipe.ZAdd(ctx, r.keyRuns(), &redis.Z{Score: float64(rec.StartedAt.UTC().Unix()), Member: rec.RunID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis start run: %w", err)
	}
	return nil
}

func (r *ledgerRedisRepo) RecordItem(ctx context.Context, runID string, item domain.ItemRecord) error {
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	if err := r.rdb.HSet(ctx, r.keyRunItems(runID), item.Source, string(b)).Err(); err != nil {
		return fmt.Errorf("redis HSET item: %w", err)
	}
	return nil
}

func (r *ledgerRedisRepo) FinishRun(ctx context.Context, rec domain.RunRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if err := r.rdb.Set(ctx, r.keyRun(rec.RunID), string(b), 0).Err(); err != nil {
		return fmt.Errorf("redis SET run: %w", err)
	}
	return nil
}

func (r *ledgerRedisRepo) GetRun(ctx context.Context, runID string) (*domain.RunRecord, error) {
	js, err := r.rdb.Get(ctx, r.keyRun(runID)).Result()
	if err == redis.Nil || (err == nil && js == "") {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET run: %w", err)
	}
	var rec domain.RunRecord
	if err := json.Unmarshal([]byte(js), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &rec, nil
}

func (r *ledgerRedisRepo) ListItems(ctx context.Context, runID string) ([]domain.ItemRecord, error) {
	m, err := r.rdb.HGetAll(ctx, r.keyRunItems(runID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis HGETALL items: %w", err)
	}
	items := make([]domain.ItemRecord, 0, len(m))
	for _, js := range m {
		var it domain.ItemRecord
		if err := json.Unmarshal([]byte(js), &it); err != nil {
			return nil, fmt.Errorf("unmarshal item: %w", err)
		}
		items = append(items, it)
	}
	return items, nil
}

// RecentRuns returns run ids, newest first.
func (r *ledgerRedisRepo) RecentRuns(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	ids, err := r.rdb.ZRevRange(ctx, r.keyRuns(), 0, int64(limit-1)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis ZREVRANGE runs: %w", err)
	}
	return ids, nil
}

type noopLedger struct{}

// NewNoopLedger is used when no Redis address is configured.
func NewNoopLedger() LedgerRepository { return noopLedger{} }

func (noopLedger) StartRun(context.Context, domain.RunRecord) error            { return nil }
func (noopLedger) RecordItem(context.Context, string, domain.ItemRecord) error { return nil }
func (noopLedger) FinishRun(context.Context, domain.RunRecord) error           { return nil }
func (noopLedger) GetRun(_ context.Context, id string) (*domain.RunRecord, error) {
	return nil, fmt.Errorf("%w: %s (ledger disabled)", ErrRunNotFound, id)
}
func (noopLedger) ListItems(context.Context, string) ([]domain.ItemRecord, error) { return nil, nil }
func (noopLedger) RecentRuns(context.Context, int) ([]string, error)              { return nil, nil }
