package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diogoX451/agentnet/internal/store"
	"github.com/diogoX451/agentnet/pkg/types"
)

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ store.ExecutionStore = (*RedisStore)(nil)

type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// ExecutionTTL expiração aplicada quando a execução termina
	ExecutionTTL time.Duration
}

func New(cfg Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewWithClient(client, cfg.ExecutionTTL), nil
}

// NewWithClient usa um client já configurado (testes com miniredis)
func NewWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Chaves Redis:
// execution:{id} -> json ExecutionRecord (TTL depois de terminar)
// user:{user_id}:executions -> set de execution ids
// executions:index -> set com todos os ids
// executions:finished -> zset id -> fim em unix ms

func (r *RedisStore) executionKey(id types.ExecutionID) string {
	return fmt.Sprintf("execution:%s", id)
}

func (r *RedisStore) userIndexKey(userID string) string {
	return fmt.Sprintf("user:%s:executions", userID)
}

func (r *RedisStore) indexKey() string {
	return "executions:index"
}

func (r *RedisStore) finishedKey() string {
	return "executions:finished"
}

func (r *RedisStore) SaveExecution(ctx context.Context, rec *types.ExecutionRecord) error {
	rec.UpdatedAt = time.Now()
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if rec.Status.Finished() {
		ttl = r.ttl
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.executionKey(rec.ID), data, ttl)
	pipe.SAdd(ctx, r.indexKey(), string(rec.ID))
	if rec.UserID != "" {
		pipe.SAdd(ctx, r.userIndexKey(rec.UserID), string(rec.ID))
	}
	if rec.Status.Finished() && !rec.FinishedAt.IsZero() {
		pipe.ZAdd(ctx, r.finishedKey(), redis.Z{
			Score:  float64(rec.FinishedAt.UnixMilli()),
			Member: string(rec.ID),
		})
	}

	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetExecution(ctx context.Context, id types.ExecutionID) (*types.ExecutionRecord, error) {
	data, err := r.client.Get(ctx, r.executionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var rec types.ExecutionRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}
	return &rec, nil
}

func (r *RedisStore) ListExecutions(ctx context.Context, userID string) ([]*types.ExecutionRecord, error) {
	setKey := r.indexKey()
	if userID != "" {
		setKey = r.userIndexKey(userID)
	}

	ids, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*types.ExecutionRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.executionKey(types.ExecutionID(id))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*types.ExecutionRecord, 0, len(values))
	var expired []any
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			// registro expirou pelo TTL; o índice fica para trás
			expired = append(expired, ids[i])
			continue
		}
		var rec types.ExecutionRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		result = append(result, &rec)
	}

	if len(expired) > 0 {
		r.client.SRem(ctx, setKey, expired...)
	}
	return result, nil
}

func (r *RedisStore) DeleteExecution(ctx context.Context, id types.ExecutionID) error {
	rec, err := r.GetExecution(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		// limpa índices de um registro que já expirou
		pipe := r.client.Pipeline()
		pipe.SRem(ctx, r.indexKey(), string(id))
		pipe.ZRem(ctx, r.finishedKey(), string(id))
		_, _ = pipe.Exec(ctx)
		return err
	}
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.executionKey(id))
	pipe.SRem(ctx, r.indexKey(), string(id))
	pipe.ZRem(ctx, r.finishedKey(), string(id))
	if rec.UserID != "" {
		pipe.SRem(ctx, r.userIndexKey(rec.UserID), string(id))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) FinishedBefore(ctx context.Context, cutoff time.Time) ([]types.ExecutionID, error) {
	members, err := r.client.ZRangeByScore(ctx, r.finishedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	ids := make([]types.ExecutionID, len(members))
	for i, m := range members {
		ids[i] = types.ExecutionID(m)
	}
	return ids, nil
}

// Close fecha conexão
func (r *RedisStore) Close() error {
	return r.client.Close()
}
