package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	progressKeyPrefix = "progress:"
	maxTxRetries      = 10
)

// RedisStore は進捗を Redis に保存します。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore は RedisStore を作成します。ttl が 0 の場合は期限なしで保存します。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get はエントリを取得します。
func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, fmt.Errorf("key is required")
	}
	data, err := s.rdb.Get(ctx, progressKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Set はエントリを保存します（存在する場合は上書き）。
func (s *RedisStore) Set(ctx context.Context, key string, percent int, runID string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	payload, err := json.Marshal(&Record{
		Key:       key,
		Percent:   percent,
		RunID:     runID,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, progressKey(key), payload, s.ttl).Err()
}

// Advance は WATCH で楽観ロックを取りながら進捗を単調に更新します。
func (s *RedisStore) Advance(ctx context.Context, key string, percent int) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	rkey := progressKey(key)
	txf := func(tx *redis.Tx) error {
		record := Record{Key: key}
		data, err := tx.Get(ctx, rkey).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(data, &record); err != nil {
				return err
			}
			if !shouldAdvance(record.Percent, percent) {
				return nil
			}
		}

		record.Percent = percent
		record.UpdatedAt = time.Now().UTC()
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rkey, payload, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, rkey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("progress update for %s kept conflicting", key)
}

// Delete はエントリを削除します。
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, progressKey(key)).Err()
}

// List は progress: プレフィックスの全エントリを返します。
func (s *RedisStore) List(ctx context.Context) ([]Record, error) {
	var records []Record
	iter := s.rdb.Scan(ctx, 0, progressKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

// Reset は progress: プレフィックスの全エントリを削除します。
func (s *RedisStore) Reset(ctx context.Context) error {
	iter := s.rdb.Scan(ctx, 0, progressKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func progressKey(key string) string {
	return progressKeyPrefix + key
}
