package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store はジョブキーから進捗への対応を保持するレジストリです。
type Store interface {
	// Get はエントリを返します。存在しない場合は nil, nil です。
	Get(ctx context.Context, key string) (*Record, error)
	// Set はエントリを作成または上書きします。
	Set(ctx context.Context, key string, percent int, runID string) error
	// Advance は進捗を更新します。既存の値より小さい値では更新しません。
	Advance(ctx context.Context, key string, percent int) error
	// Delete はエントリを削除します。存在しなくてもエラーにしません。
	Delete(ctx context.Context, key string) error
	// List は全エントリを返します。
	List(ctx context.Context) ([]Record, error)
	// Reset は全エントリを削除します。
	Reset(ctx context.Context) error
}

// MemoryStore はプロセス内のマップに進捗を保持します。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore は MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Get はエントリを返します。
func (s *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, fmt.Errorf("key is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// Set はエントリを作成または上書きします。
func (s *MemoryStore) Set(ctx context.Context, key string, percent int, runID string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = Record{
		Key:       key,
		Percent:   percent,
		RunID:     runID,
		UpdatedAt: s.now(),
	}
	return nil
}

// Advance は進捗を単調に更新します。
func (s *MemoryStore) Advance(ctx context.Context, key string, percent int) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[key]
	if ok && !shouldAdvance(record.Percent, percent) {
		return nil
	}
	record.Key = key
	record.Percent = percent
	record.UpdatedAt = s.now()
	s.records[key] = record
	return nil
}

// Delete はエントリを削除します。
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// List は全エントリをキー順で返します。
func (s *MemoryStore) List(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]Record, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records, nil
}

// Reset は全エントリを削除します。
func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]Record)
	return nil
}

// shouldAdvance は失敗済みのエントリと後退する値を拒否します。
func shouldAdvance(current, next int) bool {
	if current < 0 {
		return false
	}
	return next > current
}
