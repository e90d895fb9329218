package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/ytube/internal/media"
)

const defaultPollInterval = 200 * time.Millisecond

// Manager はジョブの起動と進捗の監視を担います。
// 1回の Start につきバックグラウンドで1つの goroutine を起動します。
type Manager struct {
	store        Store
	fetcher      media.Fetcher
	logger       *log.Logger
	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]string // ジョブキー -> RunID
}

// NewManager は Manager を初期化します。
func NewManager(store Store, fetcher media.Fetcher, pollInterval time.Duration, logger *log.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is nil")
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:        store,
		fetcher:      fetcher,
		logger:       logger,
		pollInterval: pollInterval,
		ctx:          ctx,
		cancel:       cancel,
		inflight:     make(map[string]string),
	}, nil
}

// Start はジョブを登録してバックグラウンドで実行を開始します。完了は待ちません。
// 同じキーのジョブが実行中の場合は新しいジョブを起動せず、受け付け済みとして扱います。
func (m *Manager) Start(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrURLRequired
	}

	m.mu.Lock()
	if runID, ok := m.inflight[key]; ok {
		m.mu.Unlock()
		m.logger.Printf("job already running url=%s run=%s", key, runID)
		return nil
	}
	runID := uuid.NewString()
	m.inflight[key] = runID
	m.mu.Unlock()

	if err := m.store.Set(ctx, key, 0, runID); err != nil {
		m.release(key)
		return fmt.Errorf("failed to register job: %w", err)
	}

	m.wg.Add(1)
	go m.run(key, runID)
	return nil
}

// Lookup はジョブのエントリを返します。未登録の場合は nil です。
func (m *Manager) Lookup(ctx context.Context, key string) (*Record, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrURLRequired
	}
	return m.store.Get(ctx, key)
}

// Percent は現在の進捗値を返します。未登録のキーは 0 として扱います。
func (m *Manager) Percent(ctx context.Context, key string) (int, error) {
	record, err := m.Lookup(ctx, key)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0, nil
	}
	return record.Percent, nil
}

// Forget はジョブのエントリを削除し、削除したかどうかを返します。
// 同じキーのジョブが実行中の場合や、エントリの RunID が runID と異なる場合は
// 新しい実行のものなので残します。runID が空なら RunID は照合しません。
func (m *Manager) Forget(ctx context.Context, key, runID string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, ErrURLRequired
	}

	// Start が新しい実行を登録するのと交差しないようにロックを保持する
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inflight[key]; ok {
		return false, nil
	}
	if runID != "" {
		record, err := m.store.Get(ctx, key)
		if err != nil {
			return false, err
		}
		if record == nil {
			return false, nil
		}
		if record.RunID != runID {
			return false, nil
		}
	}
	if err := m.store.Delete(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}

// InFlight はキーのジョブが実行中かどうかを返します。
func (m *Manager) InFlight(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[key]
	return ok
}

// Store はレジストリを返します。
func (m *Manager) Store() Store {
	return m.store
}

// Wait は起動済みの全ジョブが終わるまで待ちます。
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown は実行中のジョブにキャンセルを伝え、終了を待ちます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()
}
