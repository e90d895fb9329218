// Package jobs はジョブの進捗レジストリ、バックグラウンド実行、進捗の監視を提供します。
package jobs

import (
	"context"
	"fmt"

	"github.com/yourusername/ytube/internal/media"
)

// run は1つのジョブを最後まで実行します。
// 失敗はレジストリの番兵値としてのみ記録し、呼び出し元には返しません。
func (m *Manager) run(key, runID string) {
	defer m.wg.Done()
	defer m.release(key)
	defer func() {
		if r := recover(); r != nil {
			m.fail(key, runID, fmt.Errorf("panic: %v", r))
		}
	}()

	m.logger.Printf("job started url=%s run=%s", key, runID)

	err := m.fetcher.Fetch(m.ctx, key, func(p media.Progress) {
		m.onProgress(key, p)
	})
	if err != nil {
		m.fail(key, runID, err)
		return
	}

	m.advance(key, PercentComplete)
	m.logger.Printf("job finished url=%s run=%s", key, runID)
}

func (m *Manager) onProgress(key string, p media.Progress) {
	switch p.Status {
	case media.StatusDownloading:
		m.advance(key, media.ParsePercent(p.Percent))
	case media.StatusFinished:
		m.advance(key, PercentComplete)
	}
}

func (m *Manager) advance(key string, percent int) {
	if err := m.store.Advance(context.Background(), key, percent); err != nil {
		m.logger.Printf("failed to update progress url=%s: %v", key, err)
	}
}

func (m *Manager) fail(key, runID string, cause error) {
	m.logger.Printf("job failed url=%s run=%s: %v", key, runID, cause)
	if err := m.store.Set(context.Background(), key, PercentFailed, runID); err != nil {
		m.logger.Printf("failed to record job failure url=%s: %v", key, err)
	}
}
