package jobs

import (
	"context"
	"strings"
	"time"
)

// Watch はレジストリを一定間隔で確認し、値が変わるたびに進捗を送るチャネルを返します。
// 最初の値は必ず送ります。100 または負の値を送った後、もしくは ctx の終了でチャネルを閉じます。
// 未登録のキーは 0 のまま監視を続けます。
func (m *Manager) Watch(ctx context.Context, key string) (<-chan int, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrURLRequired
	}

	out := make(chan int)
	go func() {
		defer close(out)

		ticker := time.NewTicker(m.pollInterval)
		defer ticker.Stop()

		var (
			last int
			sent bool
		)
		for {
			percent, err := m.Percent(ctx, key)
			switch {
			case err != nil:
				if ctx.Err() != nil {
					return
				}
				m.logger.Printf("failed to read progress url=%s: %v", key, err)
			case !sent || percent != last:
				select {
				case out <- percent:
				case <-ctx.Done():
					return
				}
				last, sent = percent, true
			}

			if sent && IsTerminal(last) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out, nil
}
