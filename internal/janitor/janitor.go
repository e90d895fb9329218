// Package janitor は受け取られずに残ったジョブのエントリとファイルを定期的に片付けます。
package janitor

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yourusername/ytube/internal/jobs"
	"github.com/yourusername/ytube/internal/storage"
)

// InFlightChecker は実行中のジョブかどうかを判定します。
type InFlightChecker interface {
	InFlight(key string) bool
}

// Report は1回の掃除の結果です。
type Report struct {
	Entries []string
	Files   []string
}

// Janitor は古いレジストリエントリとダウンロードファイルを削除します。
type Janitor struct {
	store      jobs.Store
	inflight   InFlightChecker
	files      *storage.Local
	staleAfter time.Duration
	logger     *log.Logger
	now        func() time.Time

	cron *cron.Cron
}

// New は Janitor を作成します。
func New(store jobs.Store, inflight InFlightChecker, files *storage.Local, staleAfter time.Duration, logger *log.Logger) (*Janitor, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if files == nil {
		return nil, errors.New("storage is nil")
	}
	if staleAfter <= 0 {
		return nil, errors.New("staleAfter must be positive")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Janitor{
		store:      store,
		inflight:   inflight,
		files:      files,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Start は cron 式に従って掃除を開始します。空の式では何もしません。
func (j *Janitor) Start(schedule string) error {
	if schedule == "" {
		return nil
	}
	c := cron.New(cron.WithChain(
		cron.Recover(cron.VerbosePrintfLogger(j.logger)),
		cron.SkipIfStillRunning(cron.VerbosePrintfLogger(j.logger)),
	))
	if _, err := c.AddFunc(schedule, func() {
		j.Sweep(context.Background())
	}); err != nil {
		return err
	}
	j.cron = c
	c.Start()
	j.logger.Printf("janitor scheduled: %s (stale after %s)", schedule, j.staleAfter)
	return nil
}

// Stop はスケジュールを止め、実行中の掃除が終わると閉じる context を返します。
func (j *Janitor) Stop() context.Context {
	if j.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return j.cron.Stop()
}

// Sweep は staleAfter より更新が古いエントリ（実行中を除く）とファイルを削除します。
func (j *Janitor) Sweep(ctx context.Context) Report {
	var report Report
	cutoff := j.now().Add(-j.staleAfter)

	records, err := j.store.List(ctx)
	if err != nil {
		j.logger.Printf("janitor: failed to list registry: %v", err)
	}
	for _, record := range records {
		if !record.UpdatedAt.Before(cutoff) {
			continue
		}
		if j.inflight != nil && j.inflight.InFlight(record.Key) {
			continue
		}
		if err := j.store.Delete(ctx, record.Key); err != nil {
			j.logger.Printf("janitor: failed to delete entry url=%s: %v", record.Key, err)
			continue
		}
		report.Entries = append(report.Entries, record.Key)
	}

	removed, err := j.files.Sweep(cutoff)
	if err != nil {
		j.logger.Printf("janitor: failed to sweep %s: %v", j.files.Dir(), err)
	}
	report.Files = removed

	if len(report.Entries) > 0 || len(report.Files) > 0 {
		j.logger.Printf("janitor: removed %d entries, %d files", len(report.Entries), len(report.Files))
	}
	return report
}
