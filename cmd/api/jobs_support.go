package main

import (
	"context"
	"fmt"
	"log"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/ytube/internal/audio"
	"github.com/yourusername/ytube/internal/config"
	"github.com/yourusername/ytube/internal/janitor"
	"github.com/yourusername/ytube/internal/jobs"
	"github.com/yourusername/ytube/internal/media"
	"github.com/yourusername/ytube/internal/storage"
)

// app は起動時に組み立てる依存関係をまとめたものです。
type app struct {
	manager *jobs.Manager
	service *audio.Service
	janitor *janitor.Janitor
	closers []func() error
}

func (a *app) close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			log.Printf("failed to close resource: %v", err)
		}
	}
}

func setupStore(ctx context.Context, cfg *config.Config) (jobs.Store, func() error, error) {
	if cfg.RegistryBackend != config.RegistryBackendRedis {
		return jobs.NewMemoryStore(), func() error { return nil }, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	redisClient := redis.NewClient(opt)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
	}

	store := jobs.NewRedisStore(redisClient, cfg.RegistryTTL())
	// 再起動をまたいで進捗を持ち越さない
	if err := store.Reset(ctx); err != nil {
		redisClient.Close()
		return nil, nil, fmt.Errorf("failed to reset progress registry: %w", err)
	}
	return store, redisClient.Close, nil
}

func setupApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*app, error) {
	files, err := storage.NewLocal(cfg.DownloadDir)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := setupStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{closers: []func() error{closeStore}}

	fetcher := media.NewYtDlp(media.YtDlpOptions{
		Executable:       cfg.YtDlpPath,
		OutputDir:        files.Dir(),
		AudioFormat:      cfg.AudioFormat,
		AudioQuality:     cfg.AudioQuality,
		ProgressInterval: cfg.PollInterval(),
	})

	a.manager, err = jobs.NewManager(store, fetcher, cfg.PollInterval(), logger)
	if err != nil {
		a.close()
		return nil, err
	}

	a.service, err = audio.NewService(fetcher, files, a.manager, fetcher.Extension(), logger)
	if err != nil {
		a.close()
		return nil, err
	}

	a.janitor, err = janitor.New(store, a.manager, files, cfg.StaleAfter(), logger)
	if err != nil {
		a.close()
		return nil, err
	}
	if err := a.janitor.Start(cfg.JanitorSchedule); err != nil {
		a.close()
		return nil, fmt.Errorf("invalid JANITOR_SCHEDULE: %w", err)
	}

	return a, nil
}
