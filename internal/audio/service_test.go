package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/ytube/internal/jobs"
	"github.com/yourusername/ytube/internal/media"
)

func TestNewServiceValidatesArguments(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{})

	_, err := NewService(nil, env.files, env.manager, "mp3", nil)
	assert.Error(t, err)
	_, err = NewService(env.fetcher, nil, env.manager, "mp3", nil)
	assert.Error(t, err)
	_, err = NewService(env.fetcher, env.files, nil, "mp3", nil)
	assert.Error(t, err)

	svc, err := NewService(env.fetcher, env.files, env.manager, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "mp3", svc.ext)
}

func TestOpenResultRequiresURL(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{title: "x"})
	_, err := env.service.OpenResult(context.Background(), "  ")
	assert.ErrorIs(t, err, jobs.ErrURLRequired)
}

func TestOpenResultTitleFailureIsNotFound(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{titleErr: errors.New("yt-dlp exited 1")})
	_, err := env.service.OpenResult(context.Background(), testURL)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestOpenResultFallsBackToExtensionType(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{title: "Plain"})
	require.NoError(t, os.WriteFile(filepath.Join(env.files.Dir(), "Plain.mp3"), []byte("not really audio"), 0o644))

	result, err := env.service.OpenResult(context.Background(), testURL)
	require.NoError(t, err)
	defer result.Close()
	assert.Equal(t, "audio/mpeg", result.ContentType)
	assert.Equal(t, int64(len("not really audio")), result.Size)
}

func TestConcurrentOpenResultSharesTitleLookups(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{title: "Shared"})
	require.NoError(t, os.WriteFile(filepath.Join(env.files.Dir(), "Shared.mp3"), []byte("ID3"), 0o644))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := env.service.OpenResult(context.Background(), testURL)
			if assert.NoError(t, err) {
				result.Close()
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, env.fetcher.titleCalls.Load(), int32(8))
	assert.GreaterOrEqual(t, env.fetcher.titleCalls.Load(), int32(1))
}

func TestFinishToleratesMissingFile(t *testing.T) {
	env := newTestEnv(t, &stubFetcher{title: "Gone"})
	path := filepath.Join(env.files.Dir(), "Gone.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3"), 0o644))
	require.NoError(t, env.store.Set(context.Background(), testURL, 100, ""))

	result, err := env.service.OpenResult(context.Background(), testURL)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	env.service.Finish(context.Background(), result)

	record, err := env.store.Get(context.Background(), testURL)
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.NoError(t, result.Close(), "Close must be idempotent")
}

func TestOpenResultSurvivesOtherCallerCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	env := newTestEnv(t, &stubFetcher{titleFunc: func(ctx context.Context, url string) (string, error) {
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "Shared", nil
	}})
	require.NoError(t, os.WriteFile(filepath.Join(env.files.Dir(), "Shared.mp3"), []byte("ID3"), 0o644))

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := env.service.OpenResult(firstCtx, testURL)
		firstErr <- err
	}()
	<-started

	type openResult struct {
		result *Result
		err    error
	}
	second := make(chan openResult, 1)
	go func() {
		result, err := env.service.OpenResult(context.Background(), testURL)
		second <- openResult{result, err}
	}()

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller did not return")
	}

	// 2つ目の呼び出しが共有の取得に合流するのを待つ
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case got := <-second:
		require.NoError(t, got.err)
		defer got.result.Close()
		assert.Equal(t, "Shared.mp3", got.result.Filename)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}
}

func TestFinishKeepsEntryOfNewerRun(t *testing.T) {
	release := make(chan struct{})
	env := newTestEnv(t, &stubFetcher{
		title: "Rerun",
		fetch: func(ctx context.Context, url string, cb media.ProgressFunc) error {
			<-release
			return nil
		},
	})
	ctx := context.Background()
	path := filepath.Join(env.files.Dir(), "Rerun.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3"), 0o644))
	require.NoError(t, env.store.Set(ctx, testURL, 100, "first-run"))

	result, err := env.service.OpenResult(ctx, testURL)
	require.NoError(t, err)
	assert.Equal(t, "first-run", result.RunID)

	// 受け渡し中に同じURLで再実行される
	require.NoError(t, env.manager.Start(ctx, testURL))
	close(release)
	env.manager.Wait()

	env.service.Finish(ctx, result)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "delivered file should still be removed")
	record, err := env.store.Get(ctx, testURL)
	require.NoError(t, err)
	require.NotNil(t, record, "entry of the newer run must be kept")
	assert.NotEqual(t, "first-run", record.RunID)
	assert.Equal(t, jobs.PercentComplete, record.Percent)
}
