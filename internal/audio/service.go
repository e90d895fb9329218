// Package audio は変換済み音声ファイルの受け渡しと HTTP ハンドラーを提供します。
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"mime"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/singleflight"

	"github.com/yourusername/ytube/internal/jobs"
	"github.com/yourusername/ytube/internal/media"
	"github.com/yourusername/ytube/internal/storage"
)

// ErrFileNotFound は成果物ファイルが見つからない場合のエラーです。
var ErrFileNotFound = errors.New("File not found")

// titleLookupTimeout は共有するタイトル取得の上限時間です。
const titleLookupTimeout = 2 * time.Minute

var audioContentTypes = map[string]string{
	"mp3":    "audio/mpeg",
	"m4a":    "audio/mp4",
	"aac":    "audio/aac",
	"opus":   "audio/ogg",
	"vorbis": "audio/ogg",
	"flac":   "audio/flac",
	"wav":    "audio/wav",
}

// Registry は受け渡し対象のジョブを参照・削除できるものです。
type Registry interface {
	Lookup(ctx context.Context, key string) (*jobs.Record, error)
	Forget(ctx context.Context, key, runID string) (bool, error)
}

// Service は成果物ファイルの特定・送出後の後始末を担います。
type Service struct {
	fetcher  media.Fetcher
	files    *storage.Local
	registry Registry
	ext      string
	logger   *log.Logger

	titles singleflight.Group
}

// NewService は Service を作成します。
func NewService(fetcher media.Fetcher, files *storage.Local, registry Registry, ext string, logger *log.Logger) (*Service, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is nil")
	}
	if files == nil {
		return nil, errors.New("storage is nil")
	}
	if registry == nil {
		return nil, errors.New("registry is nil")
	}
	if ext == "" {
		ext = "mp3"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		fetcher:  fetcher,
		files:    files,
		registry: registry,
		ext:      ext,
		logger:   logger,
	}, nil
}

// Result は送出対象の成果物ファイルです。
type Result struct {
	Key         string
	RunID       string
	Filename    string
	Size        int64
	ContentType string

	file      *os.File
	closeOnce sync.Once
	closeErr  error
}

// Read はファイルの内容を読み出します。
func (r *Result) Read(p []byte) (int, error) {
	return r.file.Read(p)
}

// Close はファイルを閉じます。複数回呼んでも安全です。
func (r *Result) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	r.closeOnce.Do(func() {
		r.closeErr = r.file.Close()
	})
	return r.closeErr
}

// OpenResult はメタデータからファイル名を求め直し、成果物ファイルを開きます。
// タイトルが取得できない場合やファイルが無い場合は ErrFileNotFound を返します。
func (s *Service) OpenResult(ctx context.Context, key string) (*Result, error) {
	if strings.TrimSpace(key) == "" {
		return nil, jobs.ErrURLRequired
	}

	title, err := s.lookupTitle(ctx, key)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Printf("failed to resolve output name url=%s: %v", key, err)
		return nil, fmt.Errorf("%w: %v", ErrFileNotFound, err)
	}

	filename := media.OutputFilename(title, s.ext)
	file, info, err := s.files.Open(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, storage.ErrInvalidName) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filename)
		}
		return nil, err
	}

	contentType, err := s.detectContentType(file)
	if err != nil {
		file.Close()
		return nil, err
	}

	var runID string
	if record, err := s.registry.Lookup(ctx, key); err != nil {
		s.logger.Printf("failed to look up job url=%s: %v", key, err)
	} else if record != nil {
		runID = record.RunID
	}

	return &Result{
		Key:         key,
		RunID:       runID,
		Filename:    filename,
		Size:        info.Size(),
		ContentType: contentType,
		file:        file,
	}, nil
}

// Finish は送出が終わった成果物を削除し、レジストリからジョブを外します。
// 開いた後に同じキーで新しい実行が始まっていれば、そのエントリは残します。
// 削除の失敗はログに残すだけでエラーにはしません。
func (s *Service) Finish(ctx context.Context, result *Result) {
	if result == nil {
		return
	}
	if err := result.Close(); err != nil {
		s.logger.Printf("failed to close %s: %v", result.Filename, err)
	}
	if err := s.files.Remove(result.Filename); err != nil {
		s.logger.Printf("Error deleting file %s: %v", result.Filename, err)
	}
	removed, err := s.registry.Forget(ctx, result.Key, result.RunID)
	if err != nil {
		s.logger.Printf("failed to forget job url=%s: %v", result.Key, err)
		return
	}
	if !removed {
		s.logger.Printf("registry entry url=%s left in place", result.Key)
	}
}

// lookupTitle は同じキーのタイトル取得を1回の実行にまとめます。
// 共有の実行は呼び出し元の切断では止めず、各呼び出し元は自分の ctx だけで待つのをやめます。
func (s *Service) lookupTitle(ctx context.Context, key string) (string, error) {
	ch := s.titles.DoChan(key, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), titleLookupTimeout)
		defer cancel()
		return s.fetcher.Title(lookupCtx, key)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *Service) detectContentType(file *os.File) (string, error) {
	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		return "", fmt.Errorf("failed to detect content type: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind %s: %w", file.Name(), err)
	}

	if mtype != nil && !mtype.Is("application/octet-stream") && !mtype.Is("text/plain") {
		return mtype.String(), nil
	}
	if byExt, ok := audioContentTypes[s.ext]; ok {
		return byExt, nil
	}
	if byExt := mime.TypeByExtension("." + s.ext); byExt != "" {
		return byExt, nil
	}
	return "application/octet-stream", nil
}
