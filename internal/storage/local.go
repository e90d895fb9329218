// Package storage はダウンロード済みファイルを置くローカルディレクトリを扱います。
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidName はディレクトリ外を指すファイル名に対するエラーです。
var ErrInvalidName = errors.New("invalid file name")

// Local はローカルファイルシステム上のダウンロードディレクトリです。
type Local struct {
	dir string
}

// NewLocal はディレクトリを作成（既存なら何もしない）して Local を返します。
func NewLocal(dir string) (*Local, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("download dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download dir %s: %w", dir, err)
	}
	return &Local{dir: dir}, nil
}

// Dir はディレクトリのパスを返します。
func (l *Local) Dir() string {
	return l.dir
}

// Path はファイル名をディレクトリ内のパスに変換します。
func (l *Local) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(l.dir, name), nil
}

// Open はファイルを開き、サイズ等の情報と一緒に返します。
// 存在しない場合は fs.ErrNotExist を包んだエラーを返します。
func (l *Local) Open(name string) (*os.File, fs.FileInfo, error) {
	path, err := l.Path(name)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, nil, fmt.Errorf("%s is a directory: %w", name, fs.ErrNotExist)
	}
	return file, info, nil
}

// Remove はファイルを削除します。
func (l *Local) Remove(name string) error {
	path, err := l.Path(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// Sweep は更新時刻が cutoff より古いファイルを削除し、削除したファイル名を返します。
func (l *Local) Sweep(cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}

	var (
		removed []string
		errs    []error
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(l.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, entry.Name())
	}
	return removed, errors.Join(errs...)
}
