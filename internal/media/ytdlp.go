// Package media は外部の取得・変換ツール（yt-dlp）との連携を提供します。
package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

const (
	audioFormatSelector     = "bestaudio/best"
	defaultProgressInterval = 200 * time.Millisecond
)

// Fetcher はURLから音声ファイルを生成する外部ツールを表します。
type Fetcher interface {
	// Fetch は音声を取得・変換し、出力ディレクトリにファイルを作成します。
	Fetch(ctx context.Context, url string, onProgress ProgressFunc) error
	// Title はダウンロードせずにメタデータのタイトルだけを取得します。
	Title(ctx context.Context, url string) (string, error)
}

// YtDlpOptions は yt-dlp 実行時の設定です。
type YtDlpOptions struct {
	Executable       string
	OutputDir        string
	AudioFormat      string
	AudioQuality     string
	ProgressInterval time.Duration
}

// YtDlp は go-ytdlp を使った Fetcher 実装です。
type YtDlp struct {
	opts YtDlpOptions
}

// NewYtDlp は YtDlp を作成します。
func NewYtDlp(opts YtDlpOptions) *YtDlp {
	if opts.AudioFormat == "" {
		opts.AudioFormat = "mp3"
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaultProgressInterval
	}
	return &YtDlp{opts: opts}
}

// Extension は生成される音声ファイルの拡張子を返します。
func (y *YtDlp) Extension() string {
	return y.opts.AudioFormat
}

// Title はメタデータのみのモードで yt-dlp を実行し、タイトルを返します。
func (y *YtDlp) Title(ctx context.Context, url string) (string, error) {
	result, err := y.command().
		SkipDownload().
		DumpJSON().
		Run(ctx, url)
	if err != nil {
		return "", fmt.Errorf("yt-dlp metadata lookup failed: %w", err)
	}

	infos, err := result.GetExtractedInfo()
	if err != nil {
		return "", fmt.Errorf("failed to parse yt-dlp metadata: %w", err)
	}
	if len(infos) == 0 || infos[0].Title == nil || strings.TrimSpace(*infos[0].Title) == "" {
		return DefaultTitle, nil
	}
	return *infos[0].Title, nil
}

// Fetch はタイトルを確定させてから音声を取得・変換します。
// 出力ファイル名は SanitizeTitle(タイトル) + 拡張子 になります。
func (y *YtDlp) Fetch(ctx context.Context, url string, onProgress ProgressFunc) error {
	title, err := y.Title(ctx, url)
	if err != nil {
		return err
	}

	cmd := y.downloadCommand(title)
	cmd.ProgressFunc(y.opts.ProgressInterval, func(update ytdlp.ProgressUpdate) {
		if p, ok := translateUpdate(update); ok {
			report(onProgress, p)
		}
	})

	if _, err := cmd.Run(ctx, url); err != nil {
		return fmt.Errorf("yt-dlp download failed: %w", err)
	}

	// ダウンロード単位の finished は変換前に届くため、変換まで終えた時点で完了を通知する
	report(onProgress, Progress{Status: StatusFinished, Percent: "100%"})
	return nil
}

// downloadCommand は音声抽出用のコマンドを組み立てます。
// 更新時刻は配信元の Last-Modified ではなく作成時刻のままにし、掃除の対象にならないようにします。
func (y *YtDlp) downloadCommand(title string) *ytdlp.Command {
	cmd := y.command().
		ExtractAudio().
		AudioFormat(y.opts.AudioFormat).
		NoMtime().
		Output(filepath.Join(y.opts.OutputDir, outputTemplate(SanitizeTitle(title))))
	if y.opts.AudioQuality != "" {
		cmd.AudioQuality(y.opts.AudioQuality)
	}
	return cmd
}

func (y *YtDlp) command() *ytdlp.Command {
	cmd := ytdlp.New().
		Format(audioFormatSelector).
		NoPlaylist()
	if y.opts.Executable != "" {
		cmd.SetExecutable(y.opts.Executable)
	}
	return cmd
}

// translateUpdate は転送中の通知だけを Progress に変換します。
// 100% 到達は変換完了前なので転送しません。
func translateUpdate(update ytdlp.ProgressUpdate) (Progress, bool) {
	if update.Status != ytdlp.ProgressStatusDownloading {
		return Progress{}, false
	}
	percent := update.PercentString()
	if ParsePercent(percent) >= 100 {
		return Progress{}, false
	}
	return Progress{Status: StatusDownloading, Percent: percent}, true
}
