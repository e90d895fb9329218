// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// RegistryBackendMemory はプロセス内マップで進捗を保持します。
	RegistryBackendMemory = "memory"
	// RegistryBackendRedis は Redis に進捗を保持します。
	RegistryBackendRedis = "redis"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ファイル配置
	DownloadDir string // 変換済み音声ファイルの保存先
	StaticDir   string // index.html と assets/ を置くディレクトリ

	// 外部ツール設定
	YtDlpPath    string // yt-dlp 実行ファイルのパス
	AudioFormat  string // 抽出後の音声形式
	AudioQuality string // 変換品質 (kbps)

	// 進捗設定
	ProgressPollMillis int // /progress がレジストリを確認する間隔（ミリ秒）

	// レジストリ設定
	RegistryBackend    string // memory または redis
	RedisURL           string // Redis接続URL
	RegistryTTLMinutes int    // Redis上のエントリ有効期限（0で無期限）

	// 掃除設定
	JanitorSchedule   string // cron式（空なら無効）
	StaleAfterMinutes int    // 放置されたエントリ・ファイルとみなすまでの時間（分）
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		Port:    getEnv("PORT", "5000"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5000"),

		DownloadDir: getEnv("DOWNLOAD_DIR", "downloads"),
		StaticDir:   getEnv("STATIC_DIR", "web"),

		YtDlpPath:    getEnv("YTDLP_PATH", "yt-dlp"),
		AudioFormat:  getEnv("AUDIO_FORMAT", "mp3"),
		AudioQuality: getEnv("AUDIO_QUALITY", "192K"),

		ProgressPollMillis: getEnvAsInt("PROGRESS_POLL_MS", 200),

		RegistryBackend:    strings.ToLower(getEnv("REGISTRY_BACKEND", RegistryBackendMemory)),
		RedisURL:           getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		RegistryTTLMinutes: getEnvAsInt("REGISTRY_TTL_MINUTES", 0),

		JanitorSchedule:   os.Getenv("JANITOR_SCHEDULE"),
		StaleAfterMinutes: getEnvAsInt("STALE_AFTER_MINUTES", 60),
	}
	if _, ok := os.LookupEnv("JANITOR_SCHEDULE"); !ok {
		config.JanitorSchedule = "@every 10m"
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be a number: %q", c.Port)
	}
	if strings.TrimSpace(c.DownloadDir) == "" {
		return fmt.Errorf("DOWNLOAD_DIR is required")
	}
	if strings.TrimSpace(c.YtDlpPath) == "" {
		return fmt.Errorf("YTDLP_PATH is required")
	}
	if strings.TrimSpace(c.AudioFormat) == "" {
		return fmt.Errorf("AUDIO_FORMAT is required")
	}
	if c.ProgressPollMillis <= 0 {
		return fmt.Errorf("PROGRESS_POLL_MS must be positive")
	}

	switch c.RegistryBackend {
	case RegistryBackendMemory:
	case RegistryBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when REGISTRY_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unsupported REGISTRY_BACKEND: %s", c.RegistryBackend)
	}

	if c.StaleAfterMinutes <= 0 {
		return fmt.Errorf("STALE_AFTER_MINUTES must be positive")
	}

	return nil
}

// PollInterval は進捗確認の間隔を返します。
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.ProgressPollMillis) * time.Millisecond
}

// RegistryTTL は Redis エントリの有効期限を返します（0 は無期限）。
func (c *Config) RegistryTTL() time.Duration {
	if c.RegistryTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(c.RegistryTTLMinutes) * time.Minute
}

// StaleAfter は放置とみなすまでの時間を返します。
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
