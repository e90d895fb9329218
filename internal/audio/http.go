package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/ytube/internal/jobs"
)

// deliveryChunkSize はファイル送出時の1回あたりの書き込みサイズです。
const deliveryChunkSize = 8 * 1024

// ErrJobNotFound は /status で未登録のジョブを問い合わせた場合のエラーです。
var ErrJobNotFound = errors.New("Job not found")

// Launcher はジョブの起動と進捗の監視を提供します。
type Launcher interface {
	Start(ctx context.Context, key string) error
	Watch(ctx context.Context, key string) (<-chan int, error)
	Lookup(ctx context.Context, key string) (*jobs.Record, error)
	InFlight(key string) bool
}

// Deliverer は成果物の取得と後始末を提供します。
type Deliverer interface {
	OpenResult(ctx context.Context, key string) (*Result, error)
	Finish(ctx context.Context, result *Result)
}

type startRequest struct {
	URL string `json:"url"`
}

// StartHandler は POST /start のハンドラーを返します。
func StartHandler(launcher Launcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, jobs.ErrURLRequired)
			return
		}

		if err := launcher.Start(c.Request.Context(), req.URL); err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "started"})
	}
}

// ProgressHandler は GET /progress のハンドラーを返します。
// 進捗が変わるたびに "data: <percent>" を送り、100 か負の値で終了します。
func ProgressHandler(launcher Launcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		updates, err := launcher.Watch(c.Request.Context(), c.Query("url"))
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		for percent := range updates {
			if _, err := fmt.Fprintf(c.Writer, "data: %d\n\n", percent); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

// StatusHandler は GET /status のハンドラーを返します。
func StatusHandler(launcher Launcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Query("url")
		record, err := launcher.Lookup(c.Request.Context(), key)
		if err != nil {
			respondWithError(c, err)
			return
		}
		if record == nil {
			respondWithError(c, ErrJobNotFound)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"url":       record.Key,
			"percent":   record.Percent,
			"state":     record.State(),
			"inFlight":  launcher.InFlight(key),
			"updatedAt": record.UpdatedAt,
		})
	}
}

// DownloadHandler は GET /download のハンドラーを返します。
// 最後まで送り切った場合のみファイルとレジストリのエントリを削除します。
func DownloadHandler(deliverer Deliverer, logger *log.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = log.Default()
	}
	return func(c *gin.Context) {
		result, err := deliverer.OpenResult(c.Request.Context(), c.Query("url"))
		if err != nil {
			respondWithError(c, err)
			return
		}
		defer result.Close()

		encodedName := url.PathEscape(result.Filename)
		c.Header("Content-Type", result.ContentType)
		c.Header("Content-Length", strconv.FormatInt(result.Size, 10))
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", asciiFilename(result.Filename), encodedName))
		c.Header("Cache-Control", "no-store")
		c.Status(http.StatusOK)

		if err := streamChunks(c.Request.Context(), c.Writer, result); err != nil {
			logger.Printf("download interrupted url=%s file=%s: %v", result.Key, result.Filename, err)
			return
		}

		deliverer.Finish(context.WithoutCancel(c.Request.Context()), result)
	}
}

func streamChunks(ctx context.Context, w gin.ResponseWriter, r io.Reader) error {
	buf := make([]byte, deliveryChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
			w.Flush()
		}
		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

// asciiFilename は filename= パラメータ用に引用符と非ASCII文字を置き換えます。
func asciiFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r < 0x20 || r > 0x7e {
			return '_'
		}
		return r
	}, name)
}

func respondWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, jobs.ErrURLRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": jobs.ErrURLRequired.Error()})
	case errors.Is(err, ErrFileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": ErrFileNotFound.Error()})
	case errors.Is(err, ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": ErrJobNotFound.Error()})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "Request canceled"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
