package audio

import (
	"log"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes はジョブ関連のエンドポイントを登録します。
func RegisterRoutes(r gin.IRoutes, launcher Launcher, deliverer Deliverer, logger *log.Logger) {
	r.POST("/start", StartHandler(launcher))
	r.GET("/progress", ProgressHandler(launcher))
	r.GET("/status", StatusHandler(launcher))
	r.GET("/download", DownloadHandler(deliverer, logger))
}
