package media

import (
	"math"
	"strconv"
	"strings"
)

// Status は外部ツールから届く進捗通知の種類です。
type Status string

const (
	StatusDownloading Status = "downloading"
	StatusFinished    Status = "finished"
)

// Progress は外部ツールの進捗通知です。Percent は "45.0%" のような文字列のまま渡されます。
type Progress struct {
	Status  Status
	Percent string
}

// ProgressFunc は進捗通知を受け取るコールバックです。
type ProgressFunc func(Progress)

// ParsePercent は "45.0%" 形式の文字列を 0〜100 の整数に変換します。
// 解釈できない場合は 0 を返します。
func ParsePercent(raw string) int {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(value) {
		return 0
	}
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return int(value)
}

func report(cb ProgressFunc, p Progress) {
	if cb == nil {
		return
	}
	cb(p)
}
