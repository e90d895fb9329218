package jobs

import (
	"errors"
	"time"
)

const (
	// PercentComplete はジョブ完了を表す進捗値です。
	PercentComplete = 100
	// PercentFailed はジョブ失敗を表す番兵値です。
	PercentFailed = -1
)

// ErrURLRequired はジョブキー（URL）が指定されていない場合のエラーです。
var ErrURLRequired = errors.New("URL required")

// State は進捗値から導かれるジョブの状態です。
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "done"
	StateFailed    State = "error"
)

// Record はレジストリに保存される進捗エントリです。
type Record struct {
	Key       string    `json:"key"`
	Percent   int       `json:"percent"`
	RunID     string    `json:"runId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// State は Percent から状態を返します。
func (r *Record) State() State {
	return StateOf(r.Percent)
}

// StateOf は進捗値を状態に変換します。
func StateOf(percent int) State {
	switch {
	case percent < 0:
		return StateFailed
	case percent >= PercentComplete:
		return StateSucceeded
	default:
		return StateRunning
	}
}

// IsTerminal は進捗値が完了または失敗かどうかを返します。
func IsTerminal(percent int) bool {
	return StateOf(percent) != StateRunning
}
