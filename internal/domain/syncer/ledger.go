package syncer

import (
	"context"
	"time"
)

// OutcomeStatus 事件处理结果
type OutcomeStatus string

const (
	StatusReceived OutcomeStatus = "received"
	StatusApplied  OutcomeStatus = "applied"
	StatusIgnored  OutcomeStatus = "ignored"
	StatusFailed   OutcomeStatus = "failed"
)

// EventRecord 同步台账中的一条记录
type EventRecord struct {
	ID         string        `json:"id"`
	Event      Event         `json:"event"`
	Status     OutcomeStatus `json:"status"`
	Deleted    int           `json:"deleted"`
	Written    int           `json:"written"`
	Error      string        `json:"error,omitempty"`
	ReplayOf   string        `json:"replay_of,omitempty"`
	Replayed   bool          `json:"replayed"`
	ElapsedMs  int64         `json:"elapsed_ms"`
	ReceivedAt time.Time     `json:"received_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// Ledger 同步事件台账（由 db/postgres 实现）。
// 台账只用于排查与重放，写入失败不影响同步本身。
type Ledger interface {
	// Begin 记录收到的事件，返回记录 ID
	Begin(ctx context.Context, ev Event, replayOf string) (string, error)
	// Finish 写入处理结果
	Finish(ctx context.Context, id string, outcome *Outcome) error
	// ListFailed 返回尚未被成功重放的失败或处理中断的事件（最早的在前）
	ListFailed(ctx context.Context, limit int) ([]*EventRecord, error)
	// ListRecent 返回最近的事件（最新的在前），status 为空表示不过滤
	ListRecent(ctx context.Context, status OutcomeStatus, limit int) ([]*EventRecord, error)
	// MarkReplayed 标记失败事件已被成功重放
	MarkReplayed(ctx context.Context, id string) error
}

// Locker 跨进程的文档级互斥（由 db/redis 实现）
type Locker interface {
	// Acquire 成功时返回本次持有的令牌，Release 时原样交回
	Acquire(ctx context.Context, key string) (token string, ok bool, err error)
	// Release 仅当锁仍由 token 持有时释放
	Release(ctx context.Context, key, token string) error
}
