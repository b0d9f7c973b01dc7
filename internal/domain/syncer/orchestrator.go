package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pressindex/internal/domain/content"
	"pressindex/internal/domain/index"
	applog "pressindex/internal/platform/log"
)

// Outcome 单个事件的处理结果
type Outcome struct {
	Event     Event         `json:"event"`
	Status    OutcomeStatus `json:"status"`
	Deleted   int           `json:"deleted"`
	Written   int           `json:"written"`
	Reason    string        `json:"reason,omitempty"`
	ElapsedMs int64         `json:"elapsed_ms"`
	Err       error         `json:"-"`
}

// Orchestrator 事件入口：把生命周期事件映射为 删除/分块/写入 序列。
// 每次调用独立完成，调用之间不保留状态。
type Orchestrator struct {
	fetcher    content.Fetcher
	fragmenter *index.Fragmenter
	writer     *index.Writer
	routes     Routes

	ledger   Ledger // 可选
	locker   Locker // 可选
	lockWait time.Duration
}

// NewOrchestrator 创建同步编排器
func NewOrchestrator(fetcher content.Fetcher, fragmenter *index.Fragmenter, writer *index.Writer, routes Routes) *Orchestrator {
	if routes == nil {
		routes = DefaultRoutes()
	}
	return &Orchestrator{
		fetcher:    fetcher,
		fragmenter: fragmenter,
		writer:     writer,
		routes:     routes,
		lockWait:   10 * time.Second,
	}
}

// SetLedger 设置同步台账
func (o *Orchestrator) SetLedger(l Ledger) {
	o.ledger = l
}

// SetLocker 设置文档锁；wait 为获取锁的最长等待时间
func (o *Orchestrator) SetLocker(l Locker, wait time.Duration) {
	o.locker = l
	if wait > 0 {
		o.lockWait = wait
	}
}

// Routes 返回集合路由表
func (o *Orchestrator) Routes() Routes {
	return o.routes
}

// HandlePayload 解析 webhook 负载并处理。格式错误视为忽略，不返回错误。
func (o *Orchestrator) HandlePayload(ctx context.Context, body []byte) (*Outcome, error) {
	ev, err := ParseEvent(body)
	if err != nil {
		applog.Warn("[Sync] Dropping malformed event", "error", err)
		return &Outcome{Status: StatusIgnored, Reason: err.Error()}, nil
	}
	return o.Handle(ctx, ev)
}

// Handle 处理一个事件。失败时返回错误（事件未完整生效，可重放）。
func (o *Orchestrator) Handle(ctx context.Context, ev Event) (*Outcome, error) {
	return o.handle(ctx, ev, "")
}

func (o *Orchestrator) handle(ctx context.Context, ev Event, replayOf string) (*Outcome, error) {
	start := time.Now()
	outcome := &Outcome{Event: ev}

	kind, ok := o.routes.KindOf(ev.Collection)
	if !ok {
		applog.Info("[Sync] Ignoring event for unknown collection", "event", ev.String())
		outcome.Status = StatusIgnored
		outcome.Reason = ErrUnknownCollection.Error()
		return outcome, nil
	}

	recordID := o.begin(ctx, ev, replayOf)

	err := o.withLock(ctx, ev, func() error {
		return o.apply(ctx, kind, ev, outcome)
	})
	outcome.ElapsedMs = time.Since(start).Milliseconds()

	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		outcome.Reason = err.Error()
		applog.Error("[Sync] Event not fully applied",
			"event", ev.String(),
			"deleted", outcome.Deleted,
			"written", outcome.Written,
			"elapsed_ms", outcome.ElapsedMs,
			"error", err,
		)
	} else {
		applog.Info("[Sync] Event applied",
			"event", ev.String(),
			"status", outcome.Status,
			"deleted", outcome.Deleted,
			"written", outcome.Written,
			"elapsed_ms", outcome.ElapsedMs,
		)
	}

	o.finish(ctx, recordID, outcome)
	if err != nil {
		return outcome, fmt.Errorf("sync %s: %w", ev, err)
	}
	return outcome, nil
}

// apply 执行状态转换：
//
//	create: 已发布 → 删除旧分块后写入（重复投递的 create 不留残片）；未发布 → no-op
//	update: 删除全部旧分块 → 已发布时重新写入
//	delete: 删除全部分块
func (o *Orchestrator) apply(ctx context.Context, kind index.RecordKind, ev Event, outcome *Outcome) error {
	if ev.Kind == EventDelete {
		deleted, err := o.writer.DeleteFragmentsOf(ctx, kind, ev.DocumentID)
		outcome.Deleted = deleted
		if err != nil {
			return err
		}
		outcome.Status = StatusApplied
		return nil
	}

	// 先读取源文档再删除，内容库不可达时不会清空该文档的索引
	frags, err := o.currentFragments(ctx, kind, ev)
	if err != nil {
		return err
	}

	switch ev.Kind {
	case EventCreate:
		if len(frags) == 0 {
			outcome.Status = StatusIgnored
			outcome.Reason = "document not published"
			return nil
		}
		deleted, err := o.writer.ReplaceDocument(ctx, kind, ev.DocumentID, frags)
		outcome.Deleted = deleted
		if err != nil {
			return err
		}
		outcome.Written = len(frags)
	case EventUpdate:
		deleted, err := o.writer.ReplaceDocument(ctx, kind, ev.DocumentID, frags)
		outcome.Deleted = deleted
		if err != nil {
			return err
		}
		outcome.Written = len(frags)
		if len(frags) == 0 {
			outcome.Reason = "document not published"
		}
	}
	outcome.Status = StatusApplied
	return nil
}

// currentFragments 按文档当前状态生成分块；不存在或未发布返回空
func (o *Orchestrator) currentFragments(ctx context.Context, kind index.RecordKind, ev Event) ([]index.Fragment, error) {
	doc, err := o.fetcher.Get(ctx, ev.Collection, ev.DocumentID)
	if errors.Is(err, content.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", ev.Collection, ev.DocumentID, err)
	}
	return o.fragmenter.Fragments(kind, doc)
}

func (o *Orchestrator) withLock(ctx context.Context, ev Event, fn func() error) error {
	if o.locker == nil {
		return fn()
	}
	key := string(ev.Collection) + ":" + ev.DocumentID

	deadline := time.Now().Add(o.lockWait)
	var token string
	for {
		t, acquired, err := o.locker.Acquire(ctx, key)
		if err != nil {
			// 锁服务不可用时降级为无锁执行
			applog.Warn("[Sync] Document lock unavailable, proceeding without it", "key", key, "error", err)
			return fn()
		}
		if acquired {
			token = t
			break
		}
		if time.Now().After(deadline) {
			return ErrDocumentBusy
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	defer func() {
		// 使用独立 context，请求取消后仍能释放
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.locker.Release(releaseCtx, key, token)
	}()
	return fn()
}

func (o *Orchestrator) begin(ctx context.Context, ev Event, replayOf string) string {
	if o.ledger == nil {
		return ""
	}
	id, err := o.ledger.Begin(ctx, ev, replayOf)
	if err != nil {
		applog.Warn("[Sync] Failed to record event in ledger", "event", ev.String(), "error", err)
		return ""
	}
	return id
}

func (o *Orchestrator) finish(ctx context.Context, id string, outcome *Outcome) {
	if o.ledger == nil || id == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := o.ledger.Finish(ctx, id, outcome); err != nil {
		applog.Warn("[Sync] Failed to finish ledger record", "id", id, "error", err)
	}
}

// ReplayReport 重放统计
type ReplayReport struct {
	Attempted int      `json:"attempted"`
	Applied   int      `json:"applied"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failed_ids,omitempty"`
}

// ReplayFailed 按台账重放失败事件（最早的在前）。单个事件失败不中断批次。
func (o *Orchestrator) ReplayFailed(ctx context.Context, limit int) (*ReplayReport, error) {
	if o.ledger == nil {
		return nil, errors.New("replay: sync ledger is not configured")
	}
	if limit <= 0 {
		limit = 100
	}

	records, err := o.ledger.ListFailed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("replay: list failed events: %w", err)
	}

	report := &ReplayReport{}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Attempted++
		if _, err := o.handle(ctx, rec.Event, rec.ID); err != nil {
			report.Failed++
			report.FailedIDs = append(report.FailedIDs, rec.ID)
			continue
		}
		if err := o.ledger.MarkReplayed(ctx, rec.ID); err != nil {
			applog.Warn("[Sync] Failed to mark event replayed", "id", rec.ID, "error", err)
		}
		report.Applied++
	}

	applog.Info("[Sync] Replay finished",
		"attempted", report.Attempted,
		"applied", report.Applied,
		"failed", report.Failed,
	)
	return report, nil
}
