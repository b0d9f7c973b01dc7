package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"pressindex/internal/domain/content"
	"pressindex/internal/domain/syncer"
	applog "pressindex/internal/platform/log"
)

// Ledger 同步事件台账（sync_events 表）
type Ledger struct {
	db *sql.DB
	// 超过该时长仍为 received 的记录视为处理中断（进程退出等），可重放
	staleAfter time.Duration
}

var _ syncer.Ledger = (*Ledger)(nil)

// NewLedger 创建 PostgreSQL 台账；staleAfter 应大于单个事件的处理超时
func NewLedger(db *sql.DB, staleAfter time.Duration) *Ledger {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &Ledger{db: db, staleAfter: staleAfter}
}

// EnsureTable 确保 sync_events 表存在
func (l *Ledger) EnsureTable(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS sync_events (
		id          UUID PRIMARY KEY,
		collection  VARCHAR(128) NOT NULL,
		event_kind  VARCHAR(16) NOT NULL,
		document_id VARCHAR(255) NOT NULL,
		status      VARCHAR(16) NOT NULL DEFAULT 'received',
		deleted     INTEGER NOT NULL DEFAULT 0,
		written     INTEGER NOT NULL DEFAULT 0,
		error       TEXT NOT NULL DEFAULT '',
		replay_of   UUID,
		replayed    BOOLEAN NOT NULL DEFAULT FALSE,
		elapsed_ms  BIGINT NOT NULL DEFAULT 0,
		received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		finished_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_sync_events_status ON sync_events (status, replayed, received_at);
	CREATE INDEX IF NOT EXISTS idx_sync_events_document ON sync_events (collection, document_id);
	`
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure sync_events table: %w", err)
	}
	return nil
}

// Begin 记录收到的事件
func (l *Ledger) Begin(ctx context.Context, ev syncer.Event, replayOf string) (string, error) {
	id := uuid.New().String()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO sync_events (id, collection, event_kind, document_id, status, replay_of, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, string(ev.Collection), string(ev.Kind), ev.DocumentID, string(syncer.StatusReceived), nullIfEmpty(replayOf), time.Now(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Finish 写入处理结果
func (l *Ledger) Finish(ctx context.Context, id string, outcome *syncer.Outcome) error {
	errText := ""
	if outcome.Status == syncer.StatusFailed {
		errText = outcome.Reason
	}
	_, err := l.db.ExecContext(ctx,
		`UPDATE sync_events SET status=$1, deleted=$2, written=$3, error=$4, elapsed_ms=$5, finished_at=$6
		 WHERE id=$7`,
		string(outcome.Status), outcome.Deleted, outcome.Written, errText, outcome.ElapsedMs, time.Now(), id,
	)
	return err
}

// ListFailed 返回未被成功重放的失败事件（最早的在前），
// 包括停留在 received 超过 staleAfter 的中断事件
func (l *Ledger) ListFailed(ctx context.Context, limit int) ([]*syncer.EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return l.list(ctx,
		[]string{"(status = $1 OR (status = $2 AND received_at < $3))", "replayed = FALSE"},
		[]interface{}{string(syncer.StatusFailed), string(syncer.StatusReceived), time.Now().Add(-l.staleAfter)},
		"received_at ASC", limit)
}

// ListRecent 返回最近的事件（最新的在前）
func (l *Ledger) ListRecent(ctx context.Context, status syncer.OutcomeStatus, limit int) ([]*syncer.EventRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var where []string
	var args []interface{}
	if status != "" {
		where = append(where, "status = $1")
		args = append(args, string(status))
	}
	return l.list(ctx, where, args, "received_at DESC", limit)
}

// MarkReplayed 标记失败事件已被成功重放
func (l *Ledger) MarkReplayed(ctx context.Context, id string) error {
	res, err := l.db.ExecContext(ctx, `UPDATE sync_events SET replayed = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		applog.Warn("[Ledger] Replayed event not found", "id", id)
	}
	return nil
}

func (l *Ledger) list(ctx context.Context, where []string, args []interface{}, orderBy string, limit int) ([]*syncer.EventRecord, error) {
	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}
	query := fmt.Sprintf(
		`SELECT id, collection, event_kind, document_id, status, deleted, written, error, COALESCE(replay_of::text,''), replayed, elapsed_ms, received_at, finished_at
		 FROM sync_events %s ORDER BY %s LIMIT $%d`,
		whereClause, orderBy, len(args)+1,
	)
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*syncer.EventRecord
	for rows.Next() {
		rec := &syncer.EventRecord{}
		var collection, kind, status string
		var finishedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &collection, &kind, &rec.Event.DocumentID, &status, &rec.Deleted, &rec.Written, &rec.Error,
			&rec.ReplayOf, &rec.Replayed, &rec.ElapsedMs, &rec.ReceivedAt, &finishedAt); err != nil {
			return nil, err
		}
		rec.Event.Collection = content.Collection(collection)
		rec.Event.Kind = syncer.EventKind(kind)
		rec.Status = syncer.OutcomeStatus(status)
		if finishedAt.Valid {
			t := finishedAt.Time
			rec.FinishedAt = &t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
