package api

import (
	"context"

	"pressindex/internal/domain/index"
	"pressindex/internal/domain/syncer"
)

// Searcher 混合检索（index.QueryEngine）
type Searcher interface {
	Search(ctx context.Context, q *index.Query) (*index.Result, error)
}

// EventProcessor 同步事件处理（syncer.Orchestrator）
type EventProcessor interface {
	HandlePayload(ctx context.Context, body []byte) (*syncer.Outcome, error)
	ReplayFailed(ctx context.Context, limit int) (*syncer.ReplayReport, error)
}

// CollectionImporter 全量导入（syncer.Importer）
type CollectionImporter interface {
	Import(ctx context.Context, opts syncer.ImportOptions) (*syncer.ImportReport, error)
}

// EventLog 同步台账查询（db/postgres.Ledger）
type EventLog interface {
	ListRecent(ctx context.Context, status syncer.OutcomeStatus, limit int) ([]*syncer.EventRecord, error)
}

// Pinger 依赖探活
type Pinger interface {
	Ping(ctx context.Context) error
}
