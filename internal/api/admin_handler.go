package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"pressindex/internal/domain/content"
	"pressindex/internal/domain/syncer"
	applog "pressindex/internal/platform/log"
)

// ReindexStatus 后台全量导入状态
type ReindexStatus struct {
	Running    bool                 `json:"running"`
	Collection content.Collection   `json:"collection,omitempty"`
	StartedAt  *time.Time           `json:"started_at,omitempty"`
	Report     *syncer.ImportReport `json:"report,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// AdminHandler 运维接口：全量重建、失败事件重放、台账查询
type AdminHandler struct {
	importer  CollectionImporter
	processor EventProcessor
	events    EventLog // 可选
	workers   int

	// 后台导入的生命周期由服务器持有，停机时取消
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	status ReindexStatus
	done   chan struct{}
}

// NewAdminHandler 创建运维处理器
func NewAdminHandler(importer CollectionImporter, processor EventProcessor, events EventLog, workers int) *AdminHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &AdminHandler{
		importer:  importer,
		processor: processor,
		events:    events,
		workers:   workers,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// RegisterRoutes 注册运维路由（调用方负责挂载鉴权中间件）
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Post("/reindex", h.Reindex)
		r.Get("/reindex", h.ReindexStatus)
		r.Post("/sync/replay", h.Replay)
		r.Get("/sync/events", h.ListEvents)
	})
}

type reindexRequest struct {
	Collection string `json:"collection"`
	Purge      bool   `json:"purge"`
	Workers    int    `json:"workers,omitempty"`
}

// Reindex 后台启动全量导入，同一时间只允许一个
func (h *AdminHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		writeError(w, http.StatusServiceUnavailable, "importer not configured")
		return
	}
	var req reindexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Collection == "" {
		writeError(w, http.StatusBadRequest, "collection is required")
		return
	}
	workers := req.Workers
	if workers <= 0 {
		workers = h.workers
	}

	h.mu.Lock()
	if h.status.Running {
		h.mu.Unlock()
		writeError(w, http.StatusConflict, "reindex already running")
		return
	}
	now := time.Now()
	h.status = ReindexStatus{Running: true, Collection: content.Collection(req.Collection), StartedAt: &now}
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()

	opts := syncer.ImportOptions{
		Collection: content.Collection(req.Collection),
		Purge:      req.Purge,
		Workers:    workers,
	}
	go func() {
		defer close(done)
		report, err := h.importer.Import(h.ctx, opts)

		h.mu.Lock()
		defer h.mu.Unlock()
		h.status.Running = false
		h.status.Report = report
		if err != nil {
			h.status.Error = err.Error()
			applog.Error("[Admin] Reindex failed", "collection", opts.Collection, "error", err)
		}
	}()

	applog.Info("[Admin] Reindex started", "collection", opts.Collection, "purge", opts.Purge, "workers", workers)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"collection": opts.Collection,
		"purge":      opts.Purge,
		"started":    true,
	})
}

// ReindexStatus 返回最近一次全量导入的状态
func (h *AdminHandler) ReindexStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	status := h.status
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, status)
}

// Replay 重放台账中的失败事件
func (h *AdminHandler) Replay(w http.ResponseWriter, r *http.Request) {
	if h.processor == nil {
		writeError(w, http.StatusServiceUnavailable, "sync not configured")
		return
	}
	limit := queryInt(r, "limit", 100)
	report, err := h.processor.ReplayFailed(r.Context(), limit)
	if err != nil {
		applog.Error("[Admin] Replay failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListEvents GET /admin/sync/events?status=failed&limit=50
func (h *AdminHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusServiceUnavailable, "sync ledger not configured")
		return
	}
	status := syncer.OutcomeStatus(r.URL.Query().Get("status"))
	switch status {
	case "", syncer.StatusReceived, syncer.StatusApplied, syncer.StatusIgnored, syncer.StatusFailed:
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	records, err := h.events.ListRecent(r.Context(), status, queryInt(r, "limit", 50))
	if err != nil {
		applog.Error("[Admin] List sync events failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sync events")
		return
	}
	if records == nil {
		records = []*syncer.EventRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// wait 等待后台导入结束（测试与停机使用）
func (h *AdminHandler) wait(ctx context.Context) error {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New("reindex still running")
	}
}

// shutdown 等待后台导入结束；ctx 到期则取消导入并等待其退出
func (h *AdminHandler) shutdown(ctx context.Context) error {
	err := h.wait(ctx)
	if err == nil {
		return nil
	}
	h.cancel()

	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
	return err
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
