package api

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pressindex/internal/domain/syncer"
	applog "pressindex/internal/platform/log"
)

const maxWebhookBody = 1 << 20

// WebhookHandler 内容库 webhook 入口
type WebhookHandler struct {
	processor EventProcessor
	secret    string
	timeout   time.Duration
}

// NewWebhookHandler 创建 webhook 处理器；secret 为空时不校验
func NewWebhookHandler(processor EventProcessor, secret string, timeout time.Duration) *WebhookHandler {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &WebhookHandler{processor: processor, secret: secret, timeout: timeout}
}

// RegisterRoutes 注册 webhook 路由
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/content", h.Receive)
}

// Receive 处理事件：格式错误或未知集合返回 200（ignored），同步失败返回 500 以触发上游重试
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		got := r.Header.Get("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			writeErrorCode(w, http.StatusUnauthorized, "unauthorized", "Invalid webhook secret")
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	// 上游断开后仍完成本次同步，避免只删不写
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	outcome, err := h.processor.HandlePayload(ctx, body)
	if err != nil {
		applog.Error("[Webhook] Sync failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sync failed: "+err.Error())
		return
	}
	if outcome == nil {
		outcome = &syncer.Outcome{Status: syncer.StatusIgnored}
	}
	writeJSON(w, http.StatusOK, outcome)
}
