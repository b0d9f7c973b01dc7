package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	applog "pressindex/internal/platform/log"
)

// ServerConfig 服务配置
type ServerConfig struct {
	Host          string
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	EventTimeout  time.Duration // 单个 webhook 事件的处理超时
	WebhookSecret string        // 可选：X-Webhook-Secret 校验
	JWTSecret     string        // 管理接口 JWT 签名密钥（为空时不注册管理接口）
	JWTIssuer     string
	ImportWorkers int
}

// DefaultServerConfig 默认配置
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:          "0.0.0.0",
		Port:          8080,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  2 * time.Minute,
		EventTimeout:  90 * time.Second,
		ImportWorkers: 4,
	}
}

// Server HTTP 服务器
type Server struct {
	config    *ServerConfig
	searcher  Searcher
	processor EventProcessor
	importer  CollectionImporter
	events    EventLog
	index     Pinger
	admin     *AdminHandler
	httpSrv   *http.Server
}

// NewServer 创建服务器
func NewServer(config *ServerConfig, searcher Searcher, processor EventProcessor) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	return &Server{
		config:    config,
		searcher:  searcher,
		processor: processor,
	}
}

// SetAdmin 设置管理接口依赖（可选）
func (s *Server) SetAdmin(importer CollectionImporter, events EventLog) {
	s.importer = importer
	s.events = events
}

// SetIndexPinger 设置 /ready 探活的索引服务
func (s *Server) SetIndexPinger(p Pinger) {
	s.index = p
}

// Start 启动服务器
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	applog.Infof("🚀 Index API server starting on %s", addr)
	return s.httpSrv.ListenAndServe()
}

// Stop 优雅停机：等待进行中的请求与后台重建，超时后取消重建
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	if s.admin != nil {
		if werr := s.admin.shutdown(ctx); werr != nil {
			applog.Warn("[Server] Reindex cancelled by shutdown", "error", werr)
		}
	}
	return err
}

// Handler 返回 HTTP Handler（用于测试）
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", s.ready)

	if s.searcher != nil {
		NewSearchHandler(s.searcher).RegisterRoutes(r)
	}
	if s.processor != nil {
		NewWebhookHandler(s.processor, s.config.WebhookSecret, s.config.EventTimeout).RegisterRoutes(r)
	}

	if strings.TrimSpace(s.config.JWTSecret) == "" {
		applog.Warn("[Server] JWT_SECRET not set, admin API disabled")
		return r
	}
	if s.admin == nil {
		s.admin = NewAdminHandler(s.importer, s.processor, s.events, s.config.ImportWorkers)
	}
	jwtCfg := &JWTConfig{Secret: s.config.JWTSecret, Issuer: s.config.JWTIssuer}
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(jwtCfg))
		s.admin.RegisterRoutes(r)
	})
	return r
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.index.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "index unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "index": "ok"})
}

// corsMiddleware CORS 中间件
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
