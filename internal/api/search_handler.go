package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"pressindex/internal/domain/index"
	applog "pressindex/internal/platform/log"
)

const maxSearchLimit = 100

// SearchHandler 对外检索接口
type SearchHandler struct {
	searcher Searcher
}

// NewSearchHandler 创建检索处理器
func NewSearchHandler(searcher Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// RegisterRoutes 注册检索路由
func (h *SearchHandler) RegisterRoutes(r chi.Router) {
	r.Post("/search", h.Search)
}

type searchRequest struct {
	Query string   `json:"query"`
	Kinds []string `json:"kinds,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

// Search POST /search {query, kinds?, limit?} -> {results: [...]}
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Limit < 0 || req.Limit > maxSearchLimit {
		writeError(w, http.StatusBadRequest, "limit must be between 0 and 100")
		return
	}

	q := &index.Query{Text: req.Query, Limit: req.Limit}
	for _, k := range req.Kinds {
		kind, ok := index.ParseRecordKind(k)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown kind: "+k)
			return
		}
		q.Kinds = append(q.Kinds, kind)
	}

	result, err := h.searcher.Search(r.Context(), q)
	if err != nil {
		if errors.Is(err, index.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}
		applog.Error("[Search] Query failed", "query", req.Query, "error", err)
		writeError(w, http.StatusBadGateway, "search backend unavailable")
		return
	}
	if result.Results == nil {
		result.Results = []index.ResultItem{}
	}
	writeBody(w, http.StatusOK, result)
}
