package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/mediafav/internal/catalog"
	"github.com/hitoshi/mediafav/internal/middleware"
	"github.com/hitoshi/mediafav/internal/model"
)

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	Search(ctx context.Context, query, scope string) catalog.Result
	Recommendations(ctx context.Context) catalog.Result
	Dashboard(ctx context.Context) catalog.Dashboard
	Detail(ctx context.Context, kind model.Kind, externalID string) (*model.ContentDetail, error)
}

// CatalogHandler は外部カタログの検索・閲覧のHTTPハンドラー。
type CatalogHandler struct {
	service CatalogServiceInterface
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: service}
}

type searchResponse struct {
	Query string              `json:"query"`
	Kind  string              `json:"kind"`
	Items []model.CatalogItem `json:"items"`
}

type recommendationsResponse struct {
	Authenticated bool                `json:"authenticated"`
	Items         []model.CatalogItem `json:"items"`
}

type dashboardResponse struct {
	Movies []model.CatalogItem `json:"movies"`
	Series []model.CatalogItem `json:"series"`
	Books  []model.CatalogItem `json:"books"`
}

// Search はカタログを検索する。
// GET /api/search?q=&kind=movie|series|multi|book
// 外部APIの障害は空の結果として返す。
func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	scope := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("kind")))
	if scope == "" {
		scope = catalog.ScopeMulti
	}
	if !catalog.ValidScope(scope) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewUnsupportedKindError(scope))
		return
	}

	res := h.service.Search(r.Context(), query, scope)
	writeJSON(w, http.StatusOK, searchResponse{
		Query: query,
		Kind:  scope,
		Items: itemsOrEmpty(res),
	})
}

// Recommendations はおすすめ作品を返す。ログインの有無を問わない。
// GET /api/recommendations
func (h *CatalogHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	_, err := middleware.UserIDFromContext(r.Context())

	res := h.service.Recommendations(r.Context())
	writeJSON(w, http.StatusOK, recommendationsResponse{
		Authenticated: err == nil,
		Items:         itemsOrEmpty(res),
	})
}

// Dashboard は人気の映画・シリーズ・書籍を返す。
// GET /api/dashboard
func (h *CatalogHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d := h.service.Dashboard(r.Context())
	writeJSON(w, http.StatusOK, dashboardResponse{
		Movies: itemsOrEmpty(d.Movies),
		Series: itemsOrEmpty(d.Series),
		Books:  itemsOrEmpty(d.Books),
	})
}

// Detail はコンテンツの詳細を返す。
// GET /api/detail/{kind}/{id}
// 書籍の場合はOpen Libraryのキーをパスとして受け取る（例: /api/detail/book/works/OL45804W）。
func (h *CatalogHandler) Detail(w http.ResponseWriter, r *http.Request) {
	kindTag := chi.URLParam(r, "kind")
	kind, ok := model.ParseKind(kindTag)
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewUnsupportedKindError(kindTag))
		return
	}

	id := chi.URLParam(r, "*")
	if kind == model.KindBook && id != "" && !strings.HasPrefix(id, "/") {
		id = "/" + id
	}

	detail, err := h.service.Detail(r.Context(), kind, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// itemsOrEmpty は検索結果を常に非nilのスライスで返す。
// 外部APIのエラーはサービス層でログ済みのため、ここではDebugに留める。
func itemsOrEmpty(res catalog.Result) []model.CatalogItem {
	if res.Err != nil {
		slog.Debug("catalog section degraded", slog.String("error", res.Err.Error()))
	}
	if res.Items == nil {
		return []model.CatalogItem{}
	}
	return res.Items
}
