package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/mediafav/internal/favorite"
	"github.com/hitoshi/mediafav/internal/model"
)

// FavoriteServiceInterface はお気に入りハンドラーが必要とするサービスインターフェース。
type FavoriteServiceInterface interface {
	Add(ctx context.Context, userID string, in favorite.AddInput) (*favorite.AddResult, error)
	Remove(ctx context.Context, userID, kindTag, externalID string) (*favorite.RemoveResult, error)
	Clear(ctx context.Context, userID string) (int64, error)
	List(ctx context.Context, userID string) ([]model.FavoriteRecord, error)
}

// FavoriteHandler はお気に入り管理のHTTPハンドラー。
type FavoriteHandler struct {
	service FavoriteServiceInterface
}

// NewFavoriteHandler はFavoriteHandlerを生成する。
func NewFavoriteHandler(service FavoriteServiceInterface) *FavoriteHandler {
	return &FavoriteHandler{service: service}
}

// addFavoriteRequest はお気に入り追加リクエストのボディ。
// 種別と外部IDの必須チェックはサービス層が専用のエラーコードで行う。
type addFavoriteRequest struct {
	Kind        string `json:"kind" validate:"max=16"`
	ExternalID  string `json:"external_id" validate:"max=255"`
	Title       string `json:"title" validate:"max=500"`
	Author      string `json:"author" validate:"max=500"`
	Description string `json:"description" validate:"max=10000"`
}

type removeFavoriteRequest struct {
	Kind       string `json:"kind" validate:"max=16"`
	ExternalID string `json:"external_id" validate:"max=255"`
}

type addFavoriteResponse struct {
	Created  bool                 `json:"created"`
	Favorite model.FavoriteRecord `json:"favorite"`
}

type favoriteListResponse struct {
	Favorites []model.FavoriteRecord `json:"favorites"`
}

// List はお気に入り一覧を返す。
// GET /api/favorites
func (h *FavoriteHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	records, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, favoriteListResponse{Favorites: records})
}

// Add はお気に入りを追加する。新規作成なら201、既に登録済みなら200を返す。
// POST /api/favorites
func (h *FavoriteHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req addFavoriteRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	res, err := h.service.Add(r.Context(), userID, favorite.AddInput{
		Kind:        req.Kind,
		ExternalID:  req.ExternalID,
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, addFavoriteResponse{
		Created:  res.Created,
		Favorite: res.Favorite.Record(),
	})
}

// Remove はお気に入りを1件削除する。
// DELETE /api/favorites
func (h *FavoriteHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req removeFavoriteRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if _, err := h.service.Remove(r.Context(), userID, req.Kind, req.ExternalID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Clear はユーザーの全お気に入りを削除する。
// POST /api/favorites/clear
func (h *FavoriteHandler) Clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	n, err := h.service.Clear(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": n})
}
