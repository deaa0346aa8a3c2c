package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/mediafav/internal/model"
)

// TestWriteErrorResponse_FavoriteNotFound はお気に入り削除の404が統一フォーマットで書き込まれることを検証する。
func TestWriteErrorResponse_FavoriteNotFound(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusNotFound, model.NewFavoriteNotFoundError(model.KindBook, "/works/OL45883W"))

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if body.Code != model.ErrCodeFavoriteNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeFavoriteNotFound)
	}
	if body.Category != "favorite" {
		t.Errorf("category = %q, want favorite", body.Category)
	}
	if !strings.Contains(body.Message, "/works/OL45883W") {
		t.Errorf("message should name the book key: %q", body.Message)
	}
	if body.Action == "" {
		t.Error("action should not be empty")
	}
}

// TestWriteErrorResponse_DomainErrors はドメインエラーのコードとカテゴリがそのまま返ることを検証する。
func TestWriteErrorResponse_DomainErrors(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		apiErr       *model.APIError
		wantCode     string
		wantCategory string
	}{
		{"unsupported kind", http.StatusBadRequest, model.NewUnsupportedKindError("podcast"), model.ErrCodeUnsupportedKind, "validation"},
		{"missing identity", http.StatusBadRequest, model.NewMissingIdentityError("external_id is required"), model.ErrCodeMissingIdentity, "validation"},
		{"unauthorized", http.StatusUnauthorized, model.NewUnauthorizedError(), model.ErrCodeUnauthorized, "auth"},
		{"content not found", http.StatusNotFound, model.NewContentNotFoundError(model.KindMovie, "999999"), model.ErrCodeContentNotFound, "catalog"},
		{"username taken", http.StatusConflict, model.NewUsernameTakenError("alice"), model.ErrCodeUsernameTaken, "auth"},
		{"upstream unavailable", http.StatusBadGateway, model.NewUpstreamUnavailableError("tmdb"), model.ErrCodeUpstreamUnavailable, "catalog"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			WriteErrorResponse(w, tt.statusCode, tt.apiErr)

			if w.Code != tt.statusCode {
				t.Errorf("status = %d, want %d", w.Code, tt.statusCode)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if body.Category != tt.wantCategory {
				t.Errorf("category = %q, want %q", body.Category, tt.wantCategory)
			}
		})
	}
}

// TestInternalServerError_HidesStorageDetails は内部エラーが詳細を含まない一般的な応答になることを検証する。
func TestInternalServerError_HidesStorageDetails(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	raw := w.Body.String()
	for _, leak := range []string{"pq:", "sql:", "favorites", "audiovisuals"} {
		if strings.Contains(raw, leak) {
			t.Errorf("internal error body leaks %q: %s", leak, raw)
		}
	}

	var body ErrorResponseBody
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeInternal || body.Category != "system" {
		t.Errorf("body = %+v, want INTERNAL_ERROR/system", body)
	}
}

// TestErrorResponseBody_AllFieldsPresent は全フィールドがJSONに含まれることを検証する。
func TestErrorResponseBody_AllFieldsPresent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("title is required"))

	var raw map[string]any
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	for _, field := range []string{"code", "message", "category", "action"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing required field: %s", field)
		}
	}
}
