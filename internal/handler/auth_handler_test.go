package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/mediafav/internal/auth"
	"github.com/hitoshi/mediafav/internal/middleware"
	"github.com/hitoshi/mediafav/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn       func(ctx context.Context, in auth.RegisterInput) (*model.User, *model.Session, error)
	loginFn          func(ctx context.Context, username, password string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.User, *model.Session, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil, errors.New("not implemented")
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, model.NewUnauthorizedError()
}

// --- テストヘルパー ---

// withUserID はテスト用にコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParams はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// findCookie はレスポンスから指定名のCookieを探す。
func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// decodeErrorCode はエラーレスポンスのcodeを取り出す。
func decodeErrorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body.Code
}

func testAuthConfig() AuthHandlerConfig {
	return AuthHandlerConfig{SessionMaxAge: 86400}
}

func testUser() *model.User {
	return &model.User{ID: "user-123", Username: "alice", Email: "alice@example.com", FirstName: "Alice"}
}

func testSession() *model.Session {
	return &model.Session{ID: "session-123", UserID: "user-123", ExpiresAt: time.Now().Add(24 * time.Hour)}
}

// --- POST /auth/register ---

func TestAuthHandler_Register_Success_SetsSessionCookie(t *testing.T) {
	var got auth.RegisterInput
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.User, *model.Session, error) {
			got = in
			return testUser(), testSession(), nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	body := `{"username":"alice","password":"s3cretpass","password_confirm":"s3cretpass","email":"alice@example.com","first_name":"Alice"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.Register(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if got.Username != "alice" || got.PasswordConfirm != "s3cretpass" || got.FirstName != "Alice" {
		t.Errorf("RegisterInput = %+v", got)
	}

	cookie := findCookie(resp, middleware.SessionCookieName)
	if cookie == nil || cookie.Value != "session-123" {
		t.Fatalf("session cookie = %+v, want session-123", cookie)
	}
	if !cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
	if cookie.MaxAge != 86400 {
		t.Errorf("MaxAge = %d, want 86400", cookie.MaxAge)
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if user.ID != "user-123" || user.Username != "alice" {
		t.Errorf("user = %+v", user)
	}
}

func TestAuthHandler_Register_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"invalid json", `{`, "INVALID_REQUEST"},
		{"missing username", `{"password":"s3cretpass","password_confirm":"s3cretpass"}`, model.ErrCodeValidation},
		{"short password", `{"username":"a","password":"short","password_confirm":"short"}`, model.ErrCodeValidation},
		{"invalid email", `{"username":"a","password":"s3cretpass","password_confirm":"s3cretpass","email":"nope"}`, model.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockAuthService{
				registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.User, *model.Session, error) {
					called = true
					return nil, nil, nil
				},
			}
			h := NewAuthHandler(svc, testAuthConfig())

			req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			h.Register(w, req)

			resp := w.Result()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
			}
			if code := decodeErrorCode(t, resp); code != tt.code {
				t.Errorf("code = %q, want %q", code, tt.code)
			}
			if called {
				t.Error("service should not be called")
			}
		})
	}
}

func TestAuthHandler_Register_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"password mismatch", model.NewPasswordMismatchError(), http.StatusBadRequest},
		{"username taken", model.NewUsernameTakenError("alice"), http.StatusConflict},
		{"storage failure", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.User, *model.Session, error) {
					return nil, nil, tt.err
				},
			}
			h := NewAuthHandler(svc, testAuthConfig())

			body := `{"username":"alice","password":"s3cretpass","password_confirm":"other-pass"}`
			req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
			w := httptest.NewRecorder()
			h.Register(w, req)

			resp := w.Result()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if findCookie(resp, middleware.SessionCookieName) != nil {
				t.Error("session cookie should not be set on failure")
			}
		})
	}
}

// --- POST /auth/login ---

func TestAuthHandler_Login_Success(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.Session, error) {
			if username != "alice" || password != "s3cretpass" {
				t.Errorf("Login(%q, %q)", username, password)
			}
			return testSession(), nil
		},
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			if sessionID != "session-123" {
				t.Errorf("sessionID = %q, want session-123", sessionID)
			}
			return testUser(), nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"alice","password":"s3cretpass"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if c := findCookie(resp, middleware.SessionCookieName); c == nil || c.Value != "session-123" {
		t.Errorf("session cookie = %+v", c)
	}
}

func TestAuthHandler_Login_InvalidCredentials_Returns401(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"alice","password":"wrong"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
	if code := decodeErrorCode(t, resp); code != model.ErrCodeInvalidCredentials {
		t.Errorf("code = %q, want %q", code, model.ErrCodeInvalidCredentials)
	}
}

// --- POST /auth/logout ---

func TestAuthHandler_Logout_ClearsSessionCookie(t *testing.T) {
	var deleted string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			deleted = sessionID
			return nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-123"})
	w := httptest.NewRecorder()
	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if deleted != "session-123" {
		t.Errorf("deleted session = %q, want session-123", deleted)
	}
	if c := findCookie(resp, middleware.SessionCookieName); c == nil || c.MaxAge >= 0 {
		t.Errorf("session cookie should be expired, got %+v", c)
	}
}

func TestAuthHandler_Logout_ServiceErrorStillClearsCookie(t *testing.T) {
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			return errors.New("db error")
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-123"})
	w := httptest.NewRecorder()
	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if c := findCookie(resp, middleware.SessionCookieName); c == nil || c.MaxAge >= 0 {
		t.Errorf("session cookie should be expired, got %+v", c)
	}
}

// --- GET /auth/me ---

func TestAuthHandler_Me_ReturnsUser(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return testUser(), nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-123"})
	w := httptest.NewRecorder()
	h.Me(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var body map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&body)
	if body["username"] != "alice" || body["email"] != "alice@example.com" {
		t.Errorf("body = %v", body)
	}
}

func TestAuthHandler_Me_NoCookie_Returns401(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()
	h.Me(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Me_InvalidSession_Returns401(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "expired"})
	w := httptest.NewRecorder()
	h.Me(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}
