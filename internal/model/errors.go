// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, catalog, favorite, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnsupportedKind     = "UNSUPPORTED_KIND"
	ErrCodeMissingIdentity     = "MISSING_IDENTITY"
	ErrCodeFavoriteNotFound    = "FAVORITE_NOT_FOUND"
	ErrCodeContentNotFound     = "CONTENT_NOT_FOUND"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodePasswordMismatch    = "PASSWORD_MISMATCH"
	ErrCodeUsernameTaken       = "USERNAME_TAKEN"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// HasCode はerrのチェーン中に指定コードのAPIErrorが含まれるかを判定する。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewUnsupportedKindError は未対応のコンテンツ種別エラーを生成する。
func NewUnsupportedKindError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedKind,
		Message:  fmt.Sprintf("未対応のコンテンツ種別です: %s", kind),
		Category: "validation",
		Action:   "種別には movie、series、book のいずれかを指定してください。",
	}
}

// NewMissingIdentityError はコンテンツ識別子が欠落・不正な場合のエラーを生成する。
func NewMissingIdentityError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingIdentity,
		Message:  fmt.Sprintf("コンテンツの識別子が不足しています: %s", reason),
		Category: "validation",
		Action:   "種別と外部IDを指定してください。",
	}
}

// NewFavoriteNotFoundError はお気に入りが見つからない場合のエラーを生成する。
func NewFavoriteNotFoundError(kind Kind, externalID string) *APIError {
	return &APIError{
		Code:     ErrCodeFavoriteNotFound,
		Message:  fmt.Sprintf("お気に入りが見つかりません: %s %s", kind, externalID),
		Category: "favorite",
		Action:   "お気に入り一覧を再読み込みしてください。",
	}
}

// NewContentNotFoundError は外部APIにコンテンツが存在しない場合のエラーを生成する。
func NewContentNotFoundError(kind Kind, externalID string) *APIError {
	return &APIError{
		Code:     ErrCodeContentNotFound,
		Message:  fmt.Sprintf("コンテンツが見つかりません: %s %s", kind, externalID),
		Category: "catalog",
		Action:   "IDを確認してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewUpstreamUnavailableError は外部カタログAPIの呼び出し失敗エラーを生成する。
func NewUpstreamUnavailableError(source string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  fmt.Sprintf("外部サービスに接続できません: %s", source),
		Category: "catalog",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewValidationError はリクエスト内容の検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewPasswordMismatchError は確認用パスワードが一致しない場合のエラーを生成する。
func NewPasswordMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordMismatch,
		Message:  "パスワードが一致しません。",
		Category: "validation",
		Action:   "同じパスワードを2回入力してください。",
	}
}

// NewUsernameTakenError はユーザー名が既に使われている場合のエラーを生成する。
func NewUsernameTakenError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  fmt.Sprintf("このユーザー名は既に使われています: %s", username),
		Category: "auth",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
