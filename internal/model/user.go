// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
type User struct {
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProviderPassword はユーザー名・パスワード認証のプロバイダー名。
const ProviderPassword = "password"

// Identity はユーザーの認証手段を表す。
// パスワード認証ではProviderUserIDにユーザー名、SecretHashにbcryptハッシュを保持する。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	SecretHash     string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
