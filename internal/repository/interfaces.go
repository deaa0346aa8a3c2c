// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/mediafav/internal/model"
)

// ErrDuplicate は一意制約に違反した場合に返される。
var ErrDuplicate = errors.New("duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// ユーザー名またはidentityが既に存在する場合はErrDuplicateを返す。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、favoritesはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は認証手段の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// FavoriteRepository はお気に入りとローカルエンティティの永続化インターフェース。
type FavoriteRepository interface {
	// Add はtargetのローカルエンティティを検索または作成し、ユーザーとの紐付けを作成する。
	// エンティティの作成と紐付けの作成は同一トランザクションで行う。
	// 既存エンティティの値は上書きしない（先勝ち）。
	// 紐付けが既に存在した場合はcreated=falseを返す。
	Add(ctx context.Context, userID string, target model.FavoriteTarget) (fav *model.Favorite, created bool, err error)

	// FindAudiovisual は種別とTMDb IDで映画・シリーズを取得する。見つからない場合はnilを返す。
	FindAudiovisual(ctx context.Context, kind model.Kind, tmdbID int64) (*model.LocalAudiovisual, error)

	// FindBook はOpen Libraryのキーで書籍を取得する。見つからない場合はnilを返す。
	FindBook(ctx context.Context, olKey string) (*model.LocalBook, error)

	// DeleteMembership はユーザーとtargetの紐付けを削除する。
	// 紐付けが存在しなかった場合はfalseを返す。ローカルエンティティは削除しない。
	DeleteMembership(ctx context.Context, userID string, target model.FavoriteTarget) (bool, error)

	// DeleteByUserID はユーザーの全お気に入りを削除し、削除件数を返す。
	DeleteByUserID(ctx context.Context, userID string) (int64, error)

	// ListByUserID はユーザーのお気に入りを登録日時の降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]model.Favorite, error)

	// DeleteOrphans はどのユーザーからも参照されず、olderThanより前に作成された
	// ローカルエンティティを削除し、削除件数を返す。
	DeleteOrphans(ctx context.Context, olderThan time.Time) (int64, error)
}
