// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/mediafav/internal/model"
	"github.com/hitoshi/mediafav/internal/repository"
)

// FavoriteDeleter はお気に入りの一括削除インターフェース。
type FavoriteDeleter interface {
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
}

// Service はユーザー管理のサービス層。
// 退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	favDeleter  FavoriteDeleter
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	favDeleter FavoriteDeleter,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		favDeleter:  favDeleter,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: favorites → sessions → user（+ CASCADE: identities）
// audiovisuals と books は他ユーザーと共有するため残し、孤立したものはクリーンアップで削除する。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	// ユーザー存在確認
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. お気に入りを削除
	var removed int64
	if s.favDeleter != nil {
		removed, err = s.favDeleter.DeleteByUserID(ctx, userID)
		if err != nil {
			return fmt.Errorf("お気に入りの削除に失敗しました: %w", err)
		}
	}

	// 2. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	// 3. ユーザーを削除（identitiesはCASCADE削除）
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
		slog.Int64("favorites_removed", removed),
	)

	return nil
}
