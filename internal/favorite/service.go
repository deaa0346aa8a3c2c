// Package favorite はお気に入りの追加・削除・一覧のドメインロジックを提供する。
// 2種類の外部IDをローカルエンティティに対応付け、ユーザーとの紐付けを1件に保つ。
package favorite

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hitoshi/mediafav/internal/metrics"
	"github.com/hitoshi/mediafav/internal/model"
	"github.com/hitoshi/mediafav/internal/repository"
)

// AddInput はお気に入り追加のリクエスト内容。
// Authorは書籍のみ、Descriptionは映画・シリーズのみで使う。
type AddInput struct {
	Kind        string
	ExternalID  string
	Title       string
	Author      string
	Description string
}

// AddResult はお気に入り追加の結果。既に登録済みの場合はCreated=false。
type AddResult struct {
	Created  bool
	Favorite *model.Favorite
}

// RemoveResult はお気に入り削除の結果。
type RemoveResult struct {
	Removed bool
}

// Service はお気に入りのサービス層。
type Service struct {
	repo    repository.FavoriteRepository
	metrics metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.FavoriteRepository) *Service {
	return &Service{repo: repo}
}

// SetMetrics はメトリクスコレクターを設定する。
func (s *Service) SetMetrics(m metrics.MetricsCollector) {
	s.metrics = m
}

// Add はお気に入りを追加する。
// フロー: 認証チェック → 種別・識別子の検証 → エンティティの検索または作成 → 紐付けの作成
// 同じ (ユーザー, 種別, 外部ID) で繰り返し呼んでもエラーにならず、2回目以降はCreated=falseを返す。
func (s *Service) Add(ctx context.Context, userID string, in AddInput) (*AddResult, error) {
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}

	target, err := buildTarget(in)
	if err != nil {
		return nil, err
	}

	fav, created, err := s.repo.Add(ctx, userID, target)
	if err != nil {
		return nil, fmt.Errorf("お気に入りの追加に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordFavoriteAdded(string(target.Kind()), created)
	}
	if created {
		slog.Info("お気に入りを追加しました",
			slog.String("user_id", userID),
			slog.String("kind", string(target.Kind())),
			slog.String("external_id", target.ExternalID()),
		)
	}

	return &AddResult{Created: created, Favorite: fav}, nil
}

// Remove はお気に入りを削除する。
// ローカルエンティティまたは紐付けが存在しない場合はFAVORITE_NOT_FOUNDを返す。
// Addと異なり、未登録の削除は成功扱いにしない。
func (s *Service) Remove(ctx context.Context, userID, kindTag, externalID string) (*RemoveResult, error) {
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}

	kind, ok := model.ParseKind(kindTag)
	if !ok {
		return nil, model.NewUnsupportedKindError(kindTag)
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, model.NewMissingIdentityError("external_id is required")
	}

	target, err := s.resolve(ctx, kind, externalID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, model.NewFavoriteNotFoundError(kind, externalID)
	}

	removed, err := s.repo.DeleteMembership(ctx, userID, target)
	if err != nil {
		return nil, fmt.Errorf("お気に入りの削除に失敗しました: %w", err)
	}
	if !removed {
		return nil, model.NewFavoriteNotFoundError(kind, externalID)
	}

	if s.metrics != nil {
		s.metrics.RecordFavoritesRemoved(1)
	}
	return &RemoveResult{Removed: true}, nil
}

// Clear はユーザーの全お気に入りを削除し、削除件数を返す。0件でもエラーにしない。
func (s *Service) Clear(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, model.NewUnauthorizedError()
	}

	n, err := s.repo.DeleteByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("お気に入りの一括削除に失敗しました: %w", err)
	}

	if s.metrics != nil && n > 0 {
		s.metrics.RecordFavoritesRemoved(int(n))
	}
	slog.Info("お気に入りを一括削除しました",
		slog.String("user_id", userID),
		slog.Int64("removed", n),
	)
	return n, nil
}

// List はユーザーのお気に入りを追加日時の新しい順で返す。
func (s *Service) List(ctx context.Context, userID string) ([]model.FavoriteRecord, error) {
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}

	favs, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("お気に入り一覧の取得に失敗しました: %w", err)
	}

	records := make([]model.FavoriteRecord, 0, len(favs))
	for _, f := range favs {
		records = append(records, f.Record())
	}
	return records, nil
}

// resolve は既存のローカルエンティティを検索する。見つからない場合はnilを返す。
func (s *Service) resolve(ctx context.Context, kind model.Kind, externalID string) (model.FavoriteTarget, error) {
	if kind == model.KindBook {
		book, err := s.repo.FindBook(ctx, externalID)
		if err != nil {
			return nil, fmt.Errorf("書籍の検索に失敗しました: %w", err)
		}
		if book == nil {
			return nil, nil
		}
		return model.BookTarget{Entity: *book}, nil
	}

	tmdbID, err := parseTMDbID(externalID)
	if err != nil {
		return nil, err
	}
	av, err := s.repo.FindAudiovisual(ctx, kind, tmdbID)
	if err != nil {
		return nil, fmt.Errorf("映画・シリーズの検索に失敗しました: %w", err)
	}
	if av == nil {
		return nil, nil
	}
	return model.AudiovisualTarget{Entity: *av}, nil
}

// buildTarget はリクエスト内容を検証し、作成候補のFavoriteTargetを組み立てる。
func buildTarget(in AddInput) (model.FavoriteTarget, error) {
	kind, ok := model.ParseKind(in.Kind)
	if !ok {
		return nil, model.NewUnsupportedKindError(in.Kind)
	}

	externalID := strings.TrimSpace(in.ExternalID)
	if externalID == "" {
		return nil, model.NewMissingIdentityError("external_id is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, model.NewValidationError("title is required")
	}

	if kind == model.KindBook {
		author := strings.TrimSpace(in.Author)
		if author == "" {
			author = model.UnknownAuthor
		}
		return model.BookTarget{Entity: model.LocalBook{
			OLKey:  externalID,
			Title:  title,
			Author: author,
		}}, nil
	}

	tmdbID, err := parseTMDbID(externalID)
	if err != nil {
		return nil, err
	}
	return model.AudiovisualTarget{Entity: model.LocalAudiovisual{
		TMDbID:      tmdbID,
		Kind:        kind,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
	}}, nil
}

func parseTMDbID(externalID string) (int64, error) {
	id, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewMissingIdentityError(fmt.Sprintf("invalid TMDb id: %q", externalID))
	}
	return id, nil
}
