package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/mediafav/internal/database"
	"github.com/hitoshi/mediafav/internal/model"
)

// PostgresFavoriteRepo はPostgreSQLを使用したお気に入りリポジトリ。
// 紐付けの一意性はfavoritesテーブルの一意制約で保証し、
// 存在確認と作成をINSERT ... ON CONFLICT DO NOTHINGの1文で行う。
type PostgresFavoriteRepo struct {
	db *sql.DB
}

// NewPostgresFavoriteRepo はPostgresFavoriteRepoを生成する。
func NewPostgresFavoriteRepo(db *sql.DB) *PostgresFavoriteRepo {
	return &PostgresFavoriteRepo{db: db}
}

// Add はtargetのローカルエンティティを検索または作成し、ユーザーとの紐付けを作成する。
func (r *PostgresFavoriteRepo) Add(ctx context.Context, userID string, target model.FavoriteTarget) (*model.Favorite, bool, error) {
	var (
		fav     *model.Favorite
		created bool
	)

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var (
			resolved model.FavoriteTarget
			column   string
			entityID string
		)

		switch t := target.(type) {
		case model.AudiovisualTarget:
			av, err := findOrCreateAudiovisual(ctx, tx, t.Entity)
			if err != nil {
				return err
			}
			resolved, column, entityID = model.AudiovisualTarget{Entity: *av}, "audiovisual_id", av.ID
		case model.BookTarget:
			book, err := findOrCreateBook(ctx, tx, t.Entity)
			if err != nil {
				return err
			}
			resolved, column, entityID = model.BookTarget{Entity: *book}, "book_id", book.ID
		default:
			return fmt.Errorf("unsupported favorite target: %T", target)
		}

		// columnは上のswitchで決まる固定値のみ
		result, err := tx.ExecContext(ctx,
			`INSERT INTO favorites (id, user_id, `+column+`, created_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id, `+column+`) DO NOTHING`,
			uuid.New().String(), userID, entityID, time.Now(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert favorite: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		created = n > 0

		fav = &model.Favorite{UserID: userID, Target: resolved}
		err = tx.QueryRowContext(ctx,
			`SELECT id, created_at FROM favorites WHERE user_id = $1 AND `+column+` = $2`,
			userID, entityID,
		).Scan(&fav.ID, &fav.AddedAt)
		if err != nil {
			return fmt.Errorf("failed to read favorite: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return fav, created, nil
}

// maxFindOrCreateAttempts は検索対象がクリーンアップと競合して消えた場合の試行回数上限。
const maxFindOrCreateAttempts = 3

// findOrCreateAudiovisual は(kind, tmdb_id)で映画・シリーズを検索し、存在しなければ作成する。
// 既存行は更新しない。取得した行はFOR KEY SHAREでロックし、トランザクション終了まで
// クリーンアップジョブに削除されないようにする。
func findOrCreateAudiovisual(ctx context.Context, tx *sql.Tx, in model.LocalAudiovisual) (*model.LocalAudiovisual, error) {
	for attempt := 1; ; attempt++ {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO audiovisuals (id, tmdb_id, kind, title, description, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (kind, tmdb_id) DO NOTHING`,
			uuid.New().String(), in.TMDbID, string(in.Kind), in.Title, in.Description, time.Now(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert audiovisual: %w", err)
		}

		av := &model.LocalAudiovisual{}
		var kind string
		err = tx.QueryRowContext(ctx,
			`SELECT id, tmdb_id, kind, title, description, created_at
			 FROM audiovisuals WHERE kind = $1 AND tmdb_id = $2
			 FOR KEY SHARE`,
			string(in.Kind), in.TMDbID,
		).Scan(&av.ID, &av.TMDbID, &kind, &av.Title, &av.Description, &av.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) && attempt < maxFindOrCreateAttempts {
			// INSERTとSELECTの間にクリーンアップで削除された
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read audiovisual: %w", err)
		}
		av.Kind = model.Kind(kind)

		return av, nil
	}
}

// findOrCreateBook はol_keyで書籍を検索し、存在しなければ作成する。
// 既存行は更新しない。ロックはfindOrCreateAudiovisualと同じ。
func findOrCreateBook(ctx context.Context, tx *sql.Tx, in model.LocalBook) (*model.LocalBook, error) {
	for attempt := 1; ; attempt++ {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO books (id, ol_key, title, author, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (ol_key) DO NOTHING`,
			uuid.New().String(), in.OLKey, in.Title, in.Author, time.Now(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert book: %w", err)
		}

		book := &model.LocalBook{}
		err = tx.QueryRowContext(ctx,
			`SELECT id, ol_key, title, author, created_at FROM books WHERE ol_key = $1
			 FOR KEY SHARE`,
			in.OLKey,
		).Scan(&book.ID, &book.OLKey, &book.Title, &book.Author, &book.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) && attempt < maxFindOrCreateAttempts {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read book: %w", err)
		}

		return book, nil
	}
}

// FindAudiovisual は種別とTMDb IDで映画・シリーズを取得する。見つからない場合はnilを返す。
func (r *PostgresFavoriteRepo) FindAudiovisual(ctx context.Context, kind model.Kind, tmdbID int64) (*model.LocalAudiovisual, error) {
	av := &model.LocalAudiovisual{}
	var k string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, tmdb_id, kind, title, description, created_at
		 FROM audiovisuals WHERE kind = $1 AND tmdb_id = $2`,
		string(kind), tmdbID,
	).Scan(&av.ID, &av.TMDbID, &k, &av.Title, &av.Description, &av.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find audiovisual: %w", err)
	}
	av.Kind = model.Kind(k)

	return av, nil
}

// FindBook はOpen Libraryのキーで書籍を取得する。見つからない場合はnilを返す。
func (r *PostgresFavoriteRepo) FindBook(ctx context.Context, olKey string) (*model.LocalBook, error) {
	book := &model.LocalBook{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, ol_key, title, author, created_at FROM books WHERE ol_key = $1`,
		olKey,
	).Scan(&book.ID, &book.OLKey, &book.Title, &book.Author, &book.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find book: %w", err)
	}

	return book, nil
}

// DeleteMembership はユーザーとtargetの紐付けを削除する。
func (r *PostgresFavoriteRepo) DeleteMembership(ctx context.Context, userID string, target model.FavoriteTarget) (bool, error) {
	var (
		column   string
		entityID string
	)
	switch t := target.(type) {
	case model.AudiovisualTarget:
		column, entityID = "audiovisual_id", t.Entity.ID
	case model.BookTarget:
		column, entityID = "book_id", t.Entity.ID
	default:
		return false, fmt.Errorf("unsupported favorite target: %T", target)
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND `+column+` = $2`,
		userID, entityID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete favorite: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return n > 0, nil
}

// DeleteByUserID はユーザーの全お気に入りを削除し、削除件数を返す。
func (r *PostgresFavoriteRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user favorites: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// ListByUserID はユーザーのお気に入りを登録日時の降順で返す。
func (r *PostgresFavoriteRepo) ListByUserID(ctx context.Context, userID string) ([]model.Favorite, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT f.id, f.user_id, f.created_at,
		        a.id, a.tmdb_id, a.kind, a.title, a.description, a.created_at,
		        b.id, b.ol_key, b.title, b.author, b.created_at
		 FROM favorites f
		 LEFT JOIN audiovisuals a ON a.id = f.audiovisual_id
		 LEFT JOIN books b ON b.id = f.book_id
		 WHERE f.user_id = $1
		 ORDER BY f.created_at DESC, f.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	defer rows.Close()

	var favorites []model.Favorite
	for rows.Next() {
		var (
			fav                                model.Favorite
			avID, avKind, avTitle, avDesc      sql.NullString
			avTMDbID                           sql.NullInt64
			avCreatedAt, bookCreatedAt         sql.NullTime
			bookID, bookKey, bookTitle, author sql.NullString
		)
		if err := rows.Scan(
			&fav.ID, &fav.UserID, &fav.AddedAt,
			&avID, &avTMDbID, &avKind, &avTitle, &avDesc, &avCreatedAt,
			&bookID, &bookKey, &bookTitle, &author, &bookCreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}

		switch {
		case avID.Valid:
			fav.Target = model.AudiovisualTarget{Entity: model.LocalAudiovisual{
				ID:          avID.String,
				TMDbID:      avTMDbID.Int64,
				Kind:        model.Kind(avKind.String),
				Title:       avTitle.String,
				Description: avDesc.String,
				CreatedAt:   avCreatedAt.Time,
			}}
		case bookID.Valid:
			fav.Target = model.BookTarget{Entity: model.LocalBook{
				ID:        bookID.String,
				OLKey:     bookKey.String,
				Title:     bookTitle.String,
				Author:    author.String,
				CreatedAt: bookCreatedAt.Time,
			}}
		default:
			return nil, fmt.Errorf("favorite %s has no target", fav.ID)
		}

		favorites = append(favorites, fav)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate favorites: %w", err)
	}

	return favorites, nil
}

// DeleteOrphans はどのユーザーからも参照されないローカルエンティティを削除する。
// 実行中のAddがFOR KEY SHAREでロックしている行はSKIP LOCKEDで対象外にする。
// Add側はこちらが先にロックした行の削除を待ってから作成し直す。
func (r *PostgresFavoriteRepo) DeleteOrphans(ctx context.Context, olderThan time.Time) (int64, error) {
	var total int64

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM audiovisuals WHERE id IN (
			   SELECT a.id FROM audiovisuals a
			   WHERE a.created_at < $1
			     AND NOT EXISTS (SELECT 1 FROM favorites f WHERE f.audiovisual_id = a.id)
			   FOR UPDATE OF a SKIP LOCKED)`,
			`DELETE FROM books WHERE id IN (
			   SELECT b.id FROM books b
			   WHERE b.created_at < $1
			     AND NOT EXISTS (SELECT 1 FROM favorites f WHERE f.book_id = b.id)
			   FOR UPDATE OF b SKIP LOCKED)`,
		} {
			result, err := tx.ExecContext(ctx, q, olderThan)
			if err != nil {
				return fmt.Errorf("failed to delete orphans: %w", err)
			}
			n, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}

// compile-time interface check
var _ FavoriteRepository = (*PostgresFavoriteRepo)(nil)
