package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/hitoshi/mediafav/internal/model"
	"github.com/hitoshi/mediafav/internal/openlibrary"
	"github.com/hitoshi/mediafav/internal/tmdb"
	"github.com/hitoshi/mediafav/internal/upstream"
)

// ダッシュボード・おすすめで使う固定の検索語と件数。
const (
	dashboardMediaQuery = "popular"
	dashboardBookQuery  = "bestsellers"
	dashboardLimit      = 12

	recommendMediaQuery = "trending"
	recommendBookQuery  = "best sellers"
	recommendLimit      = 5
)

// 検索範囲。空文字列はScopeMultiとして扱う。
const (
	ScopeMovie  = "movie"
	ScopeSeries = "series"
	ScopeMulti  = "multi"
	ScopeBook   = "book"
)

// MediaSearcher はTMDbクライアントのインターフェース。
type MediaSearcher interface {
	Search(ctx context.Context, query, mediaType string) ([]tmdb.Result, error)
	Detail(ctx context.Context, kind model.Kind, id int64) (*tmdb.Detail, error)
}

// BookSearcher はOpen Libraryクライアントのインターフェース。
type BookSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]openlibrary.Doc, error)
	Work(ctx context.Context, key string) (*openlibrary.Work, error)
}

// Result は検索結果。外部APIが失敗した場合もItemsは空スライスで、Errに原因を保持する。
// 呼び出し側はErrをログ・メトリクスにのみ使い、利用者には空の結果として返す。
type Result struct {
	Items []model.CatalogItem
	Err   error
}

// Dashboard はダッシュボードの3セクション。
type Dashboard struct {
	Movies Result
	Series Result
	Books  Result
}

// Service は外部カタログの検索と正規化を統括する。
type Service struct {
	media      MediaSearcher
	books      BookSearcher
	normalizer *Normalizer
	bookLimit  int
}

// NewService はServiceを生成する。bookLimitは書籍検索の取得件数。
func NewService(media MediaSearcher, books BookSearcher, normalizer *Normalizer, bookLimit int) *Service {
	return &Service{
		media:      media,
		books:      books,
		normalizer: normalizer,
		bookLimit:  bookLimit,
	}
}

// ValidScope は検索範囲として受け付ける値かを判定する。"tv"はScopeSeriesの別名。
func ValidScope(scope string) bool {
	switch strings.ToLower(scope) {
	case "", ScopeMovie, ScopeSeries, "tv", ScopeMulti, ScopeBook:
		return true
	default:
		return false
	}
}

// Search はqueryで指定範囲を検索する。
func (s *Service) Search(ctx context.Context, query, scope string) Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{Items: []model.CatalogItem{}}
	}

	switch strings.ToLower(scope) {
	case ScopeMovie:
		return s.searchMedia(ctx, query, model.KindMovie, 0)
	case ScopeSeries, "tv":
		return s.searchMedia(ctx, query, model.KindSeries, 0)
	case ScopeBook:
		return s.searchBooks(ctx, query, s.bookLimit, 0)
	default:
		return s.searchMulti(ctx, query, 0)
	}
}

// Recommendations はトップページ用に話題の映画・シリーズと定番の書籍を返す。
// TMDbは先頭5件からmovieとtvのみを残すため、5件未満になることがある。
func (s *Service) Recommendations(ctx context.Context) Result {
	var (
		wg          sync.WaitGroup
		media, book Result
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		media = s.searchMulti(ctx, recommendMediaQuery, recommendLimit)
	}()
	go func() {
		defer wg.Done()
		book = s.searchBooks(ctx, recommendBookQuery, recommendLimit, recommendLimit)
	}()
	wg.Wait()

	items := make([]model.CatalogItem, 0, len(media.Items)+len(book.Items))
	items = append(items, media.Items...)
	items = append(items, book.Items...)
	return Result{Items: items, Err: errors.Join(media.Err, book.Err)}
}

// Dashboard は人気の映画・シリーズ・書籍をそれぞれ最大12件ずつ返す。
// 3つの検索は並行して実行し、1つが失敗しても他の結果は返す。
func (s *Service) Dashboard(ctx context.Context) Dashboard {
	var (
		wg sync.WaitGroup
		d  Dashboard
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		d.Movies = s.searchMedia(ctx, dashboardMediaQuery, model.KindMovie, dashboardLimit)
	}()
	go func() {
		defer wg.Done()
		d.Series = s.searchMedia(ctx, dashboardMediaQuery, model.KindSeries, dashboardLimit)
	}()
	go func() {
		defer wg.Done()
		d.Books = s.searchBooks(ctx, dashboardBookQuery, dashboardLimit, dashboardLimit)
	}()
	wg.Wait()
	return d
}

// Detail は種別と外部IDでコンテンツの詳細を取得する。
// 外部APIの404はCONTENT_NOT_FOUND、その他の失敗はUPSTREAM_UNAVAILABLEになる。
func (s *Service) Detail(ctx context.Context, kind model.Kind, externalID string) (*model.ContentDetail, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, model.NewMissingIdentityError("external_id is required")
	}

	switch {
	case kind.IsAudiovisual():
		id, err := strconv.ParseInt(externalID, 10, 64)
		if err != nil || id <= 0 {
			return nil, model.NewMissingIdentityError(fmt.Sprintf("invalid TMDb id: %q", externalID))
		}
		d, err := s.media.Detail(ctx, kind, id)
		if err != nil {
			return nil, detailError(err, SourceTMDb, kind, externalID)
		}
		detail := s.normalizer.DetailFromTMDb(d, kind)
		return &detail, nil

	case kind == model.KindBook:
		key, err := openlibrary.NormalizeKey(externalID)
		if err != nil {
			return nil, model.NewMissingIdentityError(fmt.Sprintf("invalid Open Library key: %q", externalID))
		}
		w, err := s.books.Work(ctx, key)
		if err != nil {
			return nil, detailError(err, SourceOpenLibrary, kind, key)
		}
		detail := s.normalizer.DetailFromOpenLibrary(w, key)
		return &detail, nil

	default:
		return nil, model.NewUnsupportedKindError(string(kind))
	}
}

func detailError(err error, source string, kind model.Kind, externalID string) error {
	if upstream.IsNotFound(err) {
		return model.NewContentNotFoundError(kind, externalID)
	}
	slog.Warn("コンテンツ詳細の取得に失敗しました",
		slog.String("source", source),
		slog.String("kind", string(kind)),
		slog.String("external_id", externalID),
		slog.String("error", err.Error()),
	)
	return model.NewUpstreamUnavailableError(source)
}

func (s *Service) searchMedia(ctx context.Context, query string, kind model.Kind, limit int) Result {
	raw, err := s.media.Search(ctx, query, kind.TMDbMediaType())
	if err != nil {
		return failed(SourceTMDb, query, err)
	}
	return Result{Items: truncate(s.normalizer.NormalizeMedia(raw, kind), limit)}
}

// searchMulti は生の結果をlimit件に切ってから正規化する。
func (s *Service) searchMulti(ctx context.Context, query string, limit int) Result {
	raw, err := s.media.Search(ctx, query, tmdb.MediaMulti)
	if err != nil {
		return failed(SourceTMDb, query, err)
	}
	if limit > 0 && len(raw) > limit {
		raw = raw[:limit]
	}
	return Result{Items: s.normalizer.NormalizeMulti(raw)}
}

func (s *Service) searchBooks(ctx context.Context, query string, fetch, limit int) Result {
	raw, err := s.books.Search(ctx, query, fetch)
	if err != nil {
		return failed(SourceOpenLibrary, query, err)
	}
	return Result{Items: truncate(s.normalizer.NormalizeBooks(raw), limit)}
}

func failed(source, query string, err error) Result {
	attrs := []any{
		slog.String("source", source),
		slog.String("query", query),
		slog.String("error", err.Error()),
	}
	if upstream.IsBreakerOpen(err) {
		slog.Debug("サーキットブレーカーが開いているため検索をスキップしました", attrs...)
	} else {
		slog.Warn("外部カタログの検索に失敗しました", attrs...)
	}
	return Result{Items: []model.CatalogItem{}, Err: err}
}

func truncate(items []model.CatalogItem, limit int) []model.CatalogItem {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// compile-time interface check
var (
	_ MediaSearcher = (*tmdb.Client)(nil)
	_ BookSearcher  = (*openlibrary.Client)(nil)
)
