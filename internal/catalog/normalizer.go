// Package catalog は外部カタログAPIの検索結果を共通形式に正規化し、
// 検索・ダッシュボード・詳細取得のユースケースを提供する。
package catalog

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/hitoshi/mediafav/internal/metrics"
	"github.com/hitoshi/mediafav/internal/model"
	"github.com/hitoshi/mediafav/internal/openlibrary"
	"github.com/hitoshi/mediafav/internal/security"
	"github.com/hitoshi/mediafav/internal/tmdb"
)

// 取得元の名前。メトリクスのラベルとログに使う。
const (
	SourceTMDb        = "tmdb"
	SourceOpenLibrary = "openlibrary"
)

// Normalizer は2種類の外部APIレスポンスをmodel.CatalogItemに変換する。
// 受け入れ条件を満たさない項目はエラーにせず除外する。
type Normalizer struct {
	sanitizer security.TextSanitizerService
	imageBase string
	coverBase string
	metrics   metrics.MetricsCollector
}

// NewNormalizer はNormalizerを生成する。
// imageBaseはTMDbのposter_pathの前に付けるCDNのURL、coverBaseはOpen Libraryのカバー画像のURL。
func NewNormalizer(sanitizer security.TextSanitizerService, imageBase, coverBase string) *Normalizer {
	return &Normalizer{
		sanitizer: sanitizer,
		imageBase: strings.TrimRight(imageBase, "/"),
		coverBase: strings.TrimRight(coverBase, "/"),
	}
}

// SetMetrics はメトリクスコレクターを設定する。
func (n *Normalizer) SetMetrics(m metrics.MetricsCollector) {
	n.metrics = m
}

// NormalizeMedia はTMDbの映画またはシリーズの検索結果を正規化する。
// IDが0、またはtitleとnameが両方空の項目は除外する。
func (n *Normalizer) NormalizeMedia(raw []tmdb.Result, kind model.Kind) []model.CatalogItem {
	items := make([]model.CatalogItem, 0, len(raw))
	for _, r := range raw {
		item, ok := n.media(r, kind)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	n.dropped(SourceTMDb, len(raw)-len(items))
	return items
}

// NormalizeMulti はTMDbのmulti検索の結果を正規化する。
// 種別はmedia_typeから決め、movieとtv以外（人物など）は除外する。
func (n *Normalizer) NormalizeMulti(raw []tmdb.Result) []model.CatalogItem {
	items := make([]model.CatalogItem, 0, len(raw))
	for _, r := range raw {
		var kind model.Kind
		switch r.MediaType {
		case tmdb.MediaMovie:
			kind = model.KindMovie
		case tmdb.MediaTV:
			kind = model.KindSeries
		default:
			continue
		}
		item, ok := n.media(r, kind)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	n.dropped(SourceTMDb, len(raw)-len(items))
	return items
}

func (n *Normalizer) media(r tmdb.Result, kind model.Kind) (model.CatalogItem, bool) {
	title := n.sanitizer.Clean(r.DisplayTitle())
	if r.ID == 0 || title == "" {
		return model.CatalogItem{}, false
	}

	item := model.CatalogItem{
		Kind:        kind,
		ExternalID:  strconv.FormatInt(r.ID, 10),
		Title:       title,
		Description: n.description(r.Overview),
		Extra:       model.CatalogExtra{Rating: FormatRating(r.VoteAverage)},
	}
	if p := strings.TrimSpace(r.PosterPath); p != "" {
		item.ImageURL = n.imageBase + p
	}
	return item, true
}

// NormalizeBooks はOpen Libraryの検索結果を正規化する。
// keyまたはtitleが空の項目は除外する。
func (n *Normalizer) NormalizeBooks(raw []openlibrary.Doc) []model.CatalogItem {
	items := make([]model.CatalogItem, 0, len(raw))
	for _, d := range raw {
		key := strings.TrimSpace(d.Key)
		title := n.sanitizer.Clean(d.Title)
		if key == "" || title == "" {
			continue
		}

		author := JoinAuthors(d.AuthorName)
		item := model.CatalogItem{
			Kind:        model.KindBook,
			ExternalID:  key,
			Title:       title,
			Description: "Author: " + author,
			Author:      author,
			Extra:       model.CatalogExtra{Year: model.NotAvailable},
		}
		if d.CoverI > 0 {
			item.ImageURL = n.coverURL(d.CoverI)
		}
		if d.FirstPublishYear > 0 {
			item.Extra.Year = strconv.Itoa(d.FirstPublishYear)
		}
		items = append(items, item)
	}
	n.dropped(SourceOpenLibrary, len(raw)-len(items))
	return items
}

// DetailFromTMDb はTMDbの詳細レスポンスをContentDetailに変換する。
func (n *Normalizer) DetailFromTMDb(d *tmdb.Detail, kind model.Kind) model.ContentDetail {
	item, _ := n.media(d.Result, kind)
	// 詳細はIDで直接取得しているため、タイトル欠落でも識別子は埋める
	item.Kind = kind
	item.ExternalID = strconv.FormatInt(d.ID, 10)

	detail := model.ContentDetail{
		CatalogItem: item,
		Source:      SourceTMDb,
		Tagline:     n.sanitizer.Clean(d.Tagline),
		Runtime:     d.Runtime,
		Seasons:     d.NumberOfSeasons,
		Homepage:    d.Homepage,
		ReleaseDate: d.ReleaseDate,
	}
	if kind == model.KindSeries {
		detail.ReleaseDate = d.FirstAirDate
	}
	for _, g := range d.Genres {
		if g.Name != "" {
			detail.Genres = append(detail.Genres, g.Name)
		}
	}
	return detail
}

// DetailFromOpenLibrary はOpen Libraryの作品・版・著者レスポンスをContentDetailに変換する。
func (n *Normalizer) DetailFromOpenLibrary(w *openlibrary.Work, key string) model.ContentDetail {
	title := n.sanitizer.Clean(w.Title)
	if title == "" {
		title = n.sanitizer.Clean(w.Name)
	}
	text := string(w.Description)
	if text == "" {
		text = string(w.Bio)
	}

	detail := model.ContentDetail{
		CatalogItem: model.CatalogItem{
			Kind:        model.KindBook,
			ExternalID:  key,
			Title:       title,
			Description: n.description(text),
		},
		Source:      SourceOpenLibrary,
		ReleaseDate: w.FirstPublishDate,
		Subjects:    w.Subjects,
	}
	if detail.ReleaseDate == "" {
		detail.ReleaseDate = w.PublishDate
	}
	for _, c := range w.Covers {
		if c > 0 {
			detail.ImageURL = n.coverURL(c)
			break
		}
	}
	return detail
}

func (n *Normalizer) description(raw string) string {
	if d := n.sanitizer.Clean(raw); d != "" {
		return d
	}
	return model.NoDescription
}

func (n *Normalizer) coverURL(id int64) string {
	return n.coverBase + "/" + strconv.FormatInt(id, 10) + "-M.jpg"
}

func (n *Normalizer) dropped(source string, count int) {
	if count <= 0 {
		return
	}
	slog.Debug("検索結果の一部を除外しました",
		slog.String("source", source),
		slog.Int("dropped", count),
	)
	if n.metrics != nil {
		n.metrics.RecordItemsDropped(source, count)
	}
}

// FormatRating は評価値を小数点以下1桁の文字列にする。0の場合は"N/A"を返す。
func FormatRating(v float64) string {
	if v == 0 {
		return model.NotAvailable
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}

// JoinAuthors は著者名を", "で連結する。空の場合は"Unknown"を返す。
func JoinAuthors(names []string) string {
	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		if s := strings.TrimSpace(name); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	if len(cleaned) == 0 {
		return model.UnknownAuthor
	}
	return strings.Join(cleaned, ", ")
}
