package model

import "strings"

// Kind はカタログコンテンツの種別を表す。
type Kind string

const (
	// KindMovie は映画（TMDb）。
	KindMovie Kind = "movie"
	// KindSeries はTVシリーズ（TMDb）。
	KindSeries Kind = "series"
	// KindBook は書籍（Open Library）。
	KindBook Kind = "book"
)

// ParseKind はリクエストで受け取った種別タグをKindに変換する。
// TMDbの表記である "tv" は KindSeries として扱う。
// 未対応のタグの場合はfalseを返す。
func ParseKind(tag string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "movie":
		return KindMovie, true
	case "series", "tv":
		return KindSeries, true
	case "book":
		return KindBook, true
	default:
		return "", false
	}
}

// IsAudiovisual は映画またはシリーズの場合にtrueを返す。
func (k Kind) IsAudiovisual() bool {
	return k == KindMovie || k == KindSeries
}

// TMDbMediaType はTMDb APIのパスで使用するメディア種別を返す。
func (k Kind) TMDbMediaType() string {
	if k == KindSeries {
		return "tv"
	}
	return string(k)
}

const (
	// NotAvailable は値が取得できない項目の表示値。
	NotAvailable = "N/A"
	// NoDescription は概要がないコンテンツの説明文。
	NoDescription = "No description available."
)

// CatalogItem は外部APIの検索結果を正規化した共通形式。
// 検索のたびに生成され、生成後は変更しない。
type CatalogItem struct {
	Kind        Kind         `json:"kind"`
	ExternalID  string       `json:"external_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	ImageURL    string       `json:"image_url,omitempty"`
	Author      string       `json:"author,omitempty"`
	Extra       CatalogExtra `json:"extra"`
}

// CatalogExtra は種別ごとの付加情報。
// 映画・シリーズはRating、書籍はYearのみを持つ。
type CatalogExtra struct {
	Rating string `json:"rating,omitempty"`
	Year   string `json:"year,omitempty"`
}

// ContentDetail は詳細画面用のコンテンツ情報。
// 取得元によって埋まる項目が異なる。
type ContentDetail struct {
	CatalogItem
	Source      string   `json:"source"`
	Tagline     string   `json:"tagline,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Runtime     int      `json:"runtime_minutes,omitempty"`
	Seasons     int      `json:"seasons,omitempty"`
	ReleaseDate string   `json:"release_date,omitempty"`
	Homepage    string   `json:"homepage,omitempty"`
	Subjects    []string `json:"subjects,omitempty"`
}
