// Package tmdb はThe Movie Database (TMDb) APIのクライアントを提供する。
package tmdb

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/hitoshi/mediafav/internal/model"
)

// 検索対象のメディア種別。
const (
	MediaMovie = "movie"
	MediaTV    = "tv"
	MediaMulti = "multi"
)

// Result はTMDbの検索結果1件。
// 欠けているフィールドはゼロ値になる。
type Result struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	PosterPath   string  `json:"poster_path"`
	VoteAverage  float64 `json:"vote_average"`
	MediaType    string  `json:"media_type"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
}

// DisplayTitle はtitleを優先し、空の場合はnameを返す。
func (r Result) DisplayTitle() string {
	if t := strings.TrimSpace(r.Title); t != "" {
		return t
	}
	return strings.TrimSpace(r.Name)
}

type searchResponse struct {
	Page    int      `json:"page"`
	Results []Result `json:"results"`
}

// Genre はTMDbのジャンル。
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Detail は/movie/{id}または/tv/{id}のレスポンス。
type Detail struct {
	Result
	Tagline         string  `json:"tagline"`
	Genres          []Genre `json:"genres"`
	Runtime         int     `json:"runtime"`
	NumberOfSeasons int     `json:"number_of_seasons"`
	Homepage        string  `json:"homepage"`
	Status          string  `json:"status"`
}

// Getter は外部APIからJSONを取得するインターフェース。
// upstream.Fetcherが実装する。
type Getter interface {
	GetJSON(ctx context.Context, rawURL string, target any) error
}

// Client はTMDb APIのクライアント。
// APIキーと接続先は生成時に注入する。
type Client struct {
	getter   Getter
	baseURL  string
	apiKey   string
	language string
}

// NewClient はClientを生成する。
func NewClient(getter Getter, baseURL, apiKey, language string) *Client {
	return &Client{
		getter:   getter,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		language: language,
	}
}

// Search はTMDbを検索する。mediaTypeはMediaMovie、MediaTV、MediaMultiのいずれか。
func (c *Client) Search(ctx context.Context, query, mediaType string) ([]Result, error) {
	switch mediaType {
	case MediaMovie, MediaTV, MediaMulti:
	default:
		return nil, fmt.Errorf("unsupported TMDb media type: %q", mediaType)
	}

	params := c.params()
	params.Set("query", query)
	params.Set("include_adult", "false")

	var resp searchResponse
	if err := c.getter.GetJSON(ctx, c.baseURL+"/search/"+mediaType+"?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("tmdb search %s: %w", mediaType, err)
	}
	return resp.Results, nil
}

// Detail は映画またはシリーズの詳細を取得する。
func (c *Client) Detail(ctx context.Context, kind model.Kind, id int64) (*Detail, error) {
	if !kind.IsAudiovisual() {
		return nil, fmt.Errorf("unsupported TMDb kind: %q", kind)
	}

	endpoint := c.baseURL + "/" + kind.TMDbMediaType() + "/" + strconv.FormatInt(id, 10) + "?" + c.params().Encode()

	var d Detail
	if err := c.getter.GetJSON(ctx, endpoint, &d); err != nil {
		return nil, fmt.Errorf("tmdb detail %s/%d: %w", kind, id, err)
	}
	return &d, nil
}

func (c *Client) params() url.Values {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	if c.language != "" {
		params.Set("language", c.language)
	}
	return params
}
