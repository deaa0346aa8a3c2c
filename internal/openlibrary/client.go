// Package openlibrary はOpen Library APIのクライアントを提供する。
package openlibrary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// ErrInvalidKey はOpen Libraryのキーとして扱えない値の場合に返される。
var ErrInvalidKey = errors.New("invalid open library key")

// keyPrefixes は詳細取得を許可するキーの接頭辞。
var keyPrefixes = []string{"/works/", "/books/", "/authors/"}

// Doc はsearch.jsonの検索結果1件。
type Doc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	AuthorName       []string `json:"author_name"`
	CoverI           int64    `json:"cover_i"`
	FirstPublishYear int      `json:"first_publish_year"`
}

type searchResponse struct {
	NumFound int   `json:"numFound"`
	Docs     []Doc `json:"docs"`
}

// Text は文字列または{"type": ..., "value": ...}の形で返される項目。
type Text string

// UnmarshalJSON は両方の表現を受け付ける。
func (t *Text) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var typed struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}
	*t = Text(typed.Value)
	return nil
}

// Work は{key}.jsonのレスポンス。作品・版・著者で共通して使うフィールドのみ持つ。
type Work struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	Name             string   `json:"name"`
	Description      Text     `json:"description"`
	Bio              Text     `json:"bio"`
	Covers           []int64  `json:"covers"`
	Subjects         []string `json:"subjects"`
	FirstPublishDate string   `json:"first_publish_date"`
	PublishDate      string   `json:"publish_date"`
	Authors          []struct {
		Author struct {
			Key string `json:"key"`
		} `json:"author"`
	} `json:"authors"`
}

// Getter は外部APIからJSONを取得するインターフェース。
// upstream.Fetcherが実装する。
type Getter interface {
	GetJSON(ctx context.Context, rawURL string, target any) error
}

// Client はOpen Library APIのクライアント。
type Client struct {
	getter  Getter
	baseURL string
}

// NewClient はClientを生成する。
func NewClient(getter Getter, baseURL string) *Client {
	return &Client{
		getter:  getter,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Search はタイトルまたは著者で書籍を検索する。limitが0以下の場合は件数を指定しない。
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Doc, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("fields", "key,title,author_name,cover_i,first_publish_year")
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var resp searchResponse
	if err := c.getter.GetJSON(ctx, c.baseURL+"/search.json?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("openlibrary search: %w", err)
	}
	return resp.Docs, nil
}

// Work はキーで作品・版・著者の詳細を取得する。
func (c *Client) Work(ctx context.Context, key string) (*Work, error) {
	normalized, err := NormalizeKey(key)
	if err != nil {
		return nil, err
	}

	var w Work
	if err := c.getter.GetJSON(ctx, c.baseURL+normalized+".json", &w); err != nil {
		return nil, fmt.Errorf("openlibrary %s: %w", normalized, err)
	}
	return &w, nil
}

// NormalizeKey は空白を取り除き、許可された接頭辞を持つキーかを検証する。
func NormalizeKey(key string) (string, error) {
	cleaned := strings.Join(strings.Fields(key), "")
	for _, prefix := range keyPrefixes {
		rest, ok := strings.CutPrefix(cleaned, prefix)
		if !ok {
			continue
		}
		if rest == "" || strings.ContainsAny(rest, "/?#.%\\") {
			break
		}
		return cleaned, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
}
