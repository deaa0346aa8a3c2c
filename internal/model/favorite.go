package model

import (
	"strconv"
	"time"
)

// UnknownAuthor は著者情報がない書籍に使う著者名。
const UnknownAuthor = "Unknown"

// LocalAudiovisual はお気に入り登録された映画・シリーズのローカル行。
// (Kind, TMDbID) で一意。初回登録時に作成され、以後更新されない。
type LocalAudiovisual struct {
	ID          string
	TMDbID      int64
	Kind        Kind
	Title       string
	Description string
	CreatedAt   time.Time
}

// LocalBook はお気に入り登録された書籍のローカル行。
// OLKey で一意。初回登録時に作成され、以後更新されない。
type LocalBook struct {
	ID        string
	OLKey     string
	Title     string
	Author    string
	CreatedAt time.Time
}

// FavoriteTarget はお気に入りの対象を表す直和型。
// 実装はAudiovisualTargetとBookTargetのみで、両方・どちらでもない状態は表現できない。
type FavoriteTarget interface {
	Kind() Kind
	ExternalID() string
	Title() string
	Description() string

	isFavoriteTarget()
}

// AudiovisualTarget は映画・シリーズを対象とするお気に入り。
type AudiovisualTarget struct {
	Entity LocalAudiovisual
}

// Kind はコンテンツ種別を返す。
func (t AudiovisualTarget) Kind() Kind { return t.Entity.Kind }

// ExternalID はTMDb IDを文字列で返す。
func (t AudiovisualTarget) ExternalID() string { return strconv.FormatInt(t.Entity.TMDbID, 10) }

// Title はタイトルを返す。
func (t AudiovisualTarget) Title() string { return t.Entity.Title }

// Description は概要を返す。
func (t AudiovisualTarget) Description() string { return t.Entity.Description }

func (AudiovisualTarget) isFavoriteTarget() {}

// BookTarget は書籍を対象とするお気に入り。
type BookTarget struct {
	Entity LocalBook
}

// Kind は常にKindBookを返す。
func (t BookTarget) Kind() Kind { return KindBook }

// ExternalID はOpen Libraryのキーを返す。
func (t BookTarget) ExternalID() string { return t.Entity.OLKey }

// Title はタイトルを返す。
func (t BookTarget) Title() string { return t.Entity.Title }

// Description は著者を含む説明文を返す。
func (t BookTarget) Description() string { return "Author: " + t.Entity.Author }

func (BookTarget) isFavoriteTarget() {}

// Favorite はユーザーと1件のローカルエンティティの紐付け（お気に入り）を表す。
type Favorite struct {
	ID      string
	UserID  string
	Target  FavoriteTarget
	AddedAt time.Time
}

// FavoriteRecord はお気に入り一覧の1行。
type FavoriteRecord struct {
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ExternalID  string    `json:"external_id"`
	AddedAt     time.Time `json:"added_at"`
}

// Record はFavoriteを一覧表示用のレコードに射影する。
func (f Favorite) Record() FavoriteRecord {
	return FavoriteRecord{
		Kind:        f.Target.Kind(),
		Title:       f.Target.Title(),
		Description: f.Target.Description(),
		ExternalID:  f.Target.ExternalID(),
		AddedAt:     f.AddedAt,
	}
}
