package model

import "time"

// Publisher は記事の配信元。content DBの参照データ。
type Publisher struct {
	ID          int64  `json:"publisher_id,string"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
}

// Label は表示名があれば表示名、なければ名前を返す。
func (p Publisher) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

// Tag は記事の分類タグ。フィードの絞り込み条件としても使う。
type Tag struct {
	ID   int64  `json:"tag_id"`
	Name string `json:"name"`
}

// CommentCount は記事に付与するコメント数。
type CommentCount struct {
	Comments int `json:"comments"`
}

// Article はcontent DBの記事。アプリケーションからは更新せず、
// コメント数と保存状態をメモリ上で付与して返す。
type Article struct {
	ID          int64      `json:"article_id,string"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ImageURL    string     `json:"image_url"`
	OriginalURL string     `json:"original_url"`
	PublishedAt time.Time  `json:"published_at"`
	Publisher   *Publisher `json:"publisher"`
	Tags        []Tag      `json:"tags"`

	Count   CommentCount `json:"_count"`
	IsSaved bool         `json:"isSaved"`
}

// HasImage は画像URLを持つかを返す。
func (a *Article) HasImage() bool {
	return a.ImageURL != ""
}

// MarkedArticle は「あとで読む」に保存された記事と保存日時。
type MarkedArticle struct {
	Article
	MarkedAt time.Time `json:"markedAt"`
}

// HistoryArticle は閲覧履歴の記事と最終閲覧日時。
type HistoryArticle struct {
	Article
	ReadAt time.Time `json:"readAt"`
}

// NewArticle はインジェスト時に保存する記事。
type NewArticle struct {
	Title       string
	Description string
	ImageURL    string
	OriginalURL string
	PublisherID int64
	PublishedAt time.Time
}
