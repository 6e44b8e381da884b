package model

import (
	"math"
	"time"
)

// Comment は記事へのコメント。activity DBに保存され、投稿者名はidentity DBから結合する。
type Comment struct {
	ID        int            `json:"id"`
	ArticleID int64          `json:"articleId,string"`
	UserID    int            `json:"userId"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"createdAt"`
	User      *CommentAuthor `json:"user,omitempty"`
}

// CommentAuthor はコメントに表示する投稿者情報。メールアドレスは公開しない。
type CommentAuthor struct {
	ID   int    `json:"id,omitempty"`
	Name string `json:"name"`
}

// UnknownUserName は投稿者がidentity DBに存在しない場合の表示名。
const UnknownUserName = "Unknown User"

// Mark は「あとで読む」の1行。
type Mark struct {
	UserID    int
	ArticleID int64
	CreatedAt time.Time
}

// HistoryEntry は閲覧履歴の1行。(user, article)ごとに1行で、read_atを更新する。
type HistoryEntry struct {
	UserID    int
	ArticleID int64
	ReadAt    time.Time
}

// Pagination はページング情報。
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalCount int  `json:"totalCount"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

// NewPagination はtotalPages=ceil(total/limit)、hasMore=page<totalPagesでPaginationを生成する。
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(limit)))
	}
	return Pagination{
		Page:       page,
		Limit:      limit,
		TotalCount: total,
		TotalPages: totalPages,
		HasMore:    page < totalPages,
	}
}
