// Package repository はデータ永続化のインターフェースを定義する。
// identity/content/activityの3つのDBはそれぞれ別の*sql.DBで接続し、DBをまたぐ結合は行わない。
package repository

import (
	"context"
	"time"

	"github.com/kelps/epiflipboard/internal/model"
)

// UserRepository はidentity DBのユーザー永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByIDs は複数IDのユーザーをまとめて取得する。順序は保証しない。
	FindByIDs(ctx context.Context, ids []int) ([]*model.User, error)

	// Create はユーザーを作成し、採番されたIDと作成日時をuserに設定する。
	// メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateName は表示名を更新する。見つからない場合はnilを返す。
	UpdateName(ctx context.Context, id int, name string) (*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。
	DeleteByID(ctx context.Context, id int) error
}

// ArticleFilter はタグ・配信元による記事の絞り込み条件。
// 空のスライスはその軸で絞り込まないことを意味する。
type ArticleFilter struct {
	TagIDs       []int64
	PublisherIDs []int64
}

// ArticleRepository はcontent DBの記事参照インターフェース。
// 取得した記事には配信元とタグが付与される。
type ArticleRepository interface {
	// ListLatest は公開日時の降順で最新limit件の記事を返す。
	ListLatest(ctx context.Context, limit int) ([]*model.Article, error)

	// Search はタイトル、説明、タグ名のいずれかに部分一致（大文字小文字無視）する記事を返す。
	Search(ctx context.Context, query string, limit int) ([]*model.Article, error)

	// ListByFilter はタグと配信元の両条件を満たす記事を公開日時の降順で返す。
	ListByFilter(ctx context.Context, filter ArticleFilter, limit int) ([]*model.Article, error)

	// ListByIDs は指定IDの記事をまとめて取得する。順序は保証しない。
	ListByIDs(ctx context.Context, ids []int64) ([]*model.Article, error)

	// CountByFilterSince はfilterを満たしpublished_at > sinceの記事数を返す。
	CountByFilterSince(ctx context.Context, filter ArticleFilter, since time.Time) (int, error)

	// InsertIfAbsent はoriginal_urlが未登録の場合のみ記事を挿入する。挿入した場合trueを返す。
	InsertIfAbsent(ctx context.Context, article *model.NewArticle) (bool, error)
}

// TagRepository はcontent DBのタグ参照インターフェース。
type TagRepository interface {
	// Search は名前に部分一致するタグを最大limit件返す。
	Search(ctx context.Context, query string, limit int) ([]model.Tag, error)
	// FindByIDs は指定IDのタグを返す。
	FindByIDs(ctx context.Context, ids []int64) ([]model.Tag, error)
}

// PublisherRepository はcontent DBの配信元参照インターフェース。
type PublisherRepository interface {
	// Search は名前または表示名に部分一致する配信元を最大limit件返す。
	Search(ctx context.Context, query string, limit int) ([]model.Publisher, error)
	// FindByIDs は指定IDの配信元を返す。
	FindByIDs(ctx context.Context, ids []int64) ([]model.Publisher, error)
	// Upsert は名前で配信元を検索し、なければ作成してIDを返す。
	Upsert(ctx context.Context, name string) (int64, error)
}

// FeedRepository はactivity DBのフィード永続化インターフェース。
type FeedRepository interface {
	// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int) (*model.Feed, error)

	// FindByIDs は指定IDのフィードをまとめて取得する。存在しないIDは結果に含まれない。
	FindByIDs(ctx context.Context, ids []int) ([]*model.Feed, error)

	// Create はフィードを作成する。
	Create(ctx context.Context, userID int, input model.FeedInput) (*model.Feed, error)

	// Update はフィードの名前、説明、タグ、配信元を更新する。見つからない場合はnilを返す。
	Update(ctx context.Context, id int, input model.FeedInput) (*model.Feed, error)

	// Delete はフィードとそのフォローを同一トランザクションで削除する。
	Delete(ctx context.Context, id int) error

	// Search は名前または説明に部分一致するフィードを作成日時の降順で返す。
	// queryが空の場合は最新limit件を返す。
	Search(ctx context.Context, query string, limit int) ([]*model.Feed, error)
}

// FollowRepository はactivity DBのフィードフォロー永続化インターフェース。
type FollowRepository interface {
	// Find はユーザーとフィードのフォローを取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, userID, feedID int) (*model.FollowedFeed, error)

	// Create はフォローを作成する。既にフォロー済みの場合は何もしない。
	Create(ctx context.Context, userID, feedID int) error

	// Delete はフォローを削除する。
	Delete(ctx context.Context, userID, feedID int) error

	// ListByUserID はユーザーのフォロー一覧を返す。
	ListByUserID(ctx context.Context, userID int) ([]*model.FollowedFeed, error)

	// TouchLastVisit はlast_visitを現在時刻に更新する。
	TouchLastVisit(ctx context.Context, userID, feedID int) error
}

// CommentRepository はactivity DBのコメント永続化インターフェース。
type CommentRepository interface {
	// ListByArticle は記事のコメントを作成日時の降順で返す。
	ListByArticle(ctx context.Context, articleID int64) ([]*model.Comment, error)

	// CountByArticle は記事のコメント数を返す。
	CountByArticle(ctx context.Context, articleID int64) (int, error)

	// CountByArticles は記事IDごとのコメント数を返す。コメントのない記事はmapに含まれない。
	CountByArticles(ctx context.Context, articleIDs []int64) (map[int64]int, error)

	// Create はコメントを作成し、採番されたIDと作成日時をcommentに設定する。
	Create(ctx context.Context, comment *model.Comment) error
}

// MarkRepository はactivity DBの「あとで読む」永続化インターフェース。
type MarkRepository interface {
	// Create は保存を作成する。既に保存済みの場合は何もしない。
	Create(ctx context.Context, userID int, articleID int64) error

	// Delete は保存を削除する。
	Delete(ctx context.Context, userID int, articleID int64) error

	// ListByUser は保存日時の降順でページングした保存一覧を返す。
	ListByUser(ctx context.Context, userID, limit, offset int) ([]model.Mark, error)

	// CountByUser はユーザーの保存数を返す。
	CountByUser(ctx context.Context, userID int) (int, error)

	// MarkedArticleIDs はarticleIDsのうちユーザーが保存済みのIDの集合を返す。
	MarkedArticleIDs(ctx context.Context, userID int, articleIDs []int64) (map[int64]bool, error)
}

// HistoryRepository はactivity DBの閲覧履歴永続化インターフェース。
type HistoryRepository interface {
	// Upsert は(user, article)の履歴がなければ作成し、あればread_atを現在時刻に更新する。
	Upsert(ctx context.Context, userID int, articleID int64) error

	// ListByUser はread_atの降順でページングした履歴を返す。
	ListByUser(ctx context.Context, userID, limit, offset int) ([]model.HistoryEntry, error)

	// CountByUser はユーザーの履歴件数を返す。
	CountByUser(ctx context.Context, userID int) (int, error)
}

// UserActivityRepository はユーザーに紐づくactivity DBのデータを一括削除するインターフェース。
type UserActivityRepository interface {
	// DeleteAllByUserID は所有フィード、そのフォロワー、自身のフォロー、コメント、
	// 閲覧履歴、保存を同一トランザクションで削除する。
	DeleteAllByUserID(ctx context.Context, userID int) error
}
