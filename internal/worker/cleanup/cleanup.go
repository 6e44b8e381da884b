// Package cleanup はactivity DBの整合性を保つ定期ジョブを提供する。
// 削除済みフィードを指すフォロー行を日次バッチで削除する。
// ユーザーに紐づく行はidentity DBと結合できないため、アカウント削除時のカスケードで処理される。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// orphanedFollowsQuery は存在しないフィードを指すフォロー行を削除する。
const orphanedFollowsQuery = `DELETE FROM followed_feeds f
	WHERE NOT EXISTS (SELECT 1 FROM feeds WHERE feeds.id = f.feed_id)`

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CleanupJob は孤立したフォロー行の削除ジョブ。
// 冪等であり、削除対象がなくてもエラーにならない。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:     db,
		logger: logger,
	}
}

// Run は孤立したフォロー行を削除し、削除件数を返す。
func (j *CleanupJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	result, err := j.db.ExecContext(ctx, orphanedFollowsQuery)
	if err != nil {
		j.logger.Error("orphaned follow cleanup failed",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to delete orphaned follows: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("failed to get deleted count",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}

	j.logger.Info("orphaned follow cleanup completed",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deletedCount, nil
}

// Start はinterval間隔でRunを実行する。起動直後に1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("cleanup job started", slog.Duration("interval", interval))

	// エラーはRun内でログに記録済み
	_, _ = j.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("cleanup job stopped")
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}
