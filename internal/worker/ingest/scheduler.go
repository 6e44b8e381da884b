// Package ingest は配信元フィードから記事を取り込むバックグラウンド処理を提供する。
// スケジューラ、フェッチャー、停止/バックオフ戦略、OPMLの読み込みを含む。
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SourceProvider は取り込み元一覧を返すインターフェース。
type SourceProvider interface {
	Load(ctx context.Context) ([]Source, error)
}

// SourceFetcher は1つの取り込み元を取り込むインターフェース。
type SourceFetcher interface {
	Fetch(ctx context.Context, src Source) (int, error)
}

// CycleResult は1回の取り込みサイクルの集計。
type CycleResult struct {
	Sources  int
	Skipped  int
	Failed   int
	Inserted int
}

// Scheduler は取り込みサイクルの定期実行と並列制御を行う。
// semaphoreパターンで同時フェッチ数を制限する。
type Scheduler struct {
	sources        SourceProvider
	fetcher        SourceFetcher
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(sources SourceProvider, fetcher SourceFetcher, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		sources:        sources,
		fetcher:        fetcher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start はinterval間隔でスケジューラを起動する。起動直後に1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("ingest scheduler started",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ingest scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は取り込み元一覧を読み込み、並列で取り込みを実行する。
// 個々の取り込み元の失敗はログに記録し、サイクル全体は継続する。
func (s *Scheduler) RunOnce(ctx context.Context) CycleResult {
	start := time.Now()

	sources, err := s.sources.Load(ctx)
	if err != nil {
		s.logger.Error("failed to load ingest sources",
			slog.String("error", err.Error()),
		)
	}
	if len(sources) == 0 {
		s.logger.Info("no ingest sources configured")
		return CycleResult{}
	}

	var skipped, failed, inserted atomic.Int64
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			n, err := s.fetcher.Fetch(ctx, src)
			inserted.Add(int64(n))
			switch {
			case errors.Is(err, ErrSourceSkipped):
				skipped.Add(1)
			case err != nil:
				failed.Add(1)
				s.logger.Error("failed to ingest source",
					slog.String("source", src.URL),
					slog.String("error", err.Error()),
				)
			}
		}()
	}
	wg.Wait()

	result := CycleResult{
		Sources:  len(sources),
		Skipped:  int(skipped.Load()),
		Failed:   int(failed.Load()),
		Inserted: int(inserted.Load()),
	}
	s.logger.Info("ingest cycle completed",
		slog.Int("source_count", result.Sources),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Int("inserted", result.Inserted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return result
}
