package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/kelps/epiflipboard/internal/model"
	"github.com/kelps/epiflipboard/internal/repository"
)

const userAgent = "EpiFlipBoard/1.0 Feed Aggregator"

// ErrSourceSkipped はバックオフ中または停止中の取り込み元をスキップしたことを示す。
var ErrSourceSkipped = errors.New("source skipped")

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceが満たす。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// TextSanitizer はHTMLをプレーンテキストに変換するインターフェース。
type TextSanitizer interface {
	PlainText(raw string) string
}

// Recorder は取り込み結果をメトリクスに記録するインターフェース。
// metrics.Collectorが満たす。
type Recorder interface {
	RecordFetchSuccess(source string)
	RecordFetchFailure(source string, reason string)
	RecordParseFailure(source string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordArticlesInserted(count int)
}

// FetcherConfig はFetcherの設定。ゼロ値の項目はデフォルト値を使用する。
type FetcherConfig struct {
	Timeout     time.Duration
	MaxBodySize int64
	MaxEntries  int
}

// Fetcher は1つの取り込み元をフェッチし、新しい記事をcontent DBへ保存する。
// SSRF検証、gofeedによるパース、配信元のUPSERT、original_url重複を無視した記事挿入を行う。
type Fetcher struct {
	articles   repository.ArticleRepository
	publishers repository.PublisherRepository
	ssrfGuard  SSRFValidator
	sanitizer  TextSanitizer
	backoff    *BackoffTracker
	metrics    Recorder
	logger     *slog.Logger
	cfg        FetcherConfig
	now        func() time.Time
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(
	articles repository.ArticleRepository,
	publishers repository.PublisherRepository,
	ssrfGuard SSRFValidator,
	sanitizer TextSanitizer,
	backoff *BackoffTracker,
	metrics Recorder,
	logger *slog.Logger,
	cfg FetcherConfig,
) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 5 << 20
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 5
	}
	return &Fetcher{
		articles:   articles,
		publishers: publishers,
		ssrfGuard:  ssrfGuard,
		sanitizer:  sanitizer,
		backoff:    backoff,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Fetch は取り込み元をフェッチし、挿入した記事数を返す。
// 停止中またはバックオフ中の取り込み元にはアクセスせずErrSourceSkippedを返す。
func (f *Fetcher) Fetch(ctx context.Context, src Source) (int, error) {
	if !f.backoff.Due(src.URL) {
		return 0, ErrSourceSkipped
	}

	start := time.Now()

	if err := f.ssrfGuard.ValidateURL(src.URL); err != nil {
		f.backoff.Stop(src.URL, err.Error())
		f.metrics.RecordFetchFailure(src.URL, "ssrf")
		f.logger.Warn("source rejected by SSRF guard",
			slog.String("source", src.URL),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("SSRF validation failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := f.ssrfGuard.NewSafeClient(f.cfg.Timeout, f.cfg.MaxBodySize).Do(req)
	if err != nil {
		delay := f.backoff.Backoff(src.URL, err.Error())
		f.metrics.RecordFetchFailure(src.URL, "network")
		f.logger.Warn("feed request failed",
			slog.String("source", src.URL),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	f.metrics.RecordHTTPStatus(resp.StatusCode)

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case FetchResultOK:
	case FetchResultStop:
		reason := fmt.Sprintf("HTTP status %d", resp.StatusCode)
		f.backoff.Stop(src.URL, reason)
		f.metrics.RecordFetchFailure(src.URL, "stopped")
		f.logger.Warn("feed fetching stopped until restart",
			slog.String("source", src.URL),
			slog.Int("http_status", resp.StatusCode),
		)
		return 0, fmt.Errorf("feed fetching stopped: %s", reason)
	default:
		reason := fmt.Sprintf("HTTP status %d", resp.StatusCode)
		delay := f.backoff.Backoff(src.URL, reason)
		f.metrics.RecordFetchFailure(src.URL, "backoff")
		f.logger.Warn("feed fetching backed off",
			slog.String("source", src.URL),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", f.backoff.ConsecutiveErrors(src.URL)),
			slog.Duration("retry_in", delay),
		)
		return 0, fmt.Errorf("feed fetching backed off: %s", reason)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodySize))
	if err != nil {
		f.backoff.Backoff(src.URL, err.Error())
		f.metrics.RecordFetchFailure(src.URL, "read")
		return 0, fmt.Errorf("failed to read feed body: %w", err)
	}
	f.metrics.RecordFetchLatency(time.Since(start))

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		f.backoff.Backoff(src.URL, err.Error())
		f.metrics.RecordParseFailure(src.URL)
		f.logger.Warn("failed to parse feed",
			slog.String("source", src.URL),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to parse feed: %w", err)
	}

	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = strings.TrimSpace(parsed.Title)
	}
	if name == "" {
		name = src.URL
	}

	publisherID, err := f.publishers.Upsert(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert publisher %q: %w", name, err)
	}

	inserted := 0
	for _, a := range f.buildArticles(parsed.Items, publisherID) {
		ok, err := f.articles.InsertIfAbsent(ctx, a)
		if err != nil {
			return inserted, fmt.Errorf("failed to insert article %q: %w", a.OriginalURL, err)
		}
		if ok {
			inserted++
		}
	}

	f.backoff.Success(src.URL)
	f.metrics.RecordFetchSuccess(src.URL)
	f.metrics.RecordArticlesInserted(inserted)
	f.logger.Info("feed ingested",
		slog.String("source", src.URL),
		slog.String("publisher", name),
		slog.Int("items_total", len(parsed.Items)),
		slog.Int("items_inserted", inserted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return inserted, nil
}

// buildArticles はフィードの先頭MaxEntries件のうち、タイトルとリンクを持つ記事を変換する。
func (f *Fetcher) buildArticles(items []*gofeed.Item, publisherID int64) []*model.NewArticle {
	if len(items) > f.cfg.MaxEntries {
		items = items[:f.cfg.MaxEntries]
	}

	articles := make([]*model.NewArticle, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		title := strings.TrimSpace(f.sanitizer.PlainText(item.Title))
		link := strings.TrimSpace(item.Link)
		if link == "" && isHTTPURL(item.GUID) {
			link = item.GUID
		}
		if title == "" || link == "" {
			continue
		}

		desc := item.Description
		if desc == "" {
			desc = item.Content
		}

		articles = append(articles, &model.NewArticle{
			Title:       title,
			Description: f.sanitizer.PlainText(desc),
			ImageURL:    extractImage(item),
			OriginalURL: link,
			PublisherID: publisherID,
			PublishedAt: f.publishedAt(item),
		})
	}
	return articles
}

// publishedAt は公開日時、更新日時、取り込み時刻の順に記事の日時を決定する。
func (f *Fetcher) publishedAt(item *gofeed.Item) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC()
	default:
		return f.now().UTC()
	}
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
