package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kelps/epiflipboard/internal/model"
	"github.com/kelps/epiflipboard/internal/repository"
	"github.com/kelps/epiflipboard/internal/security"
)

// --- モック定義 ---

// mockArticleRepo はArticleRepositoryのテスト用モック。挿入済みURLを記録する。
type mockArticleRepo struct {
	mu        sync.Mutex
	inserted  []*model.NewArticle
	seen      map[string]bool
	insertErr error
}

func (m *mockArticleRepo) ListLatest(context.Context, int) ([]*model.Article, error) { return nil, nil }
func (m *mockArticleRepo) Search(context.Context, string, int) ([]*model.Article, error) {
	return nil, nil
}
func (m *mockArticleRepo) ListByFilter(context.Context, repository.ArticleFilter, int) ([]*model.Article, error) {
	return nil, nil
}
func (m *mockArticleRepo) ListByIDs(context.Context, []int64) ([]*model.Article, error) {
	return nil, nil
}
func (m *mockArticleRepo) CountByFilterSince(context.Context, repository.ArticleFilter, time.Time) (int, error) {
	return 0, nil
}

func (m *mockArticleRepo) InsertIfAbsent(_ context.Context, a *model.NewArticle) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return false, m.insertErr
	}
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if m.seen[a.OriginalURL] {
		return false, nil
	}
	m.seen[a.OriginalURL] = true
	m.inserted = append(m.inserted, a)
	return true, nil
}

// mockPublisherRepo はPublisherRepositoryのテスト用モック。
type mockPublisherRepo struct {
	mu       sync.Mutex
	upserted []string
}

func (m *mockPublisherRepo) Search(context.Context, string, int) ([]model.Publisher, error) {
	return nil, nil
}
func (m *mockPublisherRepo) FindByIDs(context.Context, []int64) ([]model.Publisher, error) {
	return nil, nil
}

func (m *mockPublisherRepo) Upsert(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted = append(m.upserted, name)
	return 7, nil
}

// mockSSRFGuard はSSRFValidatorのテスト用モック。httptestサーバーへの接続を許可する。
type mockSSRFGuard struct {
	validateErr error
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockSSRFGuard) ValidateURL(_ string) error {
	return m.validateErr
}

// mockRecorder はRecorderのテスト用モック。
type mockRecorder struct {
	mu        sync.Mutex
	successes int
	failures  []string
	parseFail int
	statuses  []int
	inserted  int
}

func (m *mockRecorder) RecordFetchSuccess(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes++
}

func (m *mockRecorder) RecordFetchFailure(_ string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, reason)
}

func (m *mockRecorder) RecordParseFailure(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parseFail++
}

func (m *mockRecorder) RecordHTTPStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, code)
}

func (m *mockRecorder) RecordFetchLatency(time.Duration) {}

func (m *mockRecorder) RecordArticlesInserted(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted += n
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type fetcherFixture struct {
	fetcher    *Fetcher
	articles   *mockArticleRepo
	publishers *mockPublisherRepo
	recorder   *mockRecorder
	backoff    *BackoffTracker
	guard      *mockSSRFGuard
}

func newFetcherFixture(t *testing.T, maxEntries int) *fetcherFixture {
	t.Helper()
	var buf bytes.Buffer
	f := &fetcherFixture{
		articles:   &mockArticleRepo{},
		publishers: &mockPublisherRepo{},
		recorder:   &mockRecorder{},
		backoff:    NewBackoffTracker(),
		guard:      &mockSSRFGuard{},
	}
	f.fetcher = NewFetcher(f.articles, f.publishers, f.guard, security.NewTextSanitizer(), f.backoff, f.recorder,
		newTestLogger(&buf), FetcherConfig{Timeout: 5 * time.Second, MaxBodySize: 1 << 20, MaxEntries: maxEntries})
	return f
}

const testRSS = `<?xml version="1.0"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
  <channel>
    <title>Daily Planet</title>
    <item>
      <title>First &amp; foremost</title>
      <link>https://example.com/1</link>
      <description>&lt;p&gt;Hello &lt;b&gt;world&lt;/b&gt;&lt;/p&gt;</description>
      <enclosure url="https://img.example.com/1.jpg" type="image/jpeg" length="10"/>
      <pubDate>Mon, 01 Jan 2024 10:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Second</title>
      <link>https://example.com/2</link>
      <media:content url="https://img.example.com/2.png" medium="image"/>
    </item>
    <item>
      <title></title>
      <link>https://example.com/untitled</link>
    </item>
    <item>
      <title>Fourth</title>
      <link>https://example.com/4</link>
    </item>
  </channel>
</rss>`

func serveFeed(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

// --- フェッチャーのテスト ---

func TestFetcher_Fetch_InsertsFirstEntries(t *testing.T) {
	server := serveFeed(t, testRSS)
	f := newFetcherFixture(t, 3)

	n, err := f.fetcher.Fetch(context.Background(), Source{URL: server.URL})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	// 先頭3件のうちタイトルのない記事は除外される
	if n != 2 {
		t.Fatalf("inserted = %d, want 2", n)
	}

	first := f.articles.inserted[0]
	if first.Title != "First & foremost" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Description != "Hello world" {
		t.Errorf("description = %q, want plain text", first.Description)
	}
	if first.ImageURL != "https://img.example.com/1.jpg" {
		t.Errorf("image = %q", first.ImageURL)
	}
	if first.PublisherID != 7 {
		t.Errorf("publisherID = %d, want 7", first.PublisherID)
	}
	if want := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC); !first.PublishedAt.Equal(want) {
		t.Errorf("publishedAt = %v, want %v", first.PublishedAt, want)
	}
	if got := f.articles.inserted[1].ImageURL; got != "https://img.example.com/2.png" {
		t.Errorf("media image = %q", got)
	}

	if len(f.publishers.upserted) != 1 || f.publishers.upserted[0] != "Daily Planet" {
		t.Errorf("publishers = %v, want feed title", f.publishers.upserted)
	}
	if f.recorder.successes != 1 || f.recorder.inserted != 2 {
		t.Errorf("metrics = %+v", f.recorder)
	}
}

func TestFetcher_Fetch_SourceNameWinsOverFeedTitle(t *testing.T) {
	server := serveFeed(t, testRSS)
	f := newFetcherFixture(t, 1)

	if _, err := f.fetcher.Fetch(context.Background(), Source{Name: "The Planet", URL: server.URL}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if f.publishers.upserted[0] != "The Planet" {
		t.Errorf("publisher = %q, want OPML title", f.publishers.upserted[0])
	}
}

func TestFetcher_Fetch_IsIdempotent(t *testing.T) {
	server := serveFeed(t, testRSS)
	f := newFetcherFixture(t, 5)

	first, _ := f.fetcher.Fetch(context.Background(), Source{URL: server.URL})
	second, err := f.fetcher.Fetch(context.Background(), Source{URL: server.URL})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if first != 3 || second != 0 {
		t.Errorf("inserted = %d then %d, want 3 then 0", first, second)
	}
}

func TestFetcher_Fetch_StatusHandling(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantStopped bool
		wantBackoff bool
	}{
		{"404 stops", http.StatusNotFound, true, false},
		{"410 stops", http.StatusGone, true, false},
		{"401 stops", http.StatusUnauthorized, true, false},
		{"403 stops", http.StatusForbidden, true, false},
		{"429 backs off", http.StatusTooManyRequests, false, true},
		{"503 backs off", http.StatusServiceUnavailable, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()
			f := newFetcherFixture(t, 5)

			if _, err := f.fetcher.Fetch(context.Background(), Source{URL: server.URL}); err == nil {
				t.Fatal("Fetch() should return an error")
			}
			if f.backoff.Due(server.URL) {
				t.Error("source should not be due right after a failure")
			}
			if tt.wantBackoff && f.backoff.ConsecutiveErrors(server.URL) != 1 {
				t.Errorf("consecutive errors = %d, want 1", f.backoff.ConsecutiveErrors(server.URL))
			}
			if tt.wantStopped {
				// 停止した取り込み元は時刻が進んでも再開しない
				f.backoff.now = func() time.Time { return time.Now().Add(365 * 24 * time.Hour) }
				if f.backoff.Due(server.URL) {
					t.Error("stopped source should stay stopped")
				}
			}
			if len(f.articles.inserted) != 0 {
				t.Error("no article should be inserted")
			}
		})
	}
}

func TestFetcher_Fetch_SkipsSourceInBackoff(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	f := newFetcherFixture(t, 5)

	f.fetcher.Fetch(context.Background(), Source{URL: server.URL})
	_, err := f.fetcher.Fetch(context.Background(), Source{URL: server.URL})

	if !errors.Is(err, ErrSourceSkipped) {
		t.Errorf("err = %v, want ErrSourceSkipped", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestFetcher_Fetch_ParseFailure(t *testing.T) {
	server := serveFeed(t, "this is not a feed")
	f := newFetcherFixture(t, 5)

	if _, err := f.fetcher.Fetch(context.Background(), Source{URL: server.URL}); err == nil {
		t.Fatal("Fetch() should return an error")
	}
	if f.recorder.parseFail != 1 {
		t.Errorf("parse failures = %d, want 1", f.recorder.parseFail)
	}
	if len(f.publishers.upserted) != 0 {
		t.Error("publisher should not be upserted for an unparsable feed")
	}
}

func TestFetcher_Fetch_SSRFRejected(t *testing.T) {
	f := newFetcherFixture(t, 5)
	f.guard.validateErr = errors.New("private address")

	if _, err := f.fetcher.Fetch(context.Background(), Source{URL: "http://10.0.0.1/feed"}); err == nil {
		t.Fatal("Fetch() should return an error")
	}
	if f.backoff.Due("http://10.0.0.1/feed") {
		t.Error("rejected source should be stopped")
	}
	if len(f.recorder.failures) != 1 || f.recorder.failures[0] != "ssrf" {
		t.Errorf("failures = %v", f.recorder.failures)
	}
}

func TestFetcher_Fetch_SuccessResetsBackoff(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, testRSS)
	}))
	defer server.Close()
	f := newFetcherFixture(t, 5)

	f.fetcher.Fetch(context.Background(), Source{URL: server.URL})
	fail.Store(false)
	f.backoff.now = func() time.Time { return time.Now().Add(time.Hour) }

	if _, err := f.fetcher.Fetch(context.Background(), Source{URL: server.URL}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if f.backoff.ConsecutiveErrors(server.URL) != 0 {
		t.Errorf("consecutive errors = %d, want 0", f.backoff.ConsecutiveErrors(server.URL))
	}
}
