package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kelps/epiflipboard/internal/model"
)

// --- モック定義 ---

// mockArticleService はArticleServiceInterfaceのモック実装。
type mockArticleService struct {
	getArticlesFn      func(ctx context.Context, userID int) ([]*model.Article, error)
	searchArticlesFn   func(ctx context.Context, query string, userID int) []*model.Article
	getByTagsFn        func(ctx context.Context, tagIDs, publisherIDs []int64, userID int) ([]*model.Article, error)
	getByIDsFn         func(ctx context.Context, ids []int64, userID int) ([]*model.Article, error)
	searchTagsFn       func(ctx context.Context, query string) ([]model.Tag, error)
	tagsByIDsFn        func(ctx context.Context, ids []int64) ([]model.Tag, error)
	searchPublishersFn func(ctx context.Context, query string) ([]model.Publisher, error)
	publishersByIDsFn  func(ctx context.Context, ids []int64) ([]model.Publisher, error)
}

func (m *mockArticleService) GetArticles(ctx context.Context, userID int) ([]*model.Article, error) {
	if m.getArticlesFn != nil {
		return m.getArticlesFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockArticleService) SearchArticles(ctx context.Context, query string, userID int) []*model.Article {
	if m.searchArticlesFn != nil {
		return m.searchArticlesFn(ctx, query, userID)
	}
	return []*model.Article{}
}

func (m *mockArticleService) GetArticlesByTags(ctx context.Context, tagIDs, publisherIDs []int64, userID int) ([]*model.Article, error) {
	if m.getByTagsFn != nil {
		return m.getByTagsFn(ctx, tagIDs, publisherIDs, userID)
	}
	return nil, nil
}

func (m *mockArticleService) GetArticlesByIDs(ctx context.Context, ids []int64, userID int) ([]*model.Article, error) {
	if m.getByIDsFn != nil {
		return m.getByIDsFn(ctx, ids, userID)
	}
	return nil, nil
}

func (m *mockArticleService) SearchTags(ctx context.Context, query string) ([]model.Tag, error) {
	if m.searchTagsFn != nil {
		return m.searchTagsFn(ctx, query)
	}
	return nil, nil
}

func (m *mockArticleService) TagsByIDs(ctx context.Context, ids []int64) ([]model.Tag, error) {
	if m.tagsByIDsFn != nil {
		return m.tagsByIDsFn(ctx, ids)
	}
	return nil, nil
}

func (m *mockArticleService) SearchPublishers(ctx context.Context, query string) ([]model.Publisher, error) {
	if m.searchPublishersFn != nil {
		return m.searchPublishersFn(ctx, query)
	}
	return nil, nil
}

func (m *mockArticleService) PublishersByIDs(ctx context.Context, ids []int64) ([]model.Publisher, error) {
	if m.publishersByIDsFn != nil {
		return m.publishersByIDsFn(ctx, ids)
	}
	return nil, nil
}

// mockActivityService はActivityServiceInterfaceのモック実装。
type mockActivityService struct {
	updateLastVisitFn  func(ctx context.Context, userID, feedID int)
	getFollowedFeedsFn func(ctx context.Context, userID int) ([]model.FollowedFeedSummary, error)
	topFollowedFeedsFn func(ctx context.Context, userID, n int) ([]model.FollowedFeedSummary, error)
}

func (m *mockActivityService) UpdateFeedLastVisit(ctx context.Context, userID, feedID int) {
	if m.updateLastVisitFn != nil {
		m.updateLastVisitFn(ctx, userID, feedID)
	}
}

func (m *mockActivityService) GetFollowedFeedsWithMetadata(ctx context.Context, userID int) ([]model.FollowedFeedSummary, error) {
	if m.getFollowedFeedsFn != nil {
		return m.getFollowedFeedsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockActivityService) TopFollowedFeeds(ctx context.Context, userID, n int) ([]model.FollowedFeedSummary, error) {
	if m.topFollowedFeedsFn != nil {
		return m.topFollowedFeedsFn(ctx, userID, n)
	}
	return nil, nil
}

// mockImageChecker は指定したURLのみを高解像度として扱う。
type mockImageChecker struct {
	highRes map[string]bool
}

func (m *mockImageChecker) HighResolution(ctx context.Context, imageURL string) bool {
	return m.highRes[imageURL]
}

// --- テストヘルパー ---

// rankedArticles は1からnまでのIDを持つ画像付き記事を順位順に返す。
func rankedArticles(n int) []*model.Article {
	articles := make([]*model.Article, n)
	for i := range n {
		id := int64(i + 1)
		articles[i] = &model.Article{
			ID:       id,
			Title:    fmt.Sprintf("article %d", id),
			ImageURL: fmt.Sprintf("https://img.example/%d.jpg", id),
		}
	}
	return articles
}

func articleIDs(articles []*model.Article) []int64 {
	ids := make([]int64, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	return ids
}

// --- GET /api/articles ---

func TestArticleHandler_ListArticles_PassesUserID(t *testing.T) {
	var gotUserID int
	articles := &mockArticleService{
		getArticlesFn: func(ctx context.Context, userID int) ([]*model.Article, error) {
			gotUserID = userID
			return []*model.Article{{ID: 1, Title: "a", IsSaved: true, Count: model.CommentCount{Comments: 2}}}, nil
		},
	}
	h := NewArticleHandler(articles, &mockActivityService{}, &mockImageChecker{})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/articles", nil), 12)
	w := httptest.NewRecorder()

	h.ListArticles(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotUserID != 12 {
		t.Errorf("userID = %d, want 12", gotUserID)
	}

	var raw []map[string]any
	json.NewDecoder(w.Body).Decode(&raw)
	if len(raw) != 1 {
		t.Fatalf("len = %d, want 1", len(raw))
	}
	// 記事IDは文字列でシリアライズする
	if raw[0]["article_id"] != "1" {
		t.Errorf("article_id = %v, want \"1\"", raw[0]["article_id"])
	}
	if raw[0]["isSaved"] != true {
		t.Errorf("isSaved = %v, want true", raw[0]["isSaved"])
	}
	count, _ := raw[0]["_count"].(map[string]any)
	if count["comments"] != float64(2) {
		t.Errorf("_count = %v, want comments 2", raw[0]["_count"])
	}
}

func TestArticleHandler_ListArticles_EmptyIsArray(t *testing.T) {
	h := NewArticleHandler(&mockArticleService{}, &mockActivityService{}, &mockImageChecker{})

	w := httptest.NewRecorder()
	h.ListArticles(w, httptest.NewRequest(http.MethodGet, "/api/articles", nil))

	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want []", body)
	}
}

// --- GET /api/articles/by-ids ---

func TestArticleHandler_ListArticlesByIDs(t *testing.T) {
	var gotIDs []int64
	articles := &mockArticleService{
		getByIDsFn: func(ctx context.Context, ids []int64, userID int) ([]*model.Article, error) {
			gotIDs = ids
			return []*model.Article{{ID: 3}, {ID: 1}}, nil
		},
	}
	h := NewArticleHandler(articles, &mockActivityService{}, &mockImageChecker{})

	t.Run("valid ids", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ListArticlesByIDs(w, httptest.NewRequest(http.MethodGet, "/api/articles/by-ids?ids=1,%203,,", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if len(gotIDs) != 2 || gotIDs[0] != 1 || gotIDs[1] != 3 {
			t.Errorf("ids = %v, want [1 3]", gotIDs)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ListArticlesByIDs(w, httptest.NewRequest(http.MethodGet, "/api/articles/by-ids?ids=1,x", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("empty", func(t *testing.T) {
		gotIDs = nil
		w := httptest.NewRecorder()
		h.ListArticlesByIDs(w, httptest.NewRequest(http.MethodGet, "/api/articles/by-ids", nil))
		if w.Code != http.StatusOK || gotIDs != nil {
			t.Errorf("status = %d, service called with %v", w.Code, gotIDs)
		}
	})
}

// --- GET /api/home ---

func TestArticleHandler_Home_AnonymousLayout(t *testing.T) {
	articles := &mockArticleService{
		getArticlesFn: func(ctx context.Context, userID int) ([]*model.Article, error) {
			return rankedArticles(20), nil
		},
	}
	activity := &mockActivityService{
		topFollowedFeedsFn: func(ctx context.Context, userID, n int) ([]model.FollowedFeedSummary, error) {
			t.Error("TopFollowedFeeds should not be called for anonymous users")
			return nil, nil
		},
	}
	// 3番目の記事のみ高解像度
	checker := &mockImageChecker{highRes: map[string]bool{"https://img.example/3.jpg": true}}
	h := NewArticleHandler(articles, activity, checker)

	w := httptest.NewRecorder()
	h.Home(w, httptest.NewRequest(http.MethodGet, "/api/home", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body struct {
		Lead          *model.Article              `json:"lead"`
		TopStories    []*model.Article            `json:"topStories"`
		Sidebar       []*model.Article            `json:"sidebar"`
		MoreNews      []*model.Article            `json:"moreNews"`
		FollowedFeeds []model.FollowedFeedSummary `json:"followedFeeds"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Lead == nil || body.Lead.ID != 3 {
		t.Fatalf("lead = %+v, want article 3", body.Lead)
	}
	if got := articleIDs(body.TopStories); fmt.Sprint(got) != "[1 2]" {
		t.Errorf("topStories = %v, want [1 2]", got)
	}
	// others[4:16]: リードを除いた5番目以降の12件
	if len(body.Sidebar) != 12 || body.Sidebar[0].ID != 6 {
		t.Errorf("sidebar = %v, want 12 items from 6", articleIDs(body.Sidebar))
	}
	if got := articleIDs(body.MoreNews); fmt.Sprint(got) != "[4 5 18 19]" {
		t.Errorf("moreNews = %v, want [4 5 18 19]", got)
	}
	if body.FollowedFeeds == nil || len(body.FollowedFeeds) != 0 {
		t.Errorf("followedFeeds = %v, want []", body.FollowedFeeds)
	}
}

func TestArticleHandler_Home_FollowedFeedsShrinkSidebar(t *testing.T) {
	articles := &mockArticleService{
		getArticlesFn: func(ctx context.Context, userID int) ([]*model.Article, error) {
			return rankedArticles(30), nil
		},
	}
	var gotN int
	activity := &mockActivityService{
		topFollowedFeedsFn: func(ctx context.Context, userID, n int) ([]model.FollowedFeedSummary, error) {
			gotN = n
			return []model.FollowedFeedSummary{{ID: 1, NewArticlesCount: 5}, {ID: 2, NewArticlesCount: 1}}, nil
		},
	}
	h := NewArticleHandler(articles, activity, &mockImageChecker{})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/home", nil), 3)
	w := httptest.NewRecorder()
	h.Home(w, req)

	var body homeResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if gotN != homeFollowedFeeds {
		t.Errorf("n = %d, want %d", gotN, homeFollowedFeeds)
	}
	if len(body.FollowedFeeds) != 2 {
		t.Errorf("followedFeeds = %d, want 2", len(body.FollowedFeeds))
	}
	if len(body.Sidebar) != 10 {
		t.Errorf("sidebar = %d, want 10", len(body.Sidebar))
	}
}

func TestArticleHandler_Home_FollowedFeedsErrorIsNotFatal(t *testing.T) {
	articles := &mockArticleService{
		getArticlesFn: func(ctx context.Context, userID int) ([]*model.Article, error) {
			return rankedArticles(3), nil
		},
	}
	activity := &mockActivityService{
		topFollowedFeedsFn: func(ctx context.Context, userID, n int) ([]model.FollowedFeedSummary, error) {
			return nil, errors.New("activity db down")
		},
	}
	h := NewArticleHandler(articles, activity, &mockImageChecker{})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/home", nil), 3)
	w := httptest.NewRecorder()
	h.Home(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestArticleHandler_Home_ArticleError(t *testing.T) {
	articles := &mockArticleService{
		getArticlesFn: func(ctx context.Context, userID int) ([]*model.Article, error) {
			return nil, errors.New("content db down")
		},
	}
	h := NewArticleHandler(articles, &mockActivityService{}, &mockImageChecker{})

	w := httptest.NewRecorder()
	h.Home(w, httptest.NewRequest(http.MethodGet, "/api/home", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// --- GET /api/search ---

func TestArticleHandler_Search(t *testing.T) {
	var gotQuery string
	articles := &mockArticleService{
		searchArticlesFn: func(ctx context.Context, query string, userID int) []*model.Article {
			gotQuery = query
			return rankedArticles(30)
		},
	}
	h := NewArticleHandler(articles, &mockActivityService{}, &mockImageChecker{})

	w := httptest.NewRecorder()
	h.Search(w, httptest.NewRequest(http.MethodGet, "/api/search?q=%20climate%20", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotQuery != "climate" {
		t.Errorf("query = %q, want %q", gotQuery, "climate")
	}
	var body searchResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Query != "climate" {
		t.Errorf("query = %q", body.Query)
	}
	if body.Lead == nil || body.Lead.ID != 1 {
		t.Errorf("lead = %+v, want article 1", body.Lead)
	}
	if len(body.TopStories) != 4 {
		t.Errorf("topStories = %d, want 4", len(body.TopStories))
	}
	// others[4:21]
	if len(body.Remaining) != 17 || body.Remaining[0].ID != 6 {
		t.Errorf("remaining = %v", articleIDs(body.Remaining))
	}
}

func TestArticleHandler_Search_BlankQuery(t *testing.T) {
	articles := &mockArticleService{
		searchArticlesFn: func(ctx context.Context, query string, userID int) []*model.Article {
			t.Error("SearchArticles should not be called for blank query")
			return nil
		},
	}
	h := NewArticleHandler(articles, &mockActivityService{}, &mockImageChecker{})

	for _, q := range []string{"", "%20%20"} {
		w := httptest.NewRecorder()
		h.Search(w, httptest.NewRequest(http.MethodGet, "/api/search?q="+q, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("q=%q: status = %d, want %d", q, w.Code, http.StatusBadRequest)
		}
	}
}

// --- GET /api/tags/search, /api/publishers/search ---

func TestArticleHandler_SearchTags(t *testing.T) {
	articles := &mockArticleService{
		searchTagsFn: func(ctx context.Context, query string) ([]model.Tag, error) {
			if query != "po" {
				t.Errorf("query = %q, want %q", query, "po")
			}
			return []model.Tag{{ID: 1, Name: "politics"}}, nil
		},
		tagsByIDsFn: func(ctx context.Context, ids []int64) ([]model.Tag, error) {
			if len(ids) != 2 {
				t.Errorf("ids = %v", ids)
			}
			return []model.Tag{{ID: 1, Name: "politics"}, {ID: 2, Name: "sports"}}, nil
		},
	}
	h := NewArticleHandler(articles, &mockActivityService{}, &mockImageChecker{})

	tests := []struct {
		name       string
		url        string
		wantStatus int
		wantLen    int
	}{
		{"by query", "/api/tags/search?q=po", http.StatusOK, 1},
		{"by ids", "/api/tags/search?ids=1,2", http.StatusOK, 2},
		{"invalid ids", "/api/tags/search?ids=a", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.SearchTags(w, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var tags []model.Tag
			json.NewDecoder(w.Body).Decode(&tags)
			if len(tags) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(tags), tt.wantLen)
			}
		})
	}
}

func TestArticleHandler_SearchPublishers(t *testing.T) {
	articles := &mockArticleService{
		searchPublishersFn: func(ctx context.Context, query string) ([]model.Publisher, error) {
			return []model.Publisher{{ID: 900000000001, Name: "Daily"}}, nil
		},
	}
	h := NewArticleHandler(articles, &mockActivityService{}, &mockImageChecker{})

	w := httptest.NewRecorder()
	h.SearchPublishers(w, httptest.NewRequest(http.MethodGet, "/api/publishers/search?q=da", nil))

	var raw []map[string]any
	json.NewDecoder(w.Body).Decode(&raw)
	if len(raw) != 1 || raw[0]["publisher_id"] != "900000000001" {
		t.Errorf("body = %v, want publisher_id as string", raw)
	}
}

func TestParseIDList(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "[]", false},
		{"1", "[1]", false},
		{"1, 2 ,3", "[1 2 3]", false},
		{",,4,", "[4]", false},
		{"1,two", "", true},
	}
	for _, tt := range tests {
		got, err := parseIDList(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseIDList(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && fmt.Sprint(got) != tt.want {
			t.Errorf("parseIDList(%q) = %v, want %s", tt.in, got, tt.want)
		}
	}
}
