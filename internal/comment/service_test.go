package comment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kelps/epiflipboard/internal/model"
	"github.com/kelps/epiflipboard/internal/security"
)

// --- モック定義 ---

type mockCommentRepo struct {
	listByArticleFn  func(ctx context.Context, articleID int64) ([]*model.Comment, error)
	countByArticleFn func(ctx context.Context, articleID int64) (int, error)
	created          []*model.Comment
}

func (m *mockCommentRepo) ListByArticle(ctx context.Context, articleID int64) ([]*model.Comment, error) {
	if m.listByArticleFn != nil {
		return m.listByArticleFn(ctx, articleID)
	}
	return nil, nil
}

func (m *mockCommentRepo) CountByArticle(ctx context.Context, articleID int64) (int, error) {
	if m.countByArticleFn != nil {
		return m.countByArticleFn(ctx, articleID)
	}
	return 0, nil
}

func (m *mockCommentRepo) CountByArticles(_ context.Context, _ []int64) (map[int64]int, error) {
	return map[int64]int{}, nil
}

func (m *mockCommentRepo) Create(_ context.Context, c *model.Comment) error {
	c.ID = len(m.created) + 1
	c.CreatedAt = time.Now()
	m.created = append(m.created, c)
	return nil
}

type mockUserRepo struct {
	users        map[int]*model.User
	findByIDErr  error
	findByIDsIDs []int
}

func (m *mockUserRepo) FindByID(_ context.Context, id int) (*model.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	return m.users[id], nil
}

func (m *mockUserRepo) FindByEmail(_ context.Context, _ string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) FindByIDs(_ context.Context, ids []int) ([]*model.User, error) {
	m.findByIDsIDs = ids
	var out []*model.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockUserRepo) Create(_ context.Context, _ *model.User) error { return nil }

func (m *mockUserRepo) UpdateName(_ context.Context, _ int, _ string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) DeleteByID(_ context.Context, _ int) error { return nil }

func newTestService(comments *mockCommentRepo, users *mockUserRepo) *Service {
	return NewService(comments, users, security.NewTextSanitizer())
}

// --- テスト ---

func TestListComments_MergesAuthors(t *testing.T) {
	comments := &mockCommentRepo{
		listByArticleFn: func(_ context.Context, articleID int64) ([]*model.Comment, error) {
			if articleID != 55 {
				t.Errorf("articleID = %d, want 55", articleID)
			}
			return []*model.Comment{
				{ID: 3, UserID: 1, Content: "newest"},
				{ID: 2, UserID: 2, Content: "orphan"},
				{ID: 1, UserID: 1, Content: "oldest"},
			}, nil
		},
	}
	users := &mockUserRepo{users: map[int]*model.User{
		1: {ID: 1, Name: "Ann", Email: "ann@example.com"},
	}}

	got, err := newTestService(comments, users).ListComments(context.Background(), 55)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].User.Name != "Ann" || got[2].User.Name != "Ann" {
		t.Errorf("authors = %q, %q, want Ann", got[0].User.Name, got[2].User.Name)
	}
	if got[1].User.Name != model.UnknownUserName {
		t.Errorf("orphan author = %q, want %q", got[1].User.Name, model.UnknownUserName)
	}
	if len(users.findByIDsIDs) != 2 {
		t.Errorf("FindByIDs ids = %v, want deduplicated [1 2]", users.findByIDsIDs)
	}
}

func TestListComments_Empty(t *testing.T) {
	users := &mockUserRepo{}
	got, err := newTestService(&mockCommentRepo{}, users).ListComments(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %#v, want empty non-nil slice", got)
	}
	if users.findByIDsIDs != nil {
		t.Error("identity DB should not be queried when there are no comments")
	}
}

func TestListComments_RepoError(t *testing.T) {
	comments := &mockCommentRepo{
		listByArticleFn: func(_ context.Context, _ int64) ([]*model.Comment, error) {
			return nil, errors.New("activity db down")
		},
	}
	if _, err := newTestService(comments, &mockUserRepo{}).ListComments(context.Background(), 1); err == nil {
		t.Error("expected error")
	}
}

func TestCountComments(t *testing.T) {
	comments := &mockCommentRepo{
		countByArticleFn: func(_ context.Context, _ int64) (int, error) { return 4, nil },
	}
	n, err := newTestService(comments, &mockUserRepo{}).CountComments(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 {
		t.Errorf("count = %d, want 4", n)
	}
}

func TestCreateComment_SanitizesContent(t *testing.T) {
	comments := &mockCommentRepo{}
	users := &mockUserRepo{users: map[int]*model.User{1: {ID: 1, Name: "Ann"}}}

	c, err := newTestService(comments, users).CreateComment(context.Background(),
		Author{UserID: 1}, 55, `<b>Nice</b> read<script>alert(1)</script>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Content != "Nice read" {
		t.Errorf("Content = %q, want %q", c.Content, "Nice read")
	}
	if len(comments.created) != 1 || comments.created[0].ArticleID != 55 {
		t.Errorf("created = %+v", comments.created)
	}
}

func TestCreateComment_Validation(t *testing.T) {
	tests := []struct {
		name      string
		articleID int64
		content   string
	}{
		{"missing article", 0, "hello"},
		{"empty content", 1, ""},
		{"markup only", 1, "<p>  </p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comments := &mockCommentRepo{}
			_, err := newTestService(comments, &mockUserRepo{}).CreateComment(context.Background(),
				Author{UserID: 1}, tt.articleID, tt.content)

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
				t.Fatalf("err = %v, want INVALID_REQUEST", err)
			}
			if len(comments.created) != 0 {
				t.Error("comment should not be created")
			}
		})
	}
}

func TestCreateComment_AuthorNameFallback(t *testing.T) {
	tests := []struct {
		name   string
		users  *mockUserRepo
		author Author
		want   string
	}{
		{
			name:   "identity name wins over stale token",
			users:  &mockUserRepo{users: map[int]*model.User{1: {ID: 1, Name: "New Name"}}},
			author: Author{UserID: 1, Name: "Old Name", Email: "a@example.com"},
			want:   "New Name",
		},
		{
			name:   "session name when identity has none",
			users:  &mockUserRepo{users: map[int]*model.User{1: {ID: 1}}},
			author: Author{UserID: 1, Name: "Token Name", Email: "a@example.com"},
			want:   "Token Name",
		},
		{
			name:   "email as last resort",
			users:  &mockUserRepo{},
			author: Author{UserID: 1, Email: "a@example.com"},
			want:   "a@example.com",
		},
		{
			name:   "identity lookup failure",
			users:  &mockUserRepo{findByIDErr: errors.New("identity db down")},
			author: Author{UserID: 1, Name: "Token Name"},
			want:   "Token Name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := newTestService(&mockCommentRepo{}, tt.users).CreateComment(context.Background(), tt.author, 9, "hi")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.User.Name != tt.want {
				t.Errorf("author name = %q, want %q", c.User.Name, tt.want)
			}
		})
	}
}
