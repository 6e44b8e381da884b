package repository

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/lib/pq"
)

// 各Postgresリポジトリがインターフェースを満たすことを検証
func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
	var _ ArticleRepository = (*PostgresArticleRepo)(nil)
	var _ TagRepository = (*PostgresTagRepo)(nil)
	var _ PublisherRepository = (*PostgresPublisherRepo)(nil)
	var _ FeedRepository = (*PostgresFeedRepo)(nil)
	var _ FollowRepository = (*PostgresFollowRepo)(nil)
	var _ CommentRepository = (*PostgresCommentRepo)(nil)
	var _ MarkRepository = (*PostgresMarkRepo)(nil)
	var _ HistoryRepository = (*PostgresHistoryRepo)(nil)
	var _ UserActivityRepository = (*PostgresUserActivityRepo)(nil)
}

// コンストラクタが非nilを返すことを検証
func TestNewPostgresRepos_Initialize(t *testing.T) {
	repos := map[string]any{
		"user":          NewPostgresUserRepo(nil),
		"article":       NewPostgresArticleRepo(nil),
		"tag":           NewPostgresTagRepo(nil),
		"publisher":     NewPostgresPublisherRepo(nil),
		"feed":          NewPostgresFeedRepo(nil),
		"follow":        NewPostgresFollowRepo(nil),
		"comment":       NewPostgresCommentRepo(nil),
		"mark":          NewPostgresMarkRepo(nil),
		"history":       NewPostgresHistoryRepo(nil),
		"user activity": NewPostgresUserActivityRepo(nil),
	}
	for name, repo := range repos {
		if repo == nil {
			t.Errorf("%s: expected non-nil repo", name)
		}
	}
}

func TestFilterClause(t *testing.T) {
	tests := []struct {
		name      string
		filter    ArticleFilter
		wantWhere []string
		wantArgs  int
	}{
		{
			name:     "empty filter has no where clause",
			filter:   ArticleFilter{},
			wantArgs: 0,
		},
		{
			name:      "tags only",
			filter:    ArticleFilter{TagIDs: []int64{1, 2}},
			wantWhere: []string{"at.tag_id = ANY($1)"},
			wantArgs:  1,
		},
		{
			name:      "publishers only",
			filter:    ArticleFilter{PublisherIDs: []int64{3}},
			wantWhere: []string{"a.publisher_id = ANY($1)"},
			wantArgs:  1,
		},
		{
			name:      "tags and publishers are intersected",
			filter:    ArticleFilter{TagIDs: []int64{1}, PublisherIDs: []int64{3}},
			wantWhere: []string{"at.tag_id = ANY($1)", " AND ", "a.publisher_id = ANY($2)"},
			wantArgs:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := filterClause(tt.filter)
			if len(args) != tt.wantArgs {
				t.Errorf("len(args) = %d, want %d", len(args), tt.wantArgs)
			}
			if len(tt.wantWhere) == 0 && where != "" {
				t.Errorf("where = %q, want empty", where)
			}
			for _, frag := range tt.wantWhere {
				if !strings.Contains(where, frag) {
					t.Errorf("where = %q, want it to contain %q", where, frag)
				}
			}
		})
	}
}

func TestContainsPattern_EscapesWildcards(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"news", "%news%"},
		{"100%", `%100\%%`},
		{"snake_case", `%snake\_case%`},
		{`back\slash`, `%back\\slash%`},
		{"", "%%"},
	}
	for _, tt := range tests {
		if got := containsPattern(tt.in); got != tt.want {
			t.Errorf("containsPattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(fmt.Errorf("wrapped: %w", &pq.Error{Code: "23505"})) {
		t.Error("expected wrapped 23505 to be a unique violation")
	}
	if isUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Error("foreign key violation must not be treated as unique violation")
	}
	if isUniqueViolation(errors.New("plain")) {
		t.Error("plain error must not be treated as unique violation")
	}
	if isUniqueViolation(nil) {
		t.Error("nil must not be treated as unique violation")
	}
}

func TestNonNilInt64s(t *testing.T) {
	if got := nonNilInt64s(nil); got == nil || len(got) != 0 {
		t.Errorf("nonNilInt64s(nil) = %#v, want empty non-nil slice", got)
	}
	in := []int64{1}
	if got := nonNilInt64s(in); len(got) != 1 || got[0] != 1 {
		t.Errorf("nonNilInt64s(%v) = %v", in, got)
	}
}

func TestIntsToInt64s(t *testing.T) {
	got := intsToInt64s([]int{1, 2, 3})
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("intsToInt64s = %v", got)
	}
}
