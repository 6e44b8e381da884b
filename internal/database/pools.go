package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// 論理データベース名。
const (
	Identity = "identity"
	Content  = "content"
	Activity = "activity"
)

// pingTimeout はreadiness判定時の各DBへのSELECT 1のタイムアウト。
const pingTimeout = 3 * time.Second

// URLs は3つの論理データベースの接続URL。
type URLs struct {
	Identity string
	Content  string
	Activity string
}

// Pools はidentity/content/activityの3つの接続プールを保持する。
// プロセス起動時に1回だけ生成し、各リポジトリへ明示的に渡す。
type Pools struct {
	Identity *sql.DB
	Content  *sql.DB
	Activity *sql.DB
}

// OpenPools は3つのデータベースへの接続プールを開き、疎通を確認する。
// いずれかの接続に失敗した場合は開いたプールをすべて閉じてエラーを返す。
func OpenPools(ctx context.Context, urls URLs) (*Pools, error) {
	p := &Pools{}

	targets := []struct {
		name string
		url  string
		dst  **sql.DB
	}{
		{Identity, urls.Identity, &p.Identity},
		{Content, urls.Content, &p.Content},
		{Activity, urls.Activity, &p.Activity},
	}

	for _, t := range targets {
		db, err := Open(t.url)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("%s: %w", t.name, err)
		}
		*t.dst = db

		if err := db.PingContext(ctx); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to connect to %s database: %w", t.name, err)
		}
		slog.Info("database connection established", slog.String("database", t.name))
	}

	return p, nil
}

// Close は開いている全プールを閉じる。
func (p *Pools) Close() {
	for _, db := range []*sql.DB{p.Identity, p.Content, p.Activity} {
		if db != nil {
			db.Close()
		}
	}
}

// Ping は各データベースにSELECT 1を発行し、DB名ごとの結果を返す。
// 1つでも失敗した場合はokがfalseになる。
func (p *Pools) Ping(ctx context.Context) (checks map[string]bool, ok bool) {
	checks = map[string]bool{
		Identity: selectOne(ctx, p.Identity),
		Content:  selectOne(ctx, p.Content),
		Activity: selectOne(ctx, p.Activity),
	}

	ok = true
	for name, healthy := range checks {
		if !healthy {
			slog.Warn("readiness check failed", slog.String("database", name))
			ok = false
		}
	}
	return checks, ok
}

// selectOne はSELECT 1が成功するかを返す。
func selectOne(ctx context.Context, db *sql.DB) bool {
	if db == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return false
	}
	return one == 1
}
