// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// migrationsFS はDBごとのマイグレーションを保持する。
// migrations/<identity|content|activity>/*.sql の構成。
//
//go:embed migrations
var migrationsFS embed.FS

// NewMigrator は指定DB用のマイグレーション実行インスタンスを生成する。
// targetにはIdentity、Content、Activityのいずれかを指定する。
func NewMigrator(target, databaseURL string) (*migrate.Migrate, error) {
	switch target {
	case Identity, Content, Activity:
	default:
		return nil, fmt.Errorf("unknown migration target: %q", target)
	}

	source, err := iofs.New(migrationsFS, "migrations/"+target)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations は指定DBのすべてのマイグレーションを適用する。
// すでに最新の場合はエラーなしで返る。
func RunMigrations(target, databaseURL string) error {
	m, err := NewMigrator(target, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run %s migrations: %w", target, err)
	}

	return nil
}

// RunAllMigrations はidentity、content、activityの順にマイグレーションを適用する。
func RunAllMigrations(urls URLs) error {
	for _, t := range []struct{ name, url string }{
		{Identity, urls.Identity},
		{Content, urls.Content},
		{Activity, urls.Activity},
	} {
		if err := RunMigrations(t.name, t.url); err != nil {
			return err
		}
	}
	return nil
}
