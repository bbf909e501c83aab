package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_exam_schema.sql
var createExamSchemaSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createExamSchemaSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
DROP TABLE IF EXISTS app_settings;
DROP TABLE IF EXISTS certificates;
DROP TABLE IF EXISTS exam_results;
DROP TABLE IF EXISTS publication_state;
DROP TABLE IF EXISTS exam_templates;`)
			return err
		},
	)
}
