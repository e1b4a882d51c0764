// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package migrate_test

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/energytag/gcregistry/internal/migrate"
	"github.com/energytag/gcregistry/internal/testcontext"
)

func openDB(t *testing.T, ctx *testcontext.Context) *sql.DB {
	db, err := sql.Open("sqlite3", ctx.File("migrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func TestMigrationRunsStepsInOrder(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := openDB(t, ctx)
	migration := &migrate.Migration{
		Table: "versions",
		Steps: []*migrate.Step{
			{
				Description: "create notes",
				Version:     1,
				Action: migrate.SQL{
					`CREATE TABLE notes ( body text NOT NULL )`,
				},
			},
			{
				Description: "seed notes",
				Version:     2,
				Action: migrate.SQL{
					`INSERT INTO notes (body) VALUES ('first')`,
				},
			},
		},
	}
	require.NoError(t, migration.Run(ctx, zaptest.NewLogger(t), db))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&count))
	require.Equal(t, 1, count)

	var version int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT MAX(version) FROM versions`).Scan(&version))
	require.Equal(t, 2, version)
}

func TestMigrationIsIdempotent(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := openDB(t, ctx)
	migration := &migrate.Migration{
		Steps: []*migrate.Step{
			{
				Description: "create notes",
				Version:     1,
				Action: migrate.SQL{
					`CREATE TABLE notes ( body text NOT NULL )`,
					`INSERT INTO notes (body) VALUES ('seeded')`,
				},
			},
		},
	}
	require.NoError(t, migration.Run(ctx, zaptest.NewLogger(t), db))
	// A second run must not re-apply the step.
	require.NoError(t, migration.Run(ctx, zaptest.NewLogger(t), db))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&count))
	require.Equal(t, 1, count)
}

type failingAction struct{}

func (failingAction) Run(ctx context.Context, log *zap.Logger, tx *sql.Tx) error {
	return errs.New("step failed")
}

func TestMigrationRollsBackFailedStep(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := openDB(t, ctx)
	migration := &migrate.Migration{
		Steps: []*migrate.Step{
			{
				Description: "create notes",
				Version:     1,
				Action: migrate.SQL{
					`CREATE TABLE notes ( body text NOT NULL )`,
				},
			},
			{
				Description: "broken step",
				Version:     2,
				Action:      failingAction{},
			},
		},
	}
	err := migration.Run(ctx, zaptest.NewLogger(t), db)
	require.Error(t, err)

	// Version stays at the last successful step so a fixed step can rerun.
	var version int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT MAX(version) FROM versions`).Scan(&version))
	require.Equal(t, 1, version)
}
