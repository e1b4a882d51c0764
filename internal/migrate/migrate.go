// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package migrate implements an ordered, versioned schema migration runner.
package migrate

import (
	"context"
	"database/sql"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// Error is the default migrate error class.
var Error = errs.Class("migrate")

// Migration describes a versioned sequence of schema steps.
type Migration struct {
	Table string
	Steps []*Step
}

// Step is a single schema change.
type Step struct {
	Description string
	Version     int
	Action      Action
}

// Action is something that can be run against a database transaction.
type Action interface {
	Run(ctx context.Context, log *zap.Logger, tx *sql.Tx) error
}

// SQL is an Action of literal statements.
type SQL []string

// Run executes the SQL statements in order.
func (s SQL) Run(ctx context.Context, log *zap.Logger, tx *sql.Tx) error {
	for _, query := range s {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

// Run applies all unapplied steps, in order, each inside its own
// transaction. The current version is tracked in the migration table.
func (migration *Migration) Run(ctx context.Context, log *zap.Logger, db *sql.DB) error {
	if migration.Table == "" {
		migration.Table = "versions"
	}

	if err := migration.ensureVersionTable(ctx, db); err != nil {
		return err
	}

	version, err := migration.currentVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, step := range migration.Steps {
		if step.Version <= version {
			continue
		}
		log.Info("applying migration",
			zap.Int("version", step.Version),
			zap.String("description", step.Description))

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return Error.Wrap(err)
		}
		if err := step.Action.Run(ctx, log, tx); err != nil {
			return Error.Wrap(errs.Combine(err, tx.Rollback()))
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+migration.Table+` (version) VALUES (`+itoa(step.Version)+`)`); err != nil {
			return Error.Wrap(errs.Combine(err, tx.Rollback()))
		}
		if err := tx.Commit(); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

func (migration *Migration) ensureVersionTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS `+migration.Table+` (version integer NOT NULL)`)
	return Error.Wrap(err)
}

func (migration *Migration) currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	err := db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM `+migration.Table).Scan(&version)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	if !version.Valid {
		return -1, nil
	}
	return int(version.Int64), nil
}

func itoa(n int) string {
	if n < 0 {
		return "-" + itoa(-n)
	}
	if n < 10 {
		return string(rune('0' + n))
	}
	return itoa(n/10) + string(rune('0'+n%10))
}
