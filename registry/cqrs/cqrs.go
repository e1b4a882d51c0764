// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package cqrs implements the coordinator that fans every mutation out to
// the write store, the read store and the event stream as one atomic unit.
package cqrs

import (
	"context"
	"database/sql"
	"strings"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/energytag/gcregistry/internal/dbutil"
	"github.com/energytag/gcregistry/registry/events"
	"github.com/energytag/gcregistry/registry/regerr"
)

var (
	mon = monkit.Package()

	// Error is the default cqrs error class.
	Error = errs.Class("cqrs")
)

// Coordinator guarantees that, per call, the write store, the read store
// and the event stream all observe a mutation, or none of them do.
type Coordinator struct {
	log    *zap.Logger
	write  *sql.DB
	read   *sql.DB
	impl   dbutil.Implementation
	stream events.Stream
}

// NewCoordinator creates a coordinator over the two stores and the stream.
func NewCoordinator(log *zap.Logger, write, read *sql.DB, impl dbutil.Implementation, stream events.Stream) *Coordinator {
	return &Coordinator{
		log:    log,
		write:  write,
		read:   read,
		impl:   impl,
		stream: stream,
	}
}

// Tx is a two-store transaction scope. Statements run against the write
// store first and are replayed onto the read store; recorded events are
// appended to the stream before either store commits.
type Tx struct {
	impl    dbutil.Implementation
	write   *sql.Tx
	read    *sql.Tx
	pending []events.Event
}

// Atomically begins a transaction on both stores, runs fn, appends the
// recorded events, and commits write then read. Any failure before the
// write commit rolls back both stores and drops the events.
func (c *Coordinator) Atomically(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	wtx, err := c.write.BeginTx(ctx, nil)
	if err != nil {
		return regerr.Internal.Wrap(Error.Wrap(err))
	}
	rtx, err := c.read.BeginTx(ctx, nil)
	if err != nil {
		c.rollback(wtx, nil)
		return regerr.Internal.Wrap(Error.Wrap(err))
	}

	tx := &Tx{impl: c.impl, write: wtx, read: rtx}

	if err := fn(ctx, tx); err != nil {
		c.rollback(wtx, rtx)
		return err
	}

	if len(tx.pending) > 0 {
		if err := c.stream.AppendBatch(ctx, tx.pending); err != nil {
			c.rollback(wtx, rtx)
			return regerr.Internal.Wrap(Error.New("event append failed: %v", err))
		}
	}

	if err := wtx.Commit(); err != nil {
		c.rollback(nil, rtx)
		return regerr.Internal.Wrap(Error.New("write store commit failed: %v", err))
	}
	if err := rtx.Commit(); err != nil {
		// The write store has already committed; the read store can be
		// rebuilt from the event stream.
		c.log.Error("read store commit failed after write commit", zap.Error(err))
		return regerr.Internal.Wrap(Error.New("read store commit failed: %v", err))
	}
	return nil
}

func (c *Coordinator) rollback(wtx, rtx *sql.Tx) {
	if wtx != nil {
		if err := wtx.Rollback(); err != nil {
			c.log.Error("write store rollback failed", zap.Error(err))
		}
	}
	if rtx != nil {
		if err := rtx.Rollback(); err != nil {
			c.log.Error("read store rollback failed", zap.Error(err))
		}
	}
}

// Exec runs the statement on the write store and replays it onto the read
// store.
func (tx *Tx) Exec(ctx context.Context, query string, args ...interface{}) error {
	query = dbutil.Rebind(tx.impl, query)
	if _, err := tx.write.ExecContext(ctx, query, args...); err != nil {
		return Error.New("write store: %v", err)
	}
	if _, err := tx.read.ExecContext(ctx, query, args...); err != nil {
		return Error.New("read store: %v", err)
	}
	return nil
}

// Insert adds a row to the given table on the write store, captures the
// server-assigned id, and replays the row with the id pinned onto the read
// store.
func (tx *Tx) Insert(ctx context.Context, table string, columns []string, values ...interface{}) (id int64, err error) {
	if len(columns) != len(values) {
		return 0, Error.New("insert into %s: %d columns but %d values", table, len(columns), len(values))
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES (" + placeholders + ")"

	switch tx.impl {
	case dbutil.Postgres:
		err = tx.write.QueryRowContext(ctx,
			dbutil.Rebind(tx.impl, query)+" RETURNING id", values...).Scan(&id)
		if err != nil {
			return 0, Error.New("write store: %v", err)
		}
	default:
		result, err := tx.write.ExecContext(ctx, query, values...)
		if err != nil {
			return 0, Error.New("write store: %v", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return 0, Error.Wrap(err)
		}
	}

	replay := "INSERT INTO " + table + " (id, " + strings.Join(columns, ", ") + ") VALUES (?, " + placeholders + ")"
	replayArgs := append([]interface{}{id}, values...)
	if _, err := tx.read.ExecContext(ctx, dbutil.Rebind(tx.impl, replay), replayArgs...); err != nil {
		return 0, Error.New("read store: %v", err)
	}
	return id, nil
}

// QueryRow queries the write store, which is authoritative inside the
// transaction.
func (tx *Tx) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return tx.write.QueryRowContext(ctx, dbutil.Rebind(tx.impl, query), args...)
}

// Query queries the write store.
func (tx *Tx) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	rows, err := tx.write.QueryContext(ctx, dbutil.Rebind(tx.impl, query), args...)
	return rows, Error.Wrap(err)
}

// Record stages an event for append when the transaction commits.
func (tx *Tx) Record(event events.Event) {
	tx.pending = append(tx.pending, event)
}
