// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package cqrs_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/errs"
	"go.uber.org/zap/zaptest"

	"github.com/energytag/gcregistry/internal/dbutil"
	"github.com/energytag/gcregistry/internal/testcontext"
	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/events"
	"github.com/energytag/gcregistry/registry/events/boltstream"
	"github.com/energytag/gcregistry/registry/regerr"
)

const schema = `CREATE TABLE notes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	body TEXT NOT NULL
)`

func openStores(t *testing.T, ctx *testcontext.Context) (write, read *sql.DB) {
	open := func(name string) *sql.DB {
		db, err := sql.Open("sqlite3", ctx.File(name))
		require.NoError(t, err)
		db.SetMaxOpenConns(1)
		_, err = db.Exec(schema)
		require.NoError(t, err)
		return db
	}
	write, read = open("write.db"), open("read.db")
	t.Cleanup(func() {
		require.NoError(t, errs.Combine(write.Close(), read.Close()))
	})
	return write, read
}

func openStream(t *testing.T, ctx *testcontext.Context) events.Stream {
	stream, err := boltstream.Open(ctx.File("events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, stream.Close()) })
	return stream
}

func countNotes(t *testing.T, db *sql.DB) int {
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM notes").Scan(&n))
	return n
}

func TestAtomicallyCommitsBothStoresAndStream(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	write, read := openStores(t, ctx)
	stream := openStream(t, ctx)
	coordinator := cqrs.NewCoordinator(zaptest.NewLogger(t), write, read, dbutil.SQLite, stream)

	var id int64
	err := coordinator.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) (err error) {
		id, err = tx.Insert(ctx, "notes", []string{"body"}, "hello")
		if err != nil {
			return err
		}
		tx.Record(events.Event{
			EntityID:   id,
			EntityName: "Note",
			EventType:  events.TypeCreate,
			AttributesAfter: map[string]interface{}{
				"body": "hello",
			},
			Timestamp: time.Now().UTC(),
		})
		return nil
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	// The read store carries the row under the write store's id.
	var body string
	require.NoError(t, read.QueryRow("SELECT body FROM notes WHERE id = ?", id).Scan(&body))
	require.Equal(t, "hello", body)
	require.Equal(t, 1, countNotes(t, write))

	n, err := stream.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	batch, err := stream.Backward(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, id, batch[0].EntityID)
	require.Equal(t, events.TypeCreate, batch[0].EventType)
}

func TestAtomicallyRollsBackOnFailure(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	write, read := openStores(t, ctx)
	stream := openStream(t, ctx)
	coordinator := cqrs.NewCoordinator(zaptest.NewLogger(t), write, read, dbutil.SQLite, stream)

	boom := errs.New("boom")
	err := coordinator.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		if _, err := tx.Insert(ctx, "notes", []string{"body"}, "doomed"); err != nil {
			return err
		}
		tx.Record(events.Event{EntityName: "Note", EventType: events.TypeCreate})
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Neither store nor the stream observed anything.
	require.Zero(t, countNotes(t, write))
	require.Zero(t, countNotes(t, read))
	n, err := stream.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

// failingStream refuses appends, standing in for an unavailable event log.
type failingStream struct{}

func (failingStream) Append(ctx context.Context, event events.Event) error {
	return errs.New("stream unavailable")
}
func (failingStream) AppendBatch(ctx context.Context, batch []events.Event) error {
	return errs.New("stream unavailable")
}
func (failingStream) Backward(ctx context.Context, limit int) ([]events.Event, error) {
	return nil, errs.New("stream unavailable")
}
func (failingStream) Len(ctx context.Context) (int, error) { return 0, errs.New("stream unavailable") }
func (failingStream) Close() error                         { return nil }

func TestAtomicallyRollsBackWhenAppendFails(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	write, read := openStores(t, ctx)
	coordinator := cqrs.NewCoordinator(zaptest.NewLogger(t), write, read, dbutil.SQLite, failingStream{})

	err := coordinator.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		if _, err := tx.Insert(ctx, "notes", []string{"body"}, "doomed"); err != nil {
			return err
		}
		tx.Record(events.Event{EntityName: "Note", EventType: events.TypeCreate})
		return nil
	})
	require.Error(t, err)
	require.True(t, regerr.Internal.Has(err))

	require.Zero(t, countNotes(t, write))
	require.Zero(t, countNotes(t, read))
}

func TestAtomicallySkipsStreamWithoutEvents(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	write, read := openStores(t, ctx)

	// A read-only transaction records nothing, so even a failing stream is
	// never touched.
	coordinator := cqrs.NewCoordinator(zaptest.NewLogger(t), write, read, dbutil.SQLite, failingStream{})
	err := coordinator.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		var n int
		return tx.QueryRow(ctx, "SELECT COUNT(*) FROM notes").Scan(&n)
	})
	require.NoError(t, err)
}

func TestTxExecAppliesToBothStores(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	write, read := openStores(t, ctx)
	stream := openStream(t, ctx)
	coordinator := cqrs.NewCoordinator(zaptest.NewLogger(t), write, read, dbutil.SQLite, stream)

	var id int64
	err := coordinator.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) (err error) {
		id, err = tx.Insert(ctx, "notes", []string{"body"}, "before")
		return err
	})
	require.NoError(t, err)

	err = coordinator.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		return tx.Exec(ctx, "UPDATE notes SET body = ? WHERE id = ?", "after", id)
	})
	require.NoError(t, err)

	for _, store := range []*sql.DB{write, read} {
		var body string
		require.NoError(t, store.QueryRow("SELECT body FROM notes WHERE id = ?", id).Scan(&body))
		require.Equal(t, "after", body)
	}
}
