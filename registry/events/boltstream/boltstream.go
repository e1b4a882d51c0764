// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package boltstream implements the event stream on top of boltdb. Events
// are keyed by the bucket sequence, which makes the stream totally ordered
// and replayable in either direction.
package boltstream

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"github.com/zeebo/errs"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/energytag/gcregistry/registry/events"
)

var (
	mon = monkit.Package()

	// Error is the boltstream error class.
	Error = errs.Class("boltstream")
)

const defaultFileMode = 0600

// Stream is a bolt-backed event stream.
type Stream struct {
	db     *bolt.DB
	bucket []byte
}

// Open opens or creates a bolt-backed stream at path.
func Open(path string) (*Stream, error) {
	db, err := bolt.Open(path, defaultFileMode, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	bucket := []byte(events.StreamName)
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, Error.Wrap(errs.Combine(err, db.Close()))
	}

	return &Stream{db: db, bucket: bucket}, nil
}

// Append adds a single event to the stream.
func (stream *Stream) Append(ctx context.Context, event events.Event) (err error) {
	defer mon.Task()(&ctx)(&err)
	return stream.AppendBatch(ctx, []events.Event{event})
}

// AppendBatch adds the events in order inside one bolt transaction.
func (stream *Stream) AppendBatch(ctx context.Context, batch []events.Event) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := ctx.Err(); err != nil {
		return Error.Wrap(err)
	}

	return Error.Wrap(stream.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(stream.bucket)
		for _, event := range batch {
			value, err := json.Marshal(event)
			if err != nil {
				return err
			}
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			if err := bucket.Put(sequenceKey(seq), value); err != nil {
				return err
			}
		}
		return nil
	}))
}

// Backward reads up to limit events, newest first.
func (stream *Stream) Backward(ctx context.Context, limit int) (batch []events.Event, err error) {
	defer mon.Task()(&ctx)(&err)

	err = stream.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(stream.bucket).Cursor()
		for key, value := cursor.Last(); key != nil; key, value = cursor.Prev() {
			if limit > 0 && len(batch) >= limit {
				break
			}
			var event events.Event
			if err := json.Unmarshal(value, &event); err != nil {
				return err
			}
			batch = append(batch, event)
		}
		return nil
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return batch, nil
}

// Len reports the number of events in the stream.
func (stream *Stream) Len(ctx context.Context) (n int, err error) {
	defer mon.Task()(&ctx)(&err)

	err = stream.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(stream.bucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return n, nil
}

// Close closes the underlying bolt database.
func (stream *Stream) Close() error {
	return Error.Wrap(stream.db.Close())
}

func sequenceKey(seq uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], seq)
	return key[:]
}
