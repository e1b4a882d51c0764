// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package boltstream_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/energytag/gcregistry/internal/testcontext"
	"github.com/energytag/gcregistry/registry/events"
	"github.com/energytag/gcregistry/registry/events/boltstream"
)

func makeEvent(id int64, eventType events.Type) events.Event {
	return events.Event{
		EntityID:   id,
		EntityName: "GranularCertificateBundle",
		EventType:  eventType,
		AttributesAfter: map[string]interface{}{
			"certificate_bundle_status": "Active",
		},
		Timestamp: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Second),
	}
}

func TestStreamAppendAndBackward(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	stream, err := boltstream.Open(ctx.File("events.db"))
	require.NoError(t, err)
	defer ctx.Check(stream.Close)

	n, err := stream.Len(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, stream.Append(ctx, makeEvent(1, events.TypeCreate)))
	require.NoError(t, stream.AppendBatch(ctx, []events.Event{
		makeEvent(2, events.TypeCreate),
		makeEvent(1, events.TypeUpdate),
	}))

	n, err = stream.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	// Newest first.
	batch, err := stream.Backward(ctx, 0)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	require.Equal(t, events.TypeUpdate, batch[0].EventType)
	require.Equal(t, int64(1), batch[0].EntityID)
	require.Equal(t, int64(2), batch[1].EntityID)
	require.Equal(t, int64(1), batch[2].EntityID)
	require.Equal(t, events.TypeCreate, batch[2].EventType)

	batch, err = stream.Backward(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	require.Equal(t, events.TypeUpdate, batch[0].EventType)
}

func TestStreamPersistsAttributes(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	path := ctx.File("events.db")

	stream, err := boltstream.Open(path)
	require.NoError(t, err)

	event := makeEvent(7, events.TypeUpdate)
	event.AttributesBefore = map[string]interface{}{"certificate_bundle_status": "Active"}
	event.AttributesAfter = map[string]interface{}{"certificate_bundle_status": "Cancelled"}
	require.NoError(t, stream.Append(ctx, event))
	require.NoError(t, stream.Close())

	// Reopen and make sure the event survived the restart.
	stream, err = boltstream.Open(path)
	require.NoError(t, err)
	defer ctx.Check(stream.Close)

	batch, err := stream.Backward(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Equal(t, int64(7), batch[0].EntityID)
	require.Equal(t, "Active", batch[0].AttributesBefore["certificate_bundle_status"])
	require.Equal(t, "Cancelled", batch[0].AttributesAfter["certificate_bundle_status"])
	require.True(t, event.Timestamp.Equal(batch[0].Timestamp))
}
