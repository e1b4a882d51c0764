// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package certificate

import (
	"context"
	"time"

	"github.com/energytag/gcregistry/registry/cqrs"
)

// Bundles exposes methods to manage certificate bundles in the stores.
// Mutations run through a coordinator transaction; plain reads are served
// by the read store.
//
// architecture: Database
type Bundles interface {
	// Create inserts bundles, assigns their server ids, and records CREATE
	// events.
	Create(ctx context.Context, tx *cqrs.Tx, bundles ...*Bundle) error
	// Update applies a sparse delta to the bundle and records an UPDATE
	// event capturing before and after attributes.
	Update(ctx context.Context, tx *cqrs.Tx, id int64, update BundleUpdate) error
	// Delete soft-deletes bundles and records DELETE events.
	Delete(ctx context.Context, tx *cqrs.Tx, ids ...int64) error

	// GetForUpdate loads bundles by id from the write store inside the
	// transaction, locking their rows where the backend supports it.
	GetForUpdate(ctx context.Context, tx *cqrs.Tx, ids []int64) ([]*Bundle, error)
	// MaxCertificateID returns the highest range end issued for a device,
	// excluding withdrawn bundles, read inside the transaction. Returns 0
	// when the device has no bundles.
	MaxCertificateID(ctx context.Context, tx *cqrs.Tx, deviceID int64) (int64, error)
	// MaxProductionEnd returns the latest production ending interval
	// issued for a device, excluding withdrawn bundles.
	MaxProductionEnd(ctx context.Context, tx *cqrs.Tx, deviceID int64) (time.Time, bool, error)

	// Get loads a single bundle by id from the read store.
	Get(ctx context.Context, id int64) (*Bundle, error)
	// Query retrieves bundles matching the filters from the read store,
	// ordered by production starting interval descending.
	Query(ctx context.Context, query Query) ([]*Bundle, error)
	// Ranges returns the non-deleted certificate id ranges for a device.
	Ranges(ctx context.Context, deviceID int64) ([]Range, error)
}

// Actions records every requested bundle operation.
//
// architecture: Database
type Actions interface {
	// Create inserts the action audit row and records a CREATE event.
	Create(ctx context.Context, tx *cqrs.Tx, action *Action) error
	// List returns actions against a source account, newest first.
	List(ctx context.Context, sourceID int64, limit int) ([]*Action, error)
}

// MetadataDB manages issuance metadata rows.
//
// architecture: Database
type MetadataDB interface {
	// Create inserts metadata and records a CREATE event.
	Create(ctx context.Context, tx *cqrs.Tx, metadata *Metadata) error
	// Get loads metadata by id from the read store.
	Get(ctx context.Context, id int64) (*Metadata, error)
	// Latest returns the most recently created metadata, if any.
	Latest(ctx context.Context) (*Metadata, error)
}
