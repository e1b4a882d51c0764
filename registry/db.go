// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package registry wires the granular certificate registry together: the
// dual stores, the event stream, the domain services and the public API.
package registry

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/energytag/gcregistry/internal/dbutil"
	"github.com/energytag/gcregistry/registry/account"
	"github.com/energytag/gcregistry/registry/certificate"
	"github.com/energytag/gcregistry/registry/device"
	"github.com/energytag/gcregistry/registry/meter"
	"github.com/energytag/gcregistry/registry/storage"
	"github.com/energytag/gcregistry/registry/user"
)

// DB is the master database for the registry.
//
// architecture: Master Database
type DB interface {
	// MigrateToLatest brings both stores to the newest schema version.
	MigrateToLatest(ctx context.Context, log *zap.Logger) error
	// Close closes both stores.
	Close() error

	// WriteStore returns the authoritative store.
	WriteStore() *sql.DB
	// ReadStore returns the query replica.
	ReadStore() *sql.DB
	// Implementation identifies the backing database engine.
	Implementation() dbutil.Implementation

	// Bundles returns the certificate bundle table.
	Bundles() certificate.Bundles
	// Actions returns the action audit table.
	Actions() certificate.Actions
	// Metadata returns the issuance metadata table.
	Metadata() certificate.MetadataDB
	// Devices returns the device table.
	Devices() device.DB
	// Accounts returns the account table.
	Accounts() account.DB
	// Users returns the user table.
	Users() user.DB
	// Storage returns the storage record tables.
	Storage() storage.DB
	// MeterReports returns the manual meter report table.
	MeterReports() meter.ReportDB
}
