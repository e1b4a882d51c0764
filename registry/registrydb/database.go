// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package registrydb implements registry.DB over sqlite or postgres, with
// separate write and read stores.
package registrydb

import (
	"context"
	"database/sql"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/energytag/gcregistry/internal/dbutil"
	"github.com/energytag/gcregistry/registry"
	"github.com/energytag/gcregistry/registry/account"
	"github.com/energytag/gcregistry/registry/certificate"
	"github.com/energytag/gcregistry/registry/device"
	"github.com/energytag/gcregistry/registry/meter"
	"github.com/energytag/gcregistry/registry/storage"
	"github.com/energytag/gcregistry/registry/user"
)

// Error is the default registrydb error class.
var Error = errs.Class("registrydb")

type registryDB struct {
	log   *zap.Logger
	write *sql.DB
	read  *sql.DB
	impl  dbutil.Implementation
}

// Open connects to the write and read stores. Both URLs must use the same
// engine.
func Open(log *zap.Logger, writeURL, readURL string) (registry.DB, error) {
	writeDriver, writeSource, writeImpl, err := dbutil.SplitConnStr(writeURL)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	readDriver, readSource, readImpl, err := dbutil.SplitConnStr(readURL)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if writeImpl != readImpl {
		return nil, Error.New("write and read stores must use the same engine")
	}

	write, err := sql.Open(writeDriver, writeSource)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	read, err := sql.Open(readDriver, readSource)
	if err != nil {
		return nil, Error.Wrap(errs.Combine(err, write.Close()))
	}

	if writeImpl == dbutil.SQLite {
		// Serialized access; the coordinator holds transactions on both
		// stores at once.
		write.SetMaxOpenConns(1)
		read.SetMaxOpenConns(1)
	}

	return &registryDB{
		log:   log,
		write: write,
		read:  read,
		impl:  writeImpl,
	}, nil
}

// MigrateToLatest implements registry.DB. The schema is applied to both
// stores; the read store mirrors the write store's tables.
func (db *registryDB) MigrateToLatest(ctx context.Context, log *zap.Logger) error {
	migration := db.Migration()
	if err := migration.Run(ctx, log.Named("migrate:write"), db.write); err != nil {
		return Error.Wrap(err)
	}
	if err := migration.Run(ctx, log.Named("migrate:read"), db.read); err != nil {
		return Error.Wrap(err)
	}
	return nil
}

// Close implements registry.DB.
func (db *registryDB) Close() error {
	return Error.Wrap(errs.Combine(db.write.Close(), db.read.Close()))
}

// WriteStore implements registry.DB.
func (db *registryDB) WriteStore() *sql.DB { return db.write }

// ReadStore implements registry.DB.
func (db *registryDB) ReadStore() *sql.DB { return db.read }

// Implementation implements registry.DB.
func (db *registryDB) Implementation() dbutil.Implementation { return db.impl }

// Bundles implements registry.DB.
func (db *registryDB) Bundles() certificate.Bundles { return &bundles{db: db} }

// Actions implements registry.DB.
func (db *registryDB) Actions() certificate.Actions { return &actions{db: db} }

// Metadata implements registry.DB.
func (db *registryDB) Metadata() certificate.MetadataDB { return &metadata{db: db} }

// Devices implements registry.DB.
func (db *registryDB) Devices() device.DB { return &devices{db: db} }

// Accounts implements registry.DB.
func (db *registryDB) Accounts() account.DB { return &accounts{db: db} }

// Users implements registry.DB.
func (db *registryDB) Users() user.DB { return &users{db: db} }

// Storage implements registry.DB.
func (db *registryDB) Storage() storage.DB { return &storageRecords{db: db} }

// MeterReports implements registry.DB.
func (db *registryDB) MeterReports() meter.ReportDB { return &meterReports{db: db} }

// rebind adapts ? placeholders for the engine.
func (db *registryDB) rebind(query string) string {
	return dbutil.Rebind(db.impl, query)
}
