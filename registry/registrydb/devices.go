// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package registrydb

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeebo/errs"

	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/device"
	"github.com/energytag/gcregistry/registry/events"
	"github.com/energytag/gcregistry/registry/regerr"
)

type devices struct {
	db *registryDB
}

const deviceSelect = `SELECT id, account_id, name, local_device_identifier,
	energy_source, technology_type, power_mw, energy_mwh, operational_date,
	is_storage, is_deleted, created_at
	FROM devices`

func scanDevice(scan func(dest ...interface{}) error) (*device.Device, error) {
	var (
		d          device.Device
		technology string
		energy     sql.NullFloat64
	)
	err := scan(&d.ID, &d.AccountID, &d.Name, &d.LocalDeviceIdentifier,
		&d.EnergySource, &technology, &d.PowerMW, &energy, &d.OperationalDate,
		&d.IsStorage, &d.IsDeleted, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.TechnologyType = device.TechnologyType(technology)
	if energy.Valid {
		d.EnergyMWh = &energy.Float64
	}
	return &d, nil
}

// Create implements device.DB.
func (d *devices) Create(ctx context.Context, tx *cqrs.Tx, list ...*device.Device) error {
	now := time.Now().UTC()
	for _, dev := range list {
		if err := dev.Validate(); err != nil {
			return err
		}
		if dev.CreatedAt.IsZero() {
			dev.CreatedAt = now
		}
		id, err := tx.Insert(ctx, "devices",
			[]string{
				"account_id", "name", "local_device_identifier",
				"energy_source", "technology_type", "power_mw", "energy_mwh",
				"operational_date", "is_storage", "is_deleted", "created_at",
			},
			dev.AccountID, dev.Name, dev.LocalDeviceIdentifier,
			dev.EnergySource, string(dev.TechnologyType), dev.PowerMW, dev.EnergyMWh,
			dev.OperationalDate, dev.IsStorage, dev.IsDeleted, dev.CreatedAt,
		)
		if err != nil {
			return Error.Wrap(err)
		}
		dev.ID = id

		tx.Record(events.Event{
			EntityID:   id,
			EntityName: device.EntityName,
			EventType:  events.TypeCreate,
			AttributesAfter: map[string]interface{}{
				"account_id":              dev.AccountID,
				"device_name":             dev.Name,
				"local_device_identifier": dev.LocalDeviceIdentifier,
				"energy_source":           dev.EnergySource,
				"technology_type":         string(dev.TechnologyType),
				"capacity":                dev.PowerMW,
				"is_storage":              dev.IsStorage,
			},
			Timestamp: now,
		})
	}
	return nil
}

// Get implements device.DB.
func (d *devices) Get(ctx context.Context, id int64) (*device.Device, error) {
	row := d.db.read.QueryRowContext(ctx, d.db.rebind(deviceSelect+" WHERE id = ?"), id)
	dev, err := scanDevice(row.Scan)
	if err == sql.ErrNoRows {
		return nil, regerr.NotFound.New("device %d not found", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return dev, nil
}

// GetByLocalIdentifier implements device.DB.
func (d *devices) GetByLocalIdentifier(ctx context.Context, identifier string) (*device.Device, error) {
	row := d.db.read.QueryRowContext(ctx,
		d.db.rebind(deviceSelect+" WHERE local_device_identifier = ? AND is_deleted = ?"),
		identifier, false)
	dev, err := scanDevice(row.Scan)
	if err == sql.ErrNoRows {
		return nil, regerr.NotFound.New("device with local identifier %q not found", identifier)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return dev, nil
}

// GetByName implements device.DB.
func (d *devices) GetByName(ctx context.Context, name string) (*device.Device, error) {
	row := d.db.read.QueryRowContext(ctx,
		d.db.rebind(deviceSelect+" WHERE name = ? AND is_deleted = ?"), name, false)
	dev, err := scanDevice(row.Scan)
	if err == sql.ErrNoRows {
		return nil, regerr.NotFound.New("device %q not found", name)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return dev, nil
}

// List implements device.DB.
func (d *devices) List(ctx context.Context) (list []*device.Device, err error) {
	rows, err := d.db.read.QueryContext(ctx,
		d.db.rebind(deviceSelect+" WHERE is_deleted = ? ORDER BY id"), false)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Close())) }()

	for rows.Next() {
		dev, err := scanDevice(rows.Scan)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, dev)
	}
	return list, Error.Wrap(rows.Err())
}

// Capacity implements device.DB.
func (d *devices) Capacity(ctx context.Context, id int64) (float64, error) {
	var capacity float64
	err := d.db.read.QueryRowContext(ctx,
		d.db.rebind(`SELECT power_mw FROM devices WHERE id = ?`), id).Scan(&capacity)
	if err == sql.ErrNoRows {
		return 0, regerr.NotFound.New("device %d not found", id)
	}
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return capacity, nil
}

// ResolveLocalID maps a local device identifier to its device id; used by
// the manual meter client.
func (d *devices) ResolveLocalID(ctx context.Context, localID string) (int64, error) {
	dev, err := d.GetByLocalIdentifier(ctx, localID)
	if err != nil {
		return 0, err
	}
	return dev.ID, nil
}
