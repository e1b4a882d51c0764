// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package registrydb

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeebo/errs"

	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/events"
	"github.com/energytag/gcregistry/registry/regerr"
	"github.com/energytag/gcregistry/registry/storage"
)

type storageRecords struct {
	db *registryDB
}

const recordSelect = `SELECT id, device_id, account_id, validator_id, is_charging,
	flow_start, flow_end, flow_energy, energy_source, is_deleted, created_at
	FROM storage_records`

func scanRecord(scan func(dest ...interface{}) error) (*storage.Record, error) {
	var r storage.Record
	err := scan(&r.ID, &r.DeviceID, &r.AccountID, &r.ValidatorID, &r.IsCharging,
		&r.FlowStart, &r.FlowEnd, &r.FlowEnergyWh, &r.EnergySource, &r.IsDeleted, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRecords implements storage.DB.
func (s *storageRecords) CreateRecords(ctx context.Context, tx *cqrs.Tx, records ...*storage.Record) error {
	now := time.Now().UTC()
	for _, record := range records {
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		id, err := tx.Insert(ctx, "storage_records",
			[]string{
				"device_id", "account_id", "validator_id", "is_charging",
				"flow_start", "flow_end", "flow_energy", "energy_source",
				"is_deleted", "created_at",
			},
			record.DeviceID, record.AccountID, record.ValidatorID, record.IsCharging,
			record.FlowStart, record.FlowEnd, record.FlowEnergyWh, record.EnergySource,
			record.IsDeleted, record.CreatedAt,
		)
		if err != nil {
			return Error.Wrap(err)
		}
		record.ID = id

		tx.Record(events.Event{
			EntityID:   id,
			EntityName: storage.RecordEntityName,
			EventType:  events.TypeCreate,
			AttributesAfter: map[string]interface{}{
				"device_id":    record.DeviceID,
				"validator_id": record.ValidatorID,
				"is_charging":  record.IsCharging,
				"flow_start":   record.FlowStart,
				"flow_end":     record.FlowEnd,
				"flow_energy":  record.FlowEnergyWh,
			},
			Timestamp: now,
		})
	}
	return nil
}

// GetRecord implements storage.DB.
func (s *storageRecords) GetRecord(ctx context.Context, tx *cqrs.Tx, id int64) (*storage.Record, error) {
	row := tx.QueryRow(ctx, recordSelect+" WHERE id = ?", id)
	record, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, regerr.NotFound.New("storage record %d not found", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return record, nil
}

// RecordsByValidatorID implements storage.DB.
func (s *storageRecords) RecordsByValidatorID(ctx context.Context, tx *cqrs.Tx, deviceID int64, validatorID string) (records []*storage.Record, err error) {
	rows, err := tx.Query(ctx,
		recordSelect+" WHERE device_id = ? AND validator_id = ? AND is_deleted = ?",
		deviceID, validatorID, false)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Close())) }()

	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		records = append(records, record)
	}
	return records, Error.Wrap(rows.Err())
}

// LatestFlowEnd implements storage.DB.
func (s *storageRecords) LatestFlowEnd(ctx context.Context, tx *cqrs.Tx, deviceID int64) (time.Time, bool, error) {
	var max sql.NullTime
	err := tx.QueryRow(ctx,
		`SELECT MAX(flow_end) FROM storage_records WHERE device_id = ? AND is_deleted = ?`,
		deviceID, false).Scan(&max)
	if err != nil {
		return time.Time{}, false, Error.Wrap(err)
	}
	return max.Time, max.Valid, nil
}

const allocationSelect = `SELECT id, device_id, scr_id, sdr_id,
	gc_allocation_id, sdgc_allocation_id, sdr_proportion, storage_efficiency_factor,
	scr_allocation_methodology, efficiency_interval_start, efficiency_interval_end,
	is_deleted, created_at
	FROM allocated_storage_records`

func scanAllocation(scan func(dest ...interface{}) error) (*storage.AllocatedRecord, error) {
	var (
		a             storage.AllocatedRecord
		gcID, sdgcID  sql.NullInt64
		intervalStart sql.NullTime
		intervalEnd   sql.NullTime
	)
	err := scan(&a.ID, &a.DeviceID, &a.SCRID, &a.SDRID,
		&gcID, &sdgcID, &a.SDRProportion, &a.StorageEfficiencyFactor,
		&a.SCRAllocationMethodology, &intervalStart, &intervalEnd,
		&a.IsDeleted, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if gcID.Valid {
		a.GCAllocationID = &gcID.Int64
	}
	if sdgcID.Valid {
		a.SDGCAllocationID = &sdgcID.Int64
	}
	if intervalStart.Valid {
		a.EfficiencyIntervalStart = &intervalStart.Time
	}
	if intervalEnd.Valid {
		a.EfficiencyIntervalEnd = &intervalEnd.Time
	}
	return &a, nil
}

// CreateAllocations implements storage.DB.
func (s *storageRecords) CreateAllocations(ctx context.Context, tx *cqrs.Tx, allocations ...*storage.AllocatedRecord) error {
	now := time.Now().UTC()
	for _, allocation := range allocations {
		if allocation.CreatedAt.IsZero() {
			allocation.CreatedAt = now
		}
		id, err := tx.Insert(ctx, "allocated_storage_records",
			[]string{
				"device_id", "scr_id", "sdr_id",
				"gc_allocation_id", "sdgc_allocation_id",
				"sdr_proportion", "storage_efficiency_factor",
				"scr_allocation_methodology",
				"efficiency_interval_start", "efficiency_interval_end",
				"is_deleted", "created_at",
			},
			allocation.DeviceID, allocation.SCRID, allocation.SDRID,
			allocation.GCAllocationID, allocation.SDGCAllocationID,
			allocation.SDRProportion, allocation.StorageEfficiencyFactor,
			allocation.SCRAllocationMethodology,
			allocation.EfficiencyIntervalStart, allocation.EfficiencyIntervalEnd,
			allocation.IsDeleted, allocation.CreatedAt,
		)
		if err != nil {
			return Error.Wrap(err)
		}
		allocation.ID = id

		attrs := map[string]interface{}{
			"device_id":                 allocation.DeviceID,
			"scr_id":                    allocation.SCRID,
			"sdr_id":                    allocation.SDRID,
			"sdr_proportion":            allocation.SDRProportion,
			"storage_efficiency_factor": allocation.StorageEfficiencyFactor,
		}
		if allocation.GCAllocationID != nil {
			attrs["gc_allocation_id"] = *allocation.GCAllocationID
		}
		tx.Record(events.Event{
			EntityID:        id,
			EntityName:      storage.AllocatedRecordEntityName,
			EventType:       events.TypeCreate,
			AttributesAfter: attrs,
			Timestamp:       now,
		})
	}
	return nil
}

// GetAllocation implements storage.DB.
func (s *storageRecords) GetAllocation(ctx context.Context, tx *cqrs.Tx, id int64) (*storage.AllocatedRecord, error) {
	row := tx.QueryRow(ctx, allocationSelect+" WHERE id = ? AND is_deleted = ?", id, false)
	allocation, err := scanAllocation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, regerr.NotFound.New("allocated storage record %d not found", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return allocation, nil
}

// SetAllocationSDGC implements storage.DB.
func (s *storageRecords) SetAllocationSDGC(ctx context.Context, tx *cqrs.Tx, id, bundleID int64) error {
	err := tx.Exec(ctx,
		`UPDATE allocated_storage_records SET sdgc_allocation_id = ? WHERE id = ?`, bundleID, id)
	if err != nil {
		return Error.Wrap(err)
	}
	tx.Record(events.Event{
		EntityID:        id,
		EntityName:      storage.AllocatedRecordEntityName,
		EventType:       events.TypeUpdate,
		AttributesAfter: map[string]interface{}{"sdgc_allocation_id": bundleID},
		Timestamp:       time.Now().UTC(),
	})
	return nil
}

// ListAllocations implements storage.DB.
func (s *storageRecords) ListAllocations(ctx context.Context, deviceID int64) (allocations []*storage.AllocatedRecord, err error) {
	rows, err := s.db.read.QueryContext(ctx, s.db.rebind(
		allocationSelect+" WHERE device_id = ? AND is_deleted = ? ORDER BY id"),
		deviceID, false)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Close())) }()

	for rows.Next() {
		allocation, err := scanAllocation(rows.Scan)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		allocations = append(allocations, allocation)
	}
	return allocations, Error.Wrap(rows.Err())
}
