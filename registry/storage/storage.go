// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package storage implements storage charge and discharge records and the
// allocation engine minting storage-discharge certificates.
package storage

import (
	"context"
	"time"

	"github.com/zeebo/errs"

	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/regerr"
)

// Error is the default storage error class.
var Error = errs.Class("storage")

// Event stream entity names.
const (
	RecordEntityName          = "StorageRecord"
	AllocatedRecordEntityName = "AllocatedStorageRecord"
)

// Record is one contiguous metered energy flow into (charge) or out of
// (discharge) a storage device.
type Record struct {
	ID        int64 `json:"id"`
	DeviceID  int64 `json:"device_id"`
	AccountID int64 `json:"account_id"`

	// ValidatorID is the identifier the submitting storage validator uses
	// to reference this record in allocation rows.
	ValidatorID string `json:"validator_id"`

	IsCharging   bool      `json:"is_charging"`
	FlowStart    time.Time `json:"flow_start_datetime"`
	FlowEnd      time.Time `json:"flow_end_datetime"`
	FlowEnergyWh int64     `json:"flow_energy"`
	EnergySource string    `json:"energy_source,omitempty"`

	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks structural record invariants and flow continuity against
// the device's latest recorded flow end.
func (r *Record) Validate(lastFlowEnd time.Time, hasLast bool) error {
	if r.DeviceID == 0 {
		return regerr.Validation.New("storage record requires a device")
	}
	if r.ValidatorID == "" {
		return regerr.Validation.New("storage record requires a validator id")
	}
	if r.FlowEnergyWh < 0 {
		return regerr.Validation.New("storage record flow energy must be non-negative")
	}
	if !r.FlowStart.Before(r.FlowEnd) {
		return regerr.Validation.New("storage record flow start must precede its end")
	}
	if hasLast && r.FlowStart.Before(lastFlowEnd) {
		return regerr.Integrity.New(
			"storage record flow [%s, %s] overlaps the device's recorded flows ending %s",
			r.FlowStart.Format(time.RFC3339), r.FlowEnd.Format(time.RFC3339),
			lastFlowEnd.Format(time.RFC3339))
	}
	return nil
}

// AllocatedRecord is a ternary match between one charge record, one
// discharge record and a cancelled production certificate, and carries the
// storage-discharge certificate minted from it.
type AllocatedRecord struct {
	ID       int64 `json:"id"`
	DeviceID int64 `json:"device_id"`

	SCRID int64 `json:"scr_id"`
	SDRID int64 `json:"sdr_id"`

	// GCAllocationID references the cancelled production bundle whose
	// attributes the minted certificate inherits.
	GCAllocationID *int64 `json:"gc_allocation_id,omitempty"`
	// SDGCAllocationID is set once the storage-discharge certificate has
	// been minted for this allocation.
	SDGCAllocationID *int64 `json:"sdgc_allocation_id,omitempty"`

	SDRProportion           float64 `json:"sdr_proportion"`
	StorageEfficiencyFactor float64 `json:"storage_efficiency_factor"`

	SCRAllocationMethodology string     `json:"scr_allocation_methodology,omitempty"`
	EfficiencyIntervalStart  *time.Time `json:"efficiency_factor_interval_start,omitempty"`
	EfficiencyIntervalEnd    *time.Time `json:"efficiency_factor_interval_end,omitempty"`

	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the allocation's scalar invariants.
func (a *AllocatedRecord) Validate() error {
	if a.SDRProportion <= 0 || a.SDRProportion > 1 {
		return regerr.Validation.New(
			"sdr proportion must be in (0, 1], got %g", a.SDRProportion)
	}
	if a.StorageEfficiencyFactor < 0 || a.StorageEfficiencyFactor > 1 {
		return regerr.Validation.New(
			"storage efficiency factor must be in [0, 1], got %g", a.StorageEfficiencyFactor)
	}
	return nil
}

// DB stores storage records and allocations.
//
// architecture: Database
type DB interface {
	// CreateRecords inserts storage records and records CREATE events.
	CreateRecords(ctx context.Context, tx *cqrs.Tx, records ...*Record) error
	// GetRecord loads a storage record by id inside the transaction.
	GetRecord(ctx context.Context, tx *cqrs.Tx, id int64) (*Record, error)
	// RecordsByValidatorID returns all non-deleted records for a device
	// carrying the given validator id, read inside the transaction.
	RecordsByValidatorID(ctx context.Context, tx *cqrs.Tx, deviceID int64, validatorID string) ([]*Record, error)
	// LatestFlowEnd returns the latest recorded flow end for a device,
	// read inside the transaction.
	LatestFlowEnd(ctx context.Context, tx *cqrs.Tx, deviceID int64) (time.Time, bool, error)

	// CreateAllocations inserts allocations and records CREATE events.
	CreateAllocations(ctx context.Context, tx *cqrs.Tx, allocations ...*AllocatedRecord) error
	// GetAllocation loads an allocation by id inside the transaction.
	GetAllocation(ctx context.Context, tx *cqrs.Tx, id int64) (*AllocatedRecord, error)
	// SetAllocationSDGC pins the minted certificate id onto the allocation
	// and records an UPDATE event.
	SetAllocationSDGC(ctx context.Context, tx *cqrs.Tx, id, bundleID int64) error
	// ListAllocations returns the non-deleted allocations for a device
	// from the read store.
	ListAllocations(ctx context.Context, deviceID int64) ([]*AllocatedRecord, error)
}
