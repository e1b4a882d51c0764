// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/energytag/gcregistry/registry/regerr"
)

func testRecord() *Record {
	start := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	return &Record{
		DeviceID:     3,
		AccountID:    1,
		ValidatorID:  "scr-001",
		IsCharging:   true,
		FlowStart:    start,
		FlowEnd:      start.Add(time.Hour),
		FlowEnergyWh: 5000,
	}
}

func TestRecordValidate(t *testing.T) {
	require.NoError(t, testRecord().Validate(time.Time{}, false))

	t.Run("requires device", func(t *testing.T) {
		record := testRecord()
		record.DeviceID = 0
		require.True(t, regerr.Validation.Has(record.Validate(time.Time{}, false)))
	})

	t.Run("requires validator id", func(t *testing.T) {
		record := testRecord()
		record.ValidatorID = ""
		require.True(t, regerr.Validation.Has(record.Validate(time.Time{}, false)))
	})

	t.Run("rejects negative energy", func(t *testing.T) {
		record := testRecord()
		record.FlowEnergyWh = -1
		require.True(t, regerr.Validation.Has(record.Validate(time.Time{}, false)))
	})

	t.Run("rejects inverted flow interval", func(t *testing.T) {
		record := testRecord()
		record.FlowEnd = record.FlowStart
		require.True(t, regerr.Validation.Has(record.Validate(time.Time{}, false)))
	})
}

func TestRecordValidateContinuity(t *testing.T) {
	record := testRecord()

	// Starting exactly at the previous flow end is contiguous.
	require.NoError(t, record.Validate(record.FlowStart, true))
	// A later start leaves a gap, which is allowed.
	require.NoError(t, record.Validate(record.FlowStart.Add(-time.Hour), true))
	// Starting before the previous flow end overlaps recorded history.
	err := record.Validate(record.FlowStart.Add(time.Minute), true)
	require.True(t, regerr.Integrity.Has(err))
}

func TestAllocatedRecordValidate(t *testing.T) {
	allocation := &AllocatedRecord{SDRProportion: 0.5, StorageEfficiencyFactor: 0.9}
	require.NoError(t, allocation.Validate())

	allocation.SDRProportion = 1
	require.NoError(t, allocation.Validate())

	for _, proportion := range []float64{0, -0.5, 1.01} {
		allocation := &AllocatedRecord{SDRProportion: proportion, StorageEfficiencyFactor: 0.9}
		require.True(t, regerr.Validation.Has(allocation.Validate()), proportion)
	}
	for _, efficiency := range []float64{-0.01, 1.01} {
		allocation := &AllocatedRecord{SDRProportion: 0.5, StorageEfficiencyFactor: efficiency}
		require.True(t, regerr.Validation.Has(allocation.Validate()), efficiency)
	}
}
