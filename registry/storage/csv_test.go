// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/energytag/gcregistry/registry/regerr"
)

func TestParseRecordsCSV(t *testing.T) {
	input := strings.Join([]string{
		"validator_id,is_charging,flow_start_datetime,flow_end_datetime,flow_energy,energy_source",
		"scr-001,true,2024-04-01T08:00:00Z,2024-04-01T09:00:00Z,5000,solar_pv",
		"sdr-001,false,2024-04-01T18:00:00+02:00,2024-04-01T19:00:00+02:00,4000,",
	}, "\n")

	records, err := ParseRecordsCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)

	require.Equal(t, "scr-001", records[0].ValidatorID)
	require.True(t, records[0].IsCharging)
	require.Equal(t, int64(5000), records[0].FlowEnergyWh)
	require.Equal(t, "solar_pv", records[0].EnergySource)

	// Offsets are normalized to UTC.
	require.False(t, records[1].IsCharging)
	require.Equal(t, time.UTC, records[1].FlowStart.Location())
	require.Equal(t, 16, records[1].FlowStart.Hour())
}

func TestParseRecordsCSVRejectsBadRows(t *testing.T) {
	header := "validator_id,is_charging,flow_start_datetime,flow_end_datetime,flow_energy"

	for name, row := range map[string]string{
		"bad bool":   "scr-001,maybe,2024-04-01T08:00:00Z,2024-04-01T09:00:00Z,5000",
		"bad start":  "scr-001,true,yesterday,2024-04-01T09:00:00Z,5000",
		"bad end":    "scr-001,true,2024-04-01T08:00:00Z,tomorrow,5000",
		"bad energy": "scr-001,true,2024-04-01T08:00:00Z,2024-04-01T09:00:00Z,lots",
	} {
		_, err := ParseRecordsCSV(strings.NewReader(header + "\n" + row))
		require.True(t, regerr.Validation.Has(err), name)
		require.Contains(t, err.Error(), "line 2", name)
	}
}

func TestParseRecordsCSVRequiresColumns(t *testing.T) {
	_, err := ParseRecordsCSV(strings.NewReader("validator_id,is_charging\nscr-001,true"))
	require.True(t, regerr.Validation.Has(err))

	_, err = ParseRecordsCSV(strings.NewReader(""))
	require.True(t, regerr.Validation.Has(err))
}

func TestParseAllocationsCSV(t *testing.T) {
	input := strings.Join([]string{
		"scr_validator_id,sdr_validator_id,sdr_proportion,storage_efficiency_factor,gc_allocation_id,scr_allocation_methodology,efficiency_interval_start,efficiency_interval_end",
		"scr-001,sdr-001,0.5,0.88,12,fifo,2024-01-01T00:00:00Z,2024-02-01T00:00:00Z",
		"scr-002,sdr-002,1,0.9,,,,",
	}, "\n")

	rows, err := ParseAllocationsCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, "scr-001", rows[0].SCRValidatorID)
	require.Equal(t, "sdr-001", rows[0].SDRValidatorID)
	require.Equal(t, 0.5, rows[0].SDRProportion)
	require.Equal(t, 0.88, rows[0].StorageEfficiencyFactor)
	require.NotNil(t, rows[0].GCAllocationID)
	require.Equal(t, int64(12), *rows[0].GCAllocationID)
	require.Equal(t, "fifo", rows[0].SCRAllocationMethodology)
	require.NotNil(t, rows[0].EfficiencyIntervalStart)
	require.NotNil(t, rows[0].EfficiencyIntervalEnd)

	// Optional columns may be empty.
	require.Nil(t, rows[1].GCAllocationID)
	require.Nil(t, rows[1].EfficiencyIntervalStart)
	require.Equal(t, 1.0, rows[1].SDRProportion)
}

func TestParseAllocationsCSVRejectsBadRows(t *testing.T) {
	header := "scr_validator_id,sdr_validator_id,sdr_proportion,storage_efficiency_factor"

	for name, row := range map[string]string{
		"bad proportion": "scr-001,sdr-001,half,0.9",
		"bad efficiency": "scr-001,sdr-001,0.5,high",
	} {
		_, err := ParseAllocationsCSV(strings.NewReader(header + "\n" + row))
		require.True(t, regerr.Validation.Has(err), name)
	}

	_, err := ParseAllocationsCSV(strings.NewReader("scr_validator_id,sdr_proportion\nscr-001,0.5"))
	require.True(t, regerr.Validation.Has(err))
}
