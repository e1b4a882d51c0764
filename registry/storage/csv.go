// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package storage

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/energytag/gcregistry/registry/regerr"
)

func headerIndex(header []string, required []string) (map[string]int, error) {
	columns := map[string]int{}
	for i, name := range header {
		columns[name] = i
	}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, regerr.Validation.New("csv is missing column %q", name)
		}
	}
	return columns, nil
}

// ParseRecordsCSV decodes a storage-record submission. Expected columns:
// validator_id, is_charging, flow_start_datetime, flow_end_datetime,
// flow_energy and optionally energy_source.
func ParseRecordsCSV(r io.Reader) ([]*Record, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, regerr.Validation.New("csv has no header row: %v", err)
	}
	columns, err := headerIndex(header, []string{
		"validator_id", "is_charging", "flow_start_datetime", "flow_end_datetime", "flow_energy",
	})
	if err != nil {
		return nil, err
	}

	var records []*Record
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, regerr.Validation.New("line %d: %v", line, err)
		}
		field := func(name string) string {
			i, ok := columns[name]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}

		charging, err := strconv.ParseBool(field("is_charging"))
		if err != nil {
			return nil, regerr.Validation.New("line %d: invalid is_charging: %v", line, err)
		}
		flowStart, err := time.Parse(time.RFC3339, field("flow_start_datetime"))
		if err != nil {
			return nil, regerr.Validation.New("line %d: invalid flow_start_datetime: %v", line, err)
		}
		flowEnd, err := time.Parse(time.RFC3339, field("flow_end_datetime"))
		if err != nil {
			return nil, regerr.Validation.New("line %d: invalid flow_end_datetime: %v", line, err)
		}
		energy, err := strconv.ParseInt(field("flow_energy"), 10, 64)
		if err != nil {
			return nil, regerr.Validation.New("line %d: invalid flow_energy: %v", line, err)
		}

		records = append(records, &Record{
			ValidatorID:  field("validator_id"),
			IsCharging:   charging,
			FlowStart:    flowStart.UTC(),
			FlowEnd:      flowEnd.UTC(),
			FlowEnergyWh: energy,
			EnergySource: field("energy_source"),
		})
	}
	return records, nil
}

// ParseAllocationsCSV decodes an allocation submission. Expected columns:
// scr_validator_id, sdr_validator_id, sdr_proportion,
// storage_efficiency_factor and optionally gc_allocation_id,
// scr_allocation_methodology, efficiency_interval_start,
// efficiency_interval_end.
func ParseAllocationsCSV(r io.Reader) ([]AllocationRow, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, regerr.Validation.New("csv has no header row: %v", err)
	}
	columns, err := headerIndex(header, []string{
		"scr_validator_id", "sdr_validator_id", "sdr_proportion", "storage_efficiency_factor",
	})
	if err != nil {
		return nil, err
	}

	var rows []AllocationRow
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, regerr.Validation.New("line %d: %v", line, err)
		}
		field := func(name string) string {
			i, ok := columns[name]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}

		proportion, err := strconv.ParseFloat(field("sdr_proportion"), 64)
		if err != nil {
			return nil, regerr.Validation.New("line %d: invalid sdr_proportion: %v", line, err)
		}
		efficiency, err := strconv.ParseFloat(field("storage_efficiency_factor"), 64)
		if err != nil {
			return nil, regerr.Validation.New("line %d: invalid storage_efficiency_factor: %v", line, err)
		}

		allocation := AllocationRow{
			SCRValidatorID:           field("scr_validator_id"),
			SDRValidatorID:           field("sdr_validator_id"),
			SDRProportion:            proportion,
			StorageEfficiencyFactor:  efficiency,
			SCRAllocationMethodology: field("scr_allocation_methodology"),
		}
		if raw := field("gc_allocation_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, regerr.Validation.New("line %d: invalid gc_allocation_id: %v", line, err)
			}
			allocation.GCAllocationID = &id
		}
		if raw := field("efficiency_interval_start"); raw != "" {
			at, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, regerr.Validation.New("line %d: invalid efficiency_interval_start: %v", line, err)
			}
			at = at.UTC()
			allocation.EfficiencyIntervalStart = &at
		}
		if raw := field("efficiency_interval_end"); raw != "" {
			at, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return nil, regerr.Validation.New("line %d: invalid efficiency_interval_end: %v", line, err)
			}
			at = at.UTC()
			allocation.EfficiencyIntervalEnd = &at
		}
		rows = append(rows, allocation)
	}
	return rows, nil
}
