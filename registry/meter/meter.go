// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package meter defines the metering-data boundary the issuance pipeline
// consumes.
package meter

import (
	"context"
	"time"

	"github.com/zeebo/errs"

	"github.com/energytag/gcregistry/registry/cqrs"
)

// Error is the default meter error class.
var Error = errs.Class("meter")

// Reading is one metered production interval for a device. Readings
// returned by a client must be sorted by interval start.
type Reading struct {
	DeviceID      int64
	LocalID       string
	IntervalStart time.Time
	IntervalEnd   time.Time
	EnergyWh      int64
}

// Client fetches metered production for a device over a UTC interval.
//
// architecture: Service
type Client interface {
	// Name identifies the client implementation.
	Name() string
	// Readings returns the metered intervals for the device identified by
	// its local identifier, sorted by interval start.
	Readings(ctx context.Context, from, to time.Time, localID string) ([]Reading, error)
}

// Report is a manually submitted meter reading.
type Report struct {
	ID            int64
	DeviceID      int64
	IntervalStart time.Time
	IntervalEnd   time.Time
	EnergyWh      int64
	IsDeleted     bool
	CreatedAt     time.Time
}

// ReportEntityName is the name reports are recorded under in the event
// stream.
const ReportEntityName = "MeasurementReport"

// ReportDB stores manually submitted meter readings.
//
// architecture: Database
type ReportDB interface {
	// Create inserts reports and records CREATE events.
	Create(ctx context.Context, tx *cqrs.Tx, reports ...*Report) error
	// ListByDevice returns reports for a device inside [from, to), sorted
	// by interval start.
	ListByDevice(ctx context.Context, deviceID int64, from, to time.Time) ([]*Report, error)
}

// ManualClient serves issuance from manually submitted readings.
type ManualClient struct {
	reports ReportDB
	devices DeviceResolver
}

// DeviceResolver maps a local device identifier to its device id.
type DeviceResolver interface {
	ResolveLocalID(ctx context.Context, localID string) (int64, error)
}

// NewManualClient creates a meter client over the report store.
func NewManualClient(reports ReportDB, devices DeviceResolver) *ManualClient {
	return &ManualClient{reports: reports, devices: devices}
}

// Name implements Client.
func (c *ManualClient) Name() string { return "ManualSubmissionMeterClient" }

// Readings implements Client by loading submitted reports for the device.
func (c *ManualClient) Readings(ctx context.Context, from, to time.Time, localID string) ([]Reading, error) {
	deviceID, err := c.devices.ResolveLocalID(ctx, localID)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	reports, err := c.reports.ListByDevice(ctx, deviceID, from, to)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	readings := make([]Reading, 0, len(reports))
	for _, report := range reports {
		readings = append(readings, Reading{
			DeviceID:      report.DeviceID,
			LocalID:       localID,
			IntervalStart: report.IntervalStart,
			IntervalEnd:   report.IntervalEnd,
			EnergyWh:      report.EnergyWh,
		})
	}
	return readings, nil
}
