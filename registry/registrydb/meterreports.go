// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package registrydb

import (
	"context"
	"time"

	"github.com/zeebo/errs"

	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/events"
	"github.com/energytag/gcregistry/registry/meter"
)

type meterReports struct {
	db *registryDB
}

// Create implements meter.ReportDB.
func (m *meterReports) Create(ctx context.Context, tx *cqrs.Tx, reports ...*meter.Report) error {
	now := time.Now().UTC()
	for _, report := range reports {
		if report.CreatedAt.IsZero() {
			report.CreatedAt = now
		}
		id, err := tx.Insert(ctx, "meter_reports",
			[]string{"device_id", "interval_start", "interval_end", "energy_wh", "is_deleted", "created_at"},
			report.DeviceID, report.IntervalStart, report.IntervalEnd,
			report.EnergyWh, report.IsDeleted, report.CreatedAt)
		if err != nil {
			return Error.Wrap(err)
		}
		report.ID = id

		tx.Record(events.Event{
			EntityID:   id,
			EntityName: meter.ReportEntityName,
			EventType:  events.TypeCreate,
			AttributesAfter: map[string]interface{}{
				"device_id":      report.DeviceID,
				"interval_start": report.IntervalStart,
				"interval_end":   report.IntervalEnd,
				"interval_usage": report.EnergyWh,
			},
			Timestamp: now,
		})
	}
	return nil
}

// ListByDevice implements meter.ReportDB.
func (m *meterReports) ListByDevice(ctx context.Context, deviceID int64, from, to time.Time) (reports []*meter.Report, err error) {
	rows, err := m.db.read.QueryContext(ctx, m.db.rebind(
		`SELECT id, device_id, interval_start, interval_end, energy_wh, is_deleted, created_at
		 FROM meter_reports
		 WHERE device_id = ? AND is_deleted = ? AND interval_start >= ? AND interval_end <= ?
		 ORDER BY interval_start`),
		deviceID, false, from, to)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Close())) }()

	for rows.Next() {
		var report meter.Report
		err := rows.Scan(&report.ID, &report.DeviceID, &report.IntervalStart,
			&report.IntervalEnd, &report.EnergyWh, &report.IsDeleted, &report.CreatedAt)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		reports = append(reports, &report)
	}
	return reports, Error.Wrap(rows.Err())
}
