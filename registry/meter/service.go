// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package meter

import (
	"context"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/device"
	"github.com/energytag/gcregistry/registry/regerr"
)

var mon = monkit.Package()

// Service accepts manual meter reading submissions.
type Service struct {
	log     *zap.Logger
	reports ReportDB
	devices device.DB
	cqrs    *cqrs.Coordinator
}

// NewService creates a meter service.
func NewService(log *zap.Logger, reports ReportDB, devices device.DB, coordinator *cqrs.Coordinator) *Service {
	return &Service{log: log, reports: reports, devices: devices, cqrs: coordinator}
}

// Submit validates and stores reports for a device. The whole batch commits
// or none of it does.
func (s *Service) Submit(ctx context.Context, deviceID int64, reports []*Report) (err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := s.devices.Get(ctx, deviceID); err != nil {
		return Error.Wrap(err)
	}
	for _, report := range reports {
		report.DeviceID = deviceID
		if !report.IntervalStart.Before(report.IntervalEnd) {
			return regerr.Validation.New("report interval start must precede its end")
		}
		if report.EnergyWh < 0 {
			return regerr.Validation.New("report energy must be non-negative")
		}
	}

	return s.cqrs.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		return s.reports.Create(ctx, tx, reports...)
	})
}
