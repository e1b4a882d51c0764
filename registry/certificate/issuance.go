// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package certificate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/device"
	"github.com/energytag/gcregistry/registry/regerr"
)

// IssueForDevice runs the issuance pipeline for one device over [from, to):
// fetch metered production, map each interval to a bundle, validate against
// device capacity and the device's certificate counter, hash, and commit
// the batch. Intervals already covered by issued bundles are skipped so a
// rerun over an overlapping window never double-issues.
func (s *Service) IssueForDevice(ctx context.Context, dev *device.Device, from, to time.Time, metadataID int64) (issued []*Bundle, err error) {
	defer mon.Task()(&ctx)(&err)

	if from.Location() != time.UTC || to.Location() != time.UTC {
		return nil, regerr.Validation.New("issuance interval bounds must be timezone-aware UTC datetimes")
	}
	if !from.Before(to) {
		return nil, regerr.Validation.New("issuance interval start must precede its end")
	}
	if dev.LocalDeviceIdentifier == "" {
		return nil, regerr.Validation.New("device %d has no local device identifier", dev.ID)
	}

	err = s.cqrs.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		maxEnd, ok, err := s.bundles.MaxProductionEnd(ctx, tx, dev.ID)
		if err != nil {
			return err
		}
		if ok {
			if !maxEnd.Before(to) {
				s.log.Info("issuance window already covered",
					zap.Int64("device_id", dev.ID),
					zap.Time("issued_through", maxEnd))
				return nil
			}
			if maxEnd.After(from) {
				from = maxEnd
			}
		}

		readings, err := s.meter.Readings(ctx, from, to, dev.LocalDeviceIdentifier)
		if err != nil {
			return err
		}
		if len(readings) == 0 {
			return nil
		}

		maxCertificateID, err := s.bundles.MaxCertificateID(ctx, tx, dev.ID)
		if err != nil {
			return err
		}

		for _, reading := range readings {
			if reading.EnergyWh <= 0 {
				continue
			}
			if reading.IntervalStart.Before(from) || reading.IntervalEnd.After(to) {
				continue
			}

			bundle := &Bundle{
				Status:     StatusActive,
				AccountID:  dev.AccountID,
				MetadataID: metadataID,

				RangeStart: maxCertificateID + 1,
				RangeEnd:   maxCertificateID + reading.EnergyWh,
				Quantity:   reading.EnergyWh,

				EnergyCarrier: CarrierElectricity,
				EnergySource:  EnergySource(dev.EnergySource),
				FaceValue:     1,

				DeviceID:        dev.ID,
				ProductionStart: reading.IntervalStart.UTC(),
				ProductionEnd:   reading.IntervalEnd.UTC(),
				ExpiryDate:      reading.IntervalStart.UTC().AddDate(s.config.ExpiryYears, 0, 0),

				IsStorage: dev.IsStorage,
			}
			bundle.IssuanceID = NewIssuanceID(dev.ID, bundle.ProductionStart)

			hours := reading.IntervalEnd.Sub(reading.IntervalStart).Hours()
			if hours <= 0 {
				hours = s.config.GranularityHours
			}
			err := ValidateBundle(bundle, dev.PowerMW, maxCertificateID, hours, s.config.CapacityMargin)
			if err != nil {
				return err
			}
			bundle.Hash = BundleHash(bundle, "")

			maxCertificateID = bundle.RangeEnd
			issued = append(issued, bundle)
		}
		if len(issued) == 0 {
			return nil
		}
		return s.bundles.Create(ctx, tx, issued...)
	})
	if err != nil {
		return nil, err
	}

	if len(issued) > 0 {
		s.log.Info("issued certificate bundles",
			zap.Int64("device_id", dev.ID),
			zap.Int("bundles", len(issued)),
			zap.String("meter_client", s.meter.Name()))
	}
	return issued, nil
}

// IssueInRange runs the issuance pipeline over every registered device.
// Devices that fail issuance are logged and skipped so one bad meter feed
// does not stall the rest.
func (s *Service) IssueInRange(ctx context.Context, from, to time.Time, metadataID int64) (issued []*Bundle, err error) {
	defer mon.Task()(&ctx)(&err)

	devices, err := s.devices.List(ctx)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	for _, dev := range devices {
		if dev.IsStorage {
			// Storage devices mint through discharge allocation, not metering.
			continue
		}
		bundles, err := s.IssueForDevice(ctx, dev, from, to, metadataID)
		if err != nil {
			s.log.Error("issuance failed for device",
				zap.Int64("device_id", dev.ID), zap.Error(err))
			continue
		}
		issued = append(issued, bundles...)
	}
	return issued, nil
}
