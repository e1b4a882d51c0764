// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/energytag/gcregistry/registry/certificate"
	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/device"
	"github.com/energytag/gcregistry/registry/regerr"
)

var mon = monkit.Package()

// Service implements storage record ingestion, allocation matching and
// storage-discharge certificate issuance.
//
// architecture: Service
type Service struct {
	log     *zap.Logger
	cqrs    *cqrs.Coordinator
	db      DB
	bundles certificate.Bundles
	devices device.DB
}

// NewService creates a storage service.
func NewService(log *zap.Logger, coordinator *cqrs.Coordinator, db DB, bundles certificate.Bundles, devices device.DB) *Service {
	return &Service{log: log, cqrs: coordinator, db: db, bundles: bundles, devices: devices}
}

// SubmitRecords validates and stores a batch of flow records for one
// storage device. Records must extend the device's flow history without
// overlap; the whole batch commits or none of it does.
func (s *Service) SubmitRecords(ctx context.Context, deviceID int64, records []*Record) (err error) {
	defer mon.Task()(&ctx)(&err)

	dev, err := s.devices.Get(ctx, deviceID)
	if err != nil {
		return Error.Wrap(err)
	}
	if !dev.IsStorage {
		return regerr.Validation.New("device %d is not a storage device", deviceID)
	}

	return s.cqrs.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		lastEnd, hasLast, err := s.db.LatestFlowEnd(ctx, tx, deviceID)
		if err != nil {
			return err
		}
		for _, record := range records {
			record.DeviceID = deviceID
			record.AccountID = dev.AccountID
			if err := record.Validate(lastEnd, hasLast); err != nil {
				return err
			}
			lastEnd, hasLast = record.FlowEnd, true
		}
		return s.db.CreateRecords(ctx, tx, records...)
	})
}

// AllocationRow is one submitted allocation referencing stored records by
// their validator ids.
type AllocationRow struct {
	SCRValidatorID string
	SDRValidatorID string
	GCAllocationID *int64

	SDRProportion           float64
	StorageEfficiencyFactor float64

	SCRAllocationMethodology string
	EfficiencyIntervalStart  *time.Time
	EfficiencyIntervalEnd    *time.Time
}

// Allocate matches submitted allocation rows against the device's stored
// records and persists the resulting allocations. Every row must resolve
// to exactly one charge and one discharge record, the discharge must start
// after the charge ends, and a referenced certificate must be a cancelled
// bundle sized to the allocated share of the charge.
func (s *Service) Allocate(ctx context.Context, deviceID int64, rows []AllocationRow) (allocations []*AllocatedRecord, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.cqrs.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		for _, row := range rows {
			scr, err := s.resolveRecord(ctx, tx, deviceID, row.SCRValidatorID)
			if err != nil {
				return err
			}
			sdr, err := s.resolveRecord(ctx, tx, deviceID, row.SDRValidatorID)
			if err != nil {
				return err
			}

			if sdr.IsCharging {
				return regerr.State.New(
					"record %s is a charge record, expected a discharge record", row.SDRValidatorID)
			}
			if !scr.IsCharging {
				return regerr.State.New(
					"record %s is a discharge record, expected a charge record", row.SCRValidatorID)
			}
			if sdr.FlowStart.Before(scr.FlowEnd) {
				return regerr.State.New(
					"discharge %s starts before charge %s has ended",
					row.SDRValidatorID, row.SCRValidatorID)
			}

			allocation := &AllocatedRecord{
				DeviceID:                 deviceID,
				SCRID:                    scr.ID,
				SDRID:                    sdr.ID,
				GCAllocationID:           row.GCAllocationID,
				SDRProportion:            row.SDRProportion,
				StorageEfficiencyFactor:  row.StorageEfficiencyFactor,
				SCRAllocationMethodology: row.SCRAllocationMethodology,
				EfficiencyIntervalStart:  row.EfficiencyIntervalStart,
				EfficiencyIntervalEnd:    row.EfficiencyIntervalEnd,
			}
			if err := allocation.Validate(); err != nil {
				return err
			}

			if row.GCAllocationID != nil {
				if err := s.checkAllocatedBundle(ctx, tx, *row.GCAllocationID, allocation, scr); err != nil {
					return err
				}
			}

			if err := s.db.CreateAllocations(ctx, tx, allocation); err != nil {
				return err
			}
			allocations = append(allocations, allocation)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return allocations, nil
}

// resolveRecord maps a validator id to the single record it identifies.
func (s *Service) resolveRecord(ctx context.Context, tx *cqrs.Tx, deviceID int64, validatorID string) (*Record, error) {
	records, err := s.db.RecordsByValidatorID(ctx, tx, deviceID, validatorID)
	if err != nil {
		return nil, err
	}
	switch len(records) {
	case 0:
		return nil, regerr.NotFound.New("no storage record with validator id %s", validatorID)
	case 1:
		return records[0], nil
	default:
		return nil, regerr.Integrity.New(
			"validator id %s resolves to %d storage records", validatorID, len(records))
	}
}

// checkAllocatedBundle verifies the referenced cancelled certificate fits
// the allocation.
func (s *Service) checkAllocatedBundle(ctx context.Context, tx *cqrs.Tx, bundleID int64, allocation *AllocatedRecord, scr *Record) error {
	bundles, err := s.bundles.GetForUpdate(ctx, tx, []int64{bundleID})
	if err != nil {
		return err
	}
	if len(bundles) == 0 {
		return regerr.NotFound.New("allocated certificate bundle %d not found", bundleID)
	}
	bundle := bundles[0]

	if bundle.Status != certificate.StatusCancelled {
		return regerr.State.New(
			"allocated certificate bundle %d is %q, must be cancelled", bundleID, bundle.Status)
	}
	expected := int64(allocation.SDRProportion * float64(scr.FlowEnergyWh))
	if bundle.Quantity != expected {
		return regerr.Integrity.New(
			"allocated certificate quantity %d does not match the allocated charge share %d",
			bundle.Quantity, expected)
	}
	if bundle.ProductionStart.Before(scr.FlowStart) || bundle.ProductionEnd.After(scr.FlowEnd) {
		return regerr.Integrity.New(
			"allocated certificate production interval falls outside the charge flow interval")
	}
	return nil
}

// IssueSDGCs mints a storage-discharge certificate for each allocation:
// the cancelled certificate's attributes carry over, the quantity is the
// discharge flow energy, the range continues the storage device's
// certificate counter, and the hash chains from the cancelled bundle.
func (s *Service) IssueSDGCs(ctx context.Context, allocationIDs []int64) (minted []*certificate.Bundle, err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.cqrs.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		for _, id := range allocationIDs {
			allocation, err := s.db.GetAllocation(ctx, tx, id)
			if err != nil {
				return err
			}
			if allocation.SDGCAllocationID != nil {
				return regerr.State.New(
					"allocation %d already issued certificate %d", id, *allocation.SDGCAllocationID)
			}
			if allocation.GCAllocationID == nil {
				return regerr.State.New(
					"allocation %d has no cancelled certificate to issue against", id)
			}

			sdr, err := s.db.GetRecord(ctx, tx, allocation.SDRID)
			if err != nil {
				return err
			}
			parents, err := s.bundles.GetForUpdate(ctx, tx, []int64{*allocation.GCAllocationID})
			if err != nil {
				return err
			}
			if len(parents) == 0 {
				return regerr.NotFound.New(
					"allocated certificate bundle %d not found", *allocation.GCAllocationID)
			}
			parent := parents[0]

			maxCertificateID, err := s.bundles.MaxCertificateID(ctx, tx, allocation.DeviceID)
			if err != nil {
				return err
			}

			allocationID := allocation.ID
			efficiency := allocation.StorageEfficiencyFactor
			sdgc := parent.Clone()
			sdgc.ID = 0
			sdgc.Status = certificate.StatusActive
			sdgc.DeviceID = allocation.DeviceID
			sdgc.AccountID = sdr.AccountID
			sdgc.Quantity = sdr.FlowEnergyWh
			sdgc.RangeStart = maxCertificateID + 1
			sdgc.RangeEnd = maxCertificateID + sdr.FlowEnergyWh
			sdgc.ProductionStart = sdr.FlowStart
			sdgc.ProductionEnd = sdr.FlowEnd
			sdgc.IsStorage = true
			sdgc.SDRAllocationID = &allocationID
			sdgc.StorageEfficiencyFactor = &efficiency
			sdgc.IssuanceID = certificate.NewIssuanceID(allocation.DeviceID, sdr.FlowStart)
			sdgc.Hash = certificate.BundleHash(sdgc, parent.Hash)

			if err := s.bundles.Create(ctx, tx, sdgc); err != nil {
				return err
			}
			if err := s.db.SetAllocationSDGC(ctx, tx, allocation.ID, sdgc.ID); err != nil {
				return err
			}
			minted = append(minted, sdgc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("issued storage-discharge certificates", zap.Int("minted", len(minted)))
	return minted, nil
}
