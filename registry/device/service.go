// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package device

import (
	"context"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/regerr"
)

var mon = monkit.Package()

// Service implements device registration and lookup.
type Service struct {
	log  *zap.Logger
	db   DB
	cqrs *cqrs.Coordinator
}

// NewService creates a device service.
func NewService(log *zap.Logger, db DB, coordinator *cqrs.Coordinator) *Service {
	return &Service{log: log, db: db, cqrs: coordinator}
}

// Register validates and creates a device. Local device identifiers are
// unique across the registry.
func (s *Service) Register(ctx context.Context, dev *Device) (err error) {
	defer mon.Task()(&ctx)(&err)

	if err := dev.Validate(); err != nil {
		return err
	}
	if existing, err := s.db.GetByLocalIdentifier(ctx, dev.LocalDeviceIdentifier); err == nil && existing != nil {
		return regerr.Validation.New(
			"local device identifier %q is already registered", dev.LocalDeviceIdentifier)
	}

	return s.cqrs.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		return s.db.Create(ctx, tx, dev)
	})
}

// Get loads a device by id.
func (s *Service) Get(ctx context.Context, id int64) (dev *Device, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.db.Get(ctx, id)
}

// List returns all registered devices.
func (s *Service) List(ctx context.Context) (devices []*Device, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.db.List(ctx)
}
