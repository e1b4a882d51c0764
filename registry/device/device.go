// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package device models production, consumption and storage units.
package device

import (
	"context"
	"time"

	"github.com/zeebo/errs"

	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/regerr"
)

// Error is the default device error class.
var Error = errs.Class("device")

// EntityName is the name devices are recorded under in the event stream.
const EntityName = "Device"

// TechnologyType classifies the device hardware.
type TechnologyType string

// Known technology types.
const (
	TechnologySolarPV        TechnologyType = "solar_pv"
	TechnologyWindTurbine    TechnologyType = "wind_turbine"
	TechnologyHydro          TechnologyType = "hydro"
	TechnologyBatteryStorage TechnologyType = "battery_storage"
	TechnologyOtherStorage   TechnologyType = "other_storage"
	TechnologyCHP            TechnologyType = "chp"
	TechnologyOther          TechnologyType = "other"
)

// Device is a production, consumption or storage unit bound to exactly one
// account.
type Device struct {
	ID        int64
	AccountID int64

	Name                  string
	LocalDeviceIdentifier string

	EnergySource   string
	TechnologyType TechnologyType

	PowerMW         float64
	EnergyMWh       *float64
	OperationalDate time.Time
	IsStorage       bool

	IsDeleted bool
	CreatedAt time.Time
}

// Validate checks structural device invariants.
func (d *Device) Validate() error {
	if d.AccountID == 0 {
		return regerr.Validation.New("device must belong to an account")
	}
	if d.LocalDeviceIdentifier == "" {
		return regerr.Validation.New("device requires a local device identifier")
	}
	if d.PowerMW <= 0 {
		return regerr.Validation.New("device capacity must be positive")
	}
	if d.IsStorage && d.EnergyMWh == nil {
		return regerr.Validation.New("storage devices require an energy capacity")
	}
	return nil
}

// DB exposes methods to manage devices.
//
// architecture: Database
type DB interface {
	// Create inserts devices and records CREATE events.
	Create(ctx context.Context, tx *cqrs.Tx, devices ...*Device) error
	// Get loads a device by id from the read store.
	Get(ctx context.Context, id int64) (*Device, error)
	// GetByLocalIdentifier loads a device by its unique local identifier.
	GetByLocalIdentifier(ctx context.Context, identifier string) (*Device, error)
	// GetByName loads a device by name.
	GetByName(ctx context.Context, name string) (*Device, error)
	// List returns all non-deleted devices.
	List(ctx context.Context) ([]*Device, error)
	// Capacity returns the power capacity in MW for a device.
	Capacity(ctx context.Context, id int64) (float64, error)
}
