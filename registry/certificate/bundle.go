// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package certificate implements granular certificate bundles: issuance,
// lineage, lifecycle actions and queries.
package certificate

import (
	"time"
)

// Status is the lifecycle state of a bundle.
type Status string

// Bundle lifecycle states. Withdrawn and BundleSplit are terminal and kept
// for audit.
const (
	StatusActive      Status = "Active"
	StatusCancelled   Status = "Cancelled"
	StatusClaimed     Status = "Claimed"
	StatusExpired     Status = "Expired"
	StatusWithdrawn   Status = "Withdrawn"
	StatusLocked      Status = "Locked"
	StatusReserved    Status = "Reserved"
	StatusBundleSplit Status = "Bundle Split"
)

// EnergySource is the fuel type of the producing device.
type EnergySource string

// Known energy sources.
const (
	SourceSolarPV        EnergySource = "solar_pv"
	SourceWind           EnergySource = "wind"
	SourceHydro          EnergySource = "hydro"
	SourceBiomass        EnergySource = "biomass"
	SourceNuclear        EnergySource = "nuclear"
	SourceElectrolysis   EnergySource = "electrolysis"
	SourceGeothermal     EnergySource = "geothermal"
	SourceBatteryStorage EnergySource = "battery_storage"
	SourceCHP            EnergySource = "chp"
	SourceOther          EnergySource = "other"
)

// EnergyCarrier is the form of energy a bundle represents.
type EnergyCarrier string

// Known energy carriers.
const (
	CarrierElectricity EnergyCarrier = "electricity"
	CarrierNaturalGas  EnergyCarrier = "natural_gas"
	CarrierHydrogen    EnergyCarrier = "hydrogen"
	CarrierHeat        EnergyCarrier = "heat"
	CarrierOther       EnergyCarrier = "other"
)

// Bundle is a contiguous integer range of unit certificates for one device
// and one production interval. Each unit certificate represents FaceValue
// watt-hours.
type Bundle struct {
	ID         int64  `json:"id"`
	IssuanceID string `json:"issuance_id"`
	Hash       string `json:"hash"`

	Status     Status `json:"certificate_bundle_status"`
	AccountID  int64  `json:"account_id"`
	MetadataID int64  `json:"metadata_id"`

	RangeStart int64 `json:"certificate_bundle_id_range_start"`
	RangeEnd   int64 `json:"certificate_bundle_id_range_end"`
	Quantity   int64 `json:"bundle_quantity"`

	Beneficiary string `json:"beneficiary,omitempty"`

	EnergyCarrier EnergyCarrier `json:"energy_carrier"`
	EnergySource  EnergySource  `json:"energy_source"`
	FaceValue     int64         `json:"face_value"`

	IssuancePostConversion bool `json:"issuance_post_energy_carrier_conversion"`

	EmissionsFactor       float64 `json:"emissions_factor_production_device"`
	EmissionsFactorSource string  `json:"emissions_factor_source,omitempty"`

	DeviceID        int64     `json:"device_id"`
	ProductionStart time.Time `json:"production_starting_interval"`
	ProductionEnd   time.Time `json:"production_ending_interval"`
	ExpiryDate      time.Time `json:"expiry_datestamp"`

	IsStorage               bool     `json:"is_storage"`
	SDRAllocationID         *int64   `json:"sdr_allocation_id,omitempty"`
	StorageEfficiencyFactor *float64 `json:"storage_efficiency_factor,omitempty"`

	IsDeleted bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
}

// EntityName is the name bundles are recorded under in the event stream.
const EntityName = "GranularCertificateBundle"

// Clone returns a deep copy of the bundle.
func (b *Bundle) Clone() *Bundle {
	clone := *b
	if b.SDRAllocationID != nil {
		v := *b.SDRAllocationID
		clone.SDRAllocationID = &v
	}
	if b.StorageEfficiencyFactor != nil {
		v := *b.StorageEfficiencyFactor
		clone.StorageEfficiencyFactor = &v
	}
	return &clone
}

// BundleUpdate is a sparse delta applied to a bundle. Nil fields are left
// unchanged.
type BundleUpdate struct {
	Status                  *Status
	AccountID               *int64
	Beneficiary             *string
	SDRAllocationID         *int64
	StorageEfficiencyFactor *float64
	IsDeleted               *bool
}

// Attributes returns the delta as an event attribute map.
func (u BundleUpdate) Attributes() map[string]interface{} {
	attrs := map[string]interface{}{}
	if u.Status != nil {
		attrs["certificate_bundle_status"] = string(*u.Status)
	}
	if u.AccountID != nil {
		attrs["account_id"] = *u.AccountID
	}
	if u.Beneficiary != nil {
		attrs["beneficiary"] = *u.Beneficiary
	}
	if u.SDRAllocationID != nil {
		attrs["sdr_allocation_id"] = *u.SDRAllocationID
	}
	if u.StorageEfficiencyFactor != nil {
		attrs["storage_efficiency_factor"] = *u.StorageEfficiencyFactor
	}
	if u.IsDeleted != nil {
		attrs["is_deleted"] = *u.IsDeleted
	}
	return attrs
}

// Metadata carries the jurisdiction and issuing-body attributes attached to
// one or more bundles.
type Metadata struct {
	ID                          int64
	CountryOfIssuance           string
	ConnectedGridIdentification string
	IssuingBody                 string
	LegalStatus                 string
	IssuancePurpose             string
	SupportReceived             string
	QualitySchemeReference      string
	DisseminationLevel          string
	IssueMarketZone             string
	CreatedAt                   time.Time
}

// Key returns a deduplication key over all metadata attributes.
func (m *Metadata) Key() string {
	return m.CountryOfIssuance + "|" + m.ConnectedGridIdentification + "|" +
		m.IssuingBody + "|" + m.LegalStatus + "|" + m.IssuancePurpose + "|" +
		m.SupportReceived + "|" + m.QualitySchemeReference + "|" +
		m.DisseminationLevel + "|" + m.IssueMarketZone
}

// Config holds issuance tunables.
type Config struct {
	GranularityHours float64 `help:"production interval length in hours used for capacity checks" default:"1.0"`
	CapacityMargin   float64 `help:"headroom multiplier for per-interval energy" default:"1.1"`
	ExpiryYears      int     `help:"bundle lifetime in years at mint" default:"2"`
}
