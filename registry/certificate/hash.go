// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package certificate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// canonicalBundle is the stable serialization of a bundle's non-mutable
// fields. Lifecycle fields (status, account, range, storage allocation,
// deletion) and server-assigned fields (id, created_at, hash) are excluded
// so that lineage stays verifiable across transfers and splits.
type canonicalBundle struct {
	IssuanceID             string `json:"issuance_id"`
	MetadataID             int64  `json:"metadata_id"`
	Quantity               int64  `json:"bundle_quantity"`
	Beneficiary            string `json:"beneficiary"`
	EnergyCarrier          string `json:"energy_carrier"`
	EnergySource           string `json:"energy_source"`
	FaceValue              int64  `json:"face_value"`
	IssuancePostConversion bool   `json:"issuance_post_energy_carrier_conversion"`
	EmissionsFactor        float64 `json:"emissions_factor_production_device"`
	EmissionsFactorSource  string `json:"emissions_factor_source"`
	DeviceID               int64  `json:"device_id"`
	ProductionStart        string `json:"production_starting_interval"`
	ProductionEnd          string `json:"production_ending_interval"`
	ExpiryDate             string `json:"expiry_datestamp"`
	IsStorage              bool   `json:"is_storage"`
}

// CanonicalJSON returns the canonical serialization hashed into the bundle
// lineage.
func CanonicalJSON(b *Bundle) []byte {
	data, err := json.Marshal(canonicalBundle{
		IssuanceID:             b.IssuanceID,
		MetadataID:             b.MetadataID,
		Quantity:               b.Quantity,
		Beneficiary:            b.Beneficiary,
		EnergyCarrier:          string(b.EnergyCarrier),
		EnergySource:           string(b.EnergySource),
		FaceValue:              b.FaceValue,
		IssuancePostConversion: b.IssuancePostConversion,
		EmissionsFactor:        b.EmissionsFactor,
		EmissionsFactorSource:  b.EmissionsFactorSource,
		DeviceID:               b.DeviceID,
		ProductionStart:        b.ProductionStart.UTC().Format(time.RFC3339),
		ProductionEnd:          b.ProductionEnd.UTC().Format(time.RFC3339),
		ExpiryDate:             b.ExpiryDate.UTC().Format("2006-01-02"),
		IsStorage:              b.IsStorage,
	})
	if err != nil {
		// canonicalBundle contains only marshalable fields
		panic(err)
	}
	return data
}

// BundleHash computes the lineage hash of a bundle: the SHA-256 of its
// canonical JSON concatenated with the parent hash. Original issuances use
// an empty parent hash.
func BundleHash(b *Bundle, parentHash string) string {
	sum := sha256.Sum256(append(CanonicalJSON(b), []byte(parentHash)...))
	return hex.EncodeToString(sum[:])
}

// VerifyLineage reports whether the child's hash can be recreated from its
// canonical content and the parent's hash.
func VerifyLineage(parent, child *Bundle) bool {
	return BundleHash(child, parent.Hash) == child.Hash
}
