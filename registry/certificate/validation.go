// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package certificate

import (
	"github.com/energytag/gcregistry/registry/regerr"
)

const wattsInMegawatt = 1e6

// MaxWattHours returns the maximum watt-hours a device of the given
// capacity can produce over the given number of hours.
func MaxWattHours(powerMW float64, hours float64) float64 {
	return powerMW * wattsInMegawatt * hours
}

// ValidateBundle checks an issuance candidate against the device capacity
// and the device's monotonic certificate counter:
//
//   - quantity strictly below capacity x granularity x margin,
//   - quantity equal to the id range width,
//   - range start exactly one past the device's max certificate id
//     (withdrawn bundles excluded from the max).
func ValidateBundle(b *Bundle, devicePowerMW float64, maxCertificateID int64, hours, capacityMargin float64) error {
	limit := MaxWattHours(devicePowerMW, hours) * capacityMargin
	if float64(b.Quantity) >= limit {
		return regerr.Validation.New(
			"bundle quantity %d exceeds device capacity limit %.0f Wh", b.Quantity, limit)
	}
	if b.Quantity != b.RangeEnd-b.RangeStart+1 {
		return regerr.Integrity.New(
			"bundle quantity %d does not match range [%d, %d]", b.Quantity, b.RangeStart, b.RangeEnd)
	}
	if b.RangeStart != maxCertificateID+1 {
		return regerr.Integrity.New(
			"bundle range start %d is not contiguous with max certificate id %d", b.RangeStart, maxCertificateID)
	}
	return nil
}

// Range is a certificate id interval.
type Range struct {
	Start int64
	End   int64
}

// Overlaps reports whether the two ranges share any id.
func (r Range) Overlaps(other Range) bool {
	return r.Start <= other.End && other.Start <= r.End
}

// ValidateImportedBundle checks a bundle imported from an external
// registry. Range continuity cannot be assumed across registries, so only
// capacity, range consistency and non-overlap with existing ranges for the
// import device are required.
func ValidateImportedBundle(b *Bundle, existing []Range, devicePowerMW float64, hours, capacityMargin float64) error {
	limit := MaxWattHours(devicePowerMW, hours) * capacityMargin
	if float64(b.Quantity) >= limit {
		return regerr.Validation.New(
			"imported bundle quantity %d exceeds device capacity limit %.0f Wh", b.Quantity, limit)
	}
	if b.RangeStart < 0 || b.RangeEnd < 0 || b.RangeStart > b.RangeEnd {
		return regerr.Validation.New(
			"imported bundle range [%d, %d] is malformed", b.RangeStart, b.RangeEnd)
	}
	if b.Quantity != b.RangeEnd-b.RangeStart+1 {
		return regerr.Integrity.New(
			"imported bundle quantity %d does not match range [%d, %d]", b.Quantity, b.RangeStart, b.RangeEnd)
	}

	candidate := Range{Start: b.RangeStart, End: b.RangeEnd}
	for _, r := range existing {
		if candidate.Overlaps(r) {
			return regerr.Integrity.New(
				"imported bundle range [%d, %d] for issuance id %s overlaps existing range [%d, %d]",
				b.RangeStart, b.RangeEnd, b.IssuanceID, r.Start, r.End)
		}
	}
	return nil
}
