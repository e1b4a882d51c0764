// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package certificate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testBundle() *Bundle {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Bundle{
		IssuanceID: NewIssuanceID(7, start),
		Status:     StatusActive,
		AccountID:  1,
		MetadataID: 1,

		RangeStart: 1,
		RangeEnd:   1000,
		Quantity:   1000,

		EnergyCarrier: CarrierElectricity,
		EnergySource:  SourceWind,
		FaceValue:     1,

		DeviceID:        7,
		ProductionStart: start,
		ProductionEnd:   start.Add(time.Hour),
		ExpiryDate:      start.AddDate(2, 0, 0),
	}
}

func TestBundleHashDeterministic(t *testing.T) {
	bundle := testBundle()
	require.Equal(t, BundleHash(bundle, ""), BundleHash(bundle, ""))
	require.NotEqual(t, BundleHash(bundle, ""), BundleHash(bundle, "parent"))

	other := testBundle()
	other.Quantity = 999
	require.NotEqual(t, BundleHash(bundle, ""), BundleHash(other, ""))
}

func TestBundleHashIgnoresLifecycleFields(t *testing.T) {
	bundle := testBundle()
	reference := BundleHash(bundle, "")

	// Status, account, range and deletion change hands over the bundle's
	// life without breaking the lineage chain.
	bundle.ID = 42
	bundle.Status = StatusCancelled
	bundle.AccountID = 9
	bundle.RangeStart = 500
	bundle.RangeEnd = 1499
	bundle.IsDeleted = true
	bundle.CreatedAt = time.Now()
	require.Equal(t, reference, BundleHash(bundle, ""))
}

func TestBundleHashNormalizesTimezones(t *testing.T) {
	bundle := testBundle()
	shifted := testBundle()
	zone := time.FixedZone("UTC+2", 2*60*60)
	shifted.ProductionStart = shifted.ProductionStart.In(zone)
	shifted.ProductionEnd = shifted.ProductionEnd.In(zone)
	require.Equal(t, BundleHash(bundle, ""), BundleHash(shifted, ""))
}

func TestVerifyLineage(t *testing.T) {
	parent := testBundle()
	parent.Hash = BundleHash(parent, "")

	child1, child2, err := SplitBundle(parent, 400)
	require.NoError(t, err)

	require.True(t, VerifyLineage(parent, child1))
	require.True(t, VerifyLineage(parent, child2))

	// A stranger with the same content but a different parent fails.
	stranger := testBundle()
	stranger.Hash = BundleHash(stranger, "unrelated")
	require.False(t, VerifyLineage(parent, stranger))

	// Tampering with canonical content after hashing is detectable.
	child1.Quantity++
	require.False(t, VerifyLineage(parent, child1))
}
