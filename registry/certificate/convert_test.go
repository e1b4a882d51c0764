// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package certificate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/energytag/gcregistry/registry/regerr"
)

func annualCertificate() AnnualCertificate {
	return AnnualCertificate{
		RegistryID:   "legacy-0001",
		Year:         2023,
		TotalMWh:     87.6,
		DeviceID:     7,
		AccountID:    1,
		MetadataID:   1,
		EnergySource: SourceHydro,
	}
}

func TestConvertAnnualUniform(t *testing.T) {
	cert := annualCertificate()
	bundles, err := ConvertAnnual(cert, nil, 1)
	require.NoError(t, err)
	require.Len(t, bundles, hoursInYear)

	yearStart := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	issuanceID := NewIssuanceID(cert.DeviceID, yearStart)
	next := int64(1)
	var total int64
	for i, bundle := range bundles {
		// 87.6 MWh spread uniformly is 10,000 Wh per hour, give or take a
		// certificate of floating point flooring.
		require.InDelta(t, 10000, bundle.Quantity, 1)
		require.Equal(t, issuanceID, bundle.IssuanceID)
		require.Equal(t, next, bundle.RangeStart)
		require.Equal(t, bundle.RangeStart+bundle.Quantity-1, bundle.RangeEnd)
		require.True(t, bundle.IssuancePostConversion)
		require.Equal(t, StatusActive, bundle.Status)
		require.Equal(t, int64(1), bundle.FaceValue)
		require.NotEmpty(t, bundle.Hash)

		start := yearStart.Add(time.Duration(i) * time.Hour)
		require.True(t, start.Equal(bundle.ProductionStart))
		require.True(t, start.Add(time.Hour).Equal(bundle.ProductionEnd))

		next = bundle.RangeEnd + 1
		total += bundle.Quantity
	}
	require.LessOrEqual(t, total, int64(87_600_000))
	require.Greater(t, total, int64(87_600_000-10_000))
}

func TestConvertAnnualRoundingTolerance(t *testing.T) {
	cert := annualCertificate()
	cert.TotalMWh = 100 // 100e6 / 8760 is not integral

	bundles, err := ConvertAnnual(cert, nil, 1)
	require.NoError(t, err)

	var total int64
	for _, bundle := range bundles {
		total += bundle.Quantity
	}
	// Per-hour flooring loses at most one certificate per hour, which is
	// well inside a 0.01 MWh tolerance on the annual total.
	require.LessOrEqual(t, total, int64(100_000_000))
	require.Greater(t, total, int64(100_000_000-10_000))
}

func TestConvertAnnualSkipsEmptyHours(t *testing.T) {
	distribution := make([]float64, hoursInYear)
	distribution[0] = 0.25
	distribution[12] = 0.75

	cert := annualCertificate()
	cert.TotalMWh = 1

	bundles, err := ConvertAnnual(cert, distribution, 100)
	require.NoError(t, err)
	require.Len(t, bundles, 2)

	require.Equal(t, int64(250_000), bundles[0].Quantity)
	require.Equal(t, int64(100), bundles[0].RangeStart)
	require.Equal(t, int64(750_000), bundles[1].Quantity)
	require.Equal(t, bundles[0].RangeEnd+1, bundles[1].RangeStart)

	noon := time.Date(2023, time.January, 1, 12, 0, 0, 0, time.UTC)
	require.True(t, noon.Equal(bundles[1].ProductionStart))
}

func TestConvertAnnualRejectsBadInput(t *testing.T) {
	cert := annualCertificate()

	cert.TotalMWh = 0
	_, err := ConvertAnnual(cert, nil, 1)
	require.True(t, regerr.Validation.Has(err))

	cert.TotalMWh = 10
	_, err = ConvertAnnual(cert, make([]float64, 24), 1)
	require.True(t, regerr.Validation.Has(err))

	negative := make([]float64, hoursInYear)
	negative[0] = -0.5
	negative[1] = 1.5
	_, err = ConvertAnnual(cert, negative, 1)
	require.True(t, regerr.Validation.Has(err))

	short := make([]float64, hoursInYear)
	short[0] = 0.5
	_, err = ConvertAnnual(cert, short, 1)
	require.True(t, regerr.Validation.Has(err))
}
