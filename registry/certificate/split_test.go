// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package certificate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/energytag/gcregistry/registry/regerr"
)

func TestSplitBundle(t *testing.T) {
	parent := testBundle()
	parent.Hash = BundleHash(parent, "")

	child1, child2, err := SplitBundle(parent, 400)
	require.NoError(t, err)

	require.Equal(t, int64(400), child1.Quantity)
	require.Equal(t, parent.RangeStart, child1.RangeStart)
	require.Equal(t, parent.RangeStart+399, child1.RangeEnd)

	require.Equal(t, int64(600), child2.Quantity)
	require.Equal(t, parent.RangeStart+400, child2.RangeStart)
	require.Equal(t, parent.RangeEnd, child2.RangeEnd)

	// The children cover the parent's range exactly, without overlap.
	require.Equal(t, child1.RangeEnd+1, child2.RangeStart)
	require.Equal(t, parent.Quantity, child1.Quantity+child2.Quantity)

	// Both inherit the issuance id and chain their hashes from the parent.
	require.Equal(t, parent.IssuanceID, child1.IssuanceID)
	require.Equal(t, parent.IssuanceID, child2.IssuanceID)
	require.True(t, VerifyLineage(parent, child1))
	require.True(t, VerifyLineage(parent, child2))
	require.NotEqual(t, child1.Hash, child2.Hash)

	// Fresh rows with a clean lifecycle state.
	require.Zero(t, child1.ID)
	require.Zero(t, child2.ID)
	require.Equal(t, StatusActive, child1.Status)
	require.Equal(t, StatusActive, child2.Status)
}

func TestSplitBundlePreservesStorageAttributes(t *testing.T) {
	allocation := int64(3)
	efficiency := 0.9
	parent := testBundle()
	parent.IsStorage = true
	parent.SDRAllocationID = &allocation
	parent.StorageEfficiencyFactor = &efficiency
	parent.Hash = BundleHash(parent, "")

	child1, _, err := SplitBundle(parent, 100)
	require.NoError(t, err)
	require.NotNil(t, child1.SDRAllocationID)
	require.Equal(t, allocation, *child1.SDRAllocationID)

	// The clone must not alias the parent's pointers.
	*child1.SDRAllocationID = 99
	require.Equal(t, int64(3), *parent.SDRAllocationID)
}

func TestSplitBundleRejectsBadSizes(t *testing.T) {
	parent := testBundle()
	parent.Hash = BundleHash(parent, "")

	for _, size := range []int64{-1, 0, parent.Quantity, parent.Quantity + 1} {
		_, _, err := SplitBundle(parent, size)
		require.Error(t, err)
		require.True(t, regerr.Validation.Has(err))
	}
}
