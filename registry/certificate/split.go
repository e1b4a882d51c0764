// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package certificate

import (
	"github.com/energytag/gcregistry/registry/regerr"
)

// SplitBundle splits a parent bundle into two fresh child bundles of size
// and quantity-size certificates. The children inherit the parent's
// issuance id, carry hashes seeded from the parent's hash, and start
// ACTIVE. The caller is responsible for marking the parent BundleSplit and
// soft-deleting it in the same coordinator call.
func SplitBundle(parent *Bundle, size int64) (child1, child2 *Bundle, err error) {
	if size <= 0 {
		return nil, nil, regerr.Validation.New("the size to split must be greater than 0")
	}
	if size >= parent.Quantity {
		return nil, nil, regerr.Validation.New(
			"the size to split must be less than the total certificates in the parent bundle")
	}

	child1 = parent.Clone()
	child1.ID = 0
	child1.Status = StatusActive
	child1.Quantity = size
	child1.RangeStart = parent.RangeStart
	child1.RangeEnd = parent.RangeStart + size - 1
	child1.Hash = BundleHash(child1, parent.Hash)

	child2 = parent.Clone()
	child2.ID = 0
	child2.Status = StatusActive
	child2.Quantity = parent.Quantity - size
	child2.RangeStart = parent.RangeStart + size
	child2.RangeEnd = parent.RangeEnd
	child2.Hash = BundleHash(child2, parent.Hash)

	return child1, child2, nil
}
