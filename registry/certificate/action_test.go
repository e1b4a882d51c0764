// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package certificate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/energytag/gcregistry/registry/regerr"
)

func TestActionRequestValidate(t *testing.T) {
	base := func() *ActionRequest {
		return &ActionRequest{
			Type:      ActionCancel,
			SourceID:  1,
			UserID:    1,
			BundleIDs: []int64{1, 2},
		}
	}
	quantity := func(n int64) *int64 { return &n }
	percentage := func(p float64) *float64 { return &p }

	require.NoError(t, base().Validate())

	t.Run("unknown action type", func(t *testing.T) {
		req := base()
		req.Type = ActionType("destroy")
		require.True(t, regerr.Validation.Has(req.Validate()))
	})

	t.Run("recurring variants are recorded, not processed", func(t *testing.T) {
		req := base()
		req.Type = ActionRecurringCancel
		require.True(t, regerr.Validation.Has(req.Validate()))
	})

	t.Run("requires bundles", func(t *testing.T) {
		req := base()
		req.BundleIDs = nil
		require.True(t, regerr.Validation.Has(req.Validate()))
	})

	t.Run("selectors are mutually exclusive", func(t *testing.T) {
		req := base()
		req.Quantity = quantity(10)
		req.Percentage = percentage(0.5)
		require.True(t, regerr.Validation.Has(req.Validate()))
	})

	t.Run("quantity must be positive", func(t *testing.T) {
		req := base()
		req.Quantity = quantity(0)
		require.True(t, regerr.Validation.Has(req.Validate()))
	})

	t.Run("percentage bounds", func(t *testing.T) {
		for _, p := range []float64{0, -0.1, 1.01} {
			req := base()
			req.Percentage = percentage(p)
			require.True(t, regerr.Validation.Has(req.Validate()), p)
		}
		req := base()
		req.Percentage = percentage(1)
		require.NoError(t, req.Validate())
	})

	t.Run("transfer requires a target", func(t *testing.T) {
		req := base()
		req.Type = ActionTransfer
		require.True(t, regerr.Validation.Has(req.Validate()))
		req.TargetID = 2
		require.NoError(t, req.Validate())
	})
}

func TestActionRequestSelector(t *testing.T) {
	bundle := testBundle() // quantity 1000
	quantity := int64(250)
	percentage := 0.4

	full := &ActionRequest{}
	require.Equal(t, int64(1000), full.selectorFor(bundle))

	byQuantity := &ActionRequest{Quantity: &quantity}
	require.Equal(t, int64(250), byQuantity.selectorFor(bundle))

	byPercentage := &ActionRequest{Percentage: &percentage}
	require.Equal(t, int64(400), byPercentage.selectorFor(bundle))
}
