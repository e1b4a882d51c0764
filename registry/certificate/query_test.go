// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package certificate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/energytag/gcregistry/registry/regerr"
)

func TestQueryValidate(t *testing.T) {
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	at := func(t time.Time) *time.Time { return &t }

	t.Run("requires source", func(t *testing.T) {
		q := &Query{}
		require.True(t, regerr.Validation.Has(q.Validate(now)))
	})

	t.Run("bare source is fine", func(t *testing.T) {
		q := &Query{SourceID: 1}
		require.NoError(t, q.Validate(now))
	})

	t.Run("issuance ids exclude period filters", func(t *testing.T) {
		q := &Query{
			SourceID:    1,
			IssuanceIDs: []string{NewIssuanceID(7, now)},
			PeriodStart: at(now.Add(-time.Hour)),
		}
		require.True(t, regerr.Validation.Has(q.Validate(now)))

		q.PeriodStart = nil
		require.NoError(t, q.Validate(now))
	})

	t.Run("issuance ids must parse", func(t *testing.T) {
		q := &Query{SourceID: 1, IssuanceIDs: []string{"garbage"}}
		require.True(t, regerr.Validation.Has(q.Validate(now)))
	})

	t.Run("end without start", func(t *testing.T) {
		q := &Query{SourceID: 1, PeriodEnd: at(now)}
		require.True(t, regerr.Validation.Has(q.Validate(now)))
	})

	t.Run("open-ended start within 30 days", func(t *testing.T) {
		q := &Query{SourceID: 1, PeriodStart: at(now.AddDate(0, 0, -29))}
		require.NoError(t, q.Validate(now))
	})

	t.Run("open-ended start older than 30 days", func(t *testing.T) {
		q := &Query{SourceID: 1, PeriodStart: at(now.AddDate(0, 0, -31))}
		require.True(t, regerr.Validation.Has(q.Validate(now)))
	})

	t.Run("window at exactly 30 days", func(t *testing.T) {
		start := now.AddDate(0, 0, -60)
		q := &Query{
			SourceID:    1,
			PeriodStart: at(start),
			PeriodEnd:   at(start.Add(30 * 24 * time.Hour)),
		}
		require.NoError(t, q.Validate(now))
	})

	t.Run("window over 30 days", func(t *testing.T) {
		start := now.AddDate(0, 0, -60)
		q := &Query{
			SourceID:    1,
			PeriodStart: at(start),
			PeriodEnd:   at(start.Add(30*24*time.Hour + time.Second)),
		}
		require.True(t, regerr.Validation.Has(q.Validate(now)))
	})

	t.Run("inverted window", func(t *testing.T) {
		q := &Query{
			SourceID:    1,
			PeriodStart: at(now),
			PeriodEnd:   at(now.Add(-time.Hour)),
		}
		require.True(t, regerr.Validation.Has(q.Validate(now)))
	})
}
