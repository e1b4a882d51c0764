// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package certificate

import (
	"time"

	"github.com/energytag/gcregistry/registry/regerr"
)

// maxQueryWindow caps the production time range of a single query.
const maxQueryWindow = 30 * 24 * time.Hour

// Query filters bundle retrieval. All filters are AND-combined and
// soft-deleted bundles are always excluded. Issuance ids are mutually
// exclusive with the time-range filters.
type Query struct {
	SourceID int64

	IssuanceIDs []string

	PeriodStart *time.Time
	PeriodEnd   *time.Time

	DeviceID     *int64
	EnergySource *EnergySource
	Status       *Status

	Limit int
}

// Validate checks the query constraints against the current time:
// issuance ids xor period filters, both period endpoints together when the
// window is bounded, a window of at most 30 days, and an end requirement
// when the start is more than 30 days old.
func (q *Query) Validate(now time.Time) error {
	if q.SourceID == 0 {
		return regerr.Validation.New("source_id is required")
	}

	if len(q.IssuanceIDs) > 0 {
		if q.PeriodStart != nil || q.PeriodEnd != nil {
			return regerr.Validation.New(
				"cannot provide issuance_ids with certificate_period_start or certificate_period_end")
		}
		for _, id := range q.IssuanceIDs {
			if _, _, err := ParseIssuanceID(id); err != nil {
				return err
			}
		}
		return nil
	}

	if q.PeriodStart != nil && q.PeriodEnd == nil {
		if q.PeriodStart.Before(now.Add(-maxQueryWindow)) {
			return regerr.Validation.New(
				"certificate_period_end must be provided if certificate_period_start is more than 30 days ago")
		}
	}
	if q.PeriodEnd != nil && q.PeriodStart == nil {
		return regerr.Validation.New(
			"certificate_period_start must be provided if certificate_period_end is provided")
	}
	if q.PeriodStart != nil && q.PeriodEnd != nil {
		if q.PeriodEnd.Sub(*q.PeriodStart) > maxQueryWindow {
			return regerr.Validation.New(
				"difference between certificate_period_start and certificate_period_end must be 30 days or less")
		}
		if !q.PeriodStart.Before(*q.PeriodEnd) {
			return regerr.Validation.New(
				"certificate_period_end must be greater than certificate_period_start")
		}
	}
	return nil
}
