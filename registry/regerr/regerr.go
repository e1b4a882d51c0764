// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package regerr defines the registry-wide error kinds that surface at the
// request boundary.
package regerr

import "github.com/zeebo/errs"

// Error kinds, one class per failure family.
var (
	// Validation is bad input: schema violations, out-of-range selectors,
	// mutually exclusive fields both set.
	Validation = errs.Class("validation")
	// Unauthorized is a missing or invalid credential, a role below
	// threshold, or a user not linked to the account.
	Unauthorized = errs.Class("unauthorized")
	// NotFound is an unknown entity, issuance id or device identifier.
	NotFound = errs.Class("not found")
	// State is an action precondition failure.
	State = errs.Class("state")
	// Integrity is a range overlap, hash mismatch, or quantity disagreeing
	// with its range.
	Integrity = errs.Class("integrity")
	// Upstream is a meter-client timeout or failure.
	Upstream = errs.Class("upstream")
	// Internal is a coordinator rollback or other unexpected failure.
	Internal = errs.Class("internal")
)

// Kind returns the stable kind code for an error.
func Kind(err error) string {
	switch {
	case Validation.Has(err):
		return "validation"
	case Unauthorized.Has(err):
		return "unauthorized"
	case NotFound.Has(err):
		return "not_found"
	case State.Has(err):
		return "state"
	case Integrity.Has(err):
		return "integrity"
	case Upstream.Has(err):
		return "upstream"
	default:
		return "internal"
	}
}
