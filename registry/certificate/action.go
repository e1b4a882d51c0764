// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package certificate

import (
	"time"

	"github.com/energytag/gcregistry/registry/regerr"
)

// ActionType is a lifecycle operation on bundles.
type ActionType string

// Supported action types. The recurring variants record intent only; no
// scheduler acts on them.
const (
	ActionTransfer          ActionType = "transfer"
	ActionRecurringTransfer ActionType = "recurring_transfer"
	ActionCancel            ActionType = "cancel"
	ActionRecurringCancel   ActionType = "recurring_cancel"
	ActionClaim             ActionType = "claim"
	ActionRecurringClaim    ActionType = "recurring_claim"
	ActionWithdraw          ActionType = "withdraw"
	ActionLock              ActionType = "lock"
	ActionReserve           ActionType = "reserve"
)

// ActionEntityName is the name actions are recorded under in the event
// stream.
const ActionEntityName = "GranularCertificateAction"

// Action is the audit record of a requested bundle operation, written
// whether or not the operation succeeded.
type Action struct {
	ID          int64      `json:"id"`
	Type        ActionType `json:"action_type"`
	SourceID    int64      `json:"source_id"`
	TargetID    *int64     `json:"target_id,omitempty"`
	UserID      int64      `json:"user_id"`
	BundleIDs   []int64    `json:"bundle_ids"`
	Quantity    *int64     `json:"certificate_quantity,omitempty"`
	Percentage  *float64   `json:"certificate_bundle_percentage,omitempty"`
	Beneficiary string     `json:"beneficiary,omitempty"`
	RequestedAt time.Time  `json:"action_request_datetime"`
	CompletedAt time.Time  `json:"action_completed_datetime"`
	Succeeded   bool       `json:"action_completed"`
	IsDeleted   bool       `json:"is_deleted"`
}

// ActionRequest describes a requested operation before processing.
type ActionRequest struct {
	Type        ActionType `json:"-"`
	SourceID    int64      `json:"source_id"`
	TargetID    int64      `json:"target_id,omitempty"`
	UserID      int64      `json:"user_id"`
	BundleIDs   []int64    `json:"bundle_ids"`
	Quantity    *int64     `json:"certificate_quantity,omitempty"`
	Percentage  *float64   `json:"certificate_bundle_percentage,omitempty"`
	Beneficiary string     `json:"beneficiary,omitempty"`
}

// Validate checks structural validity of the request: known action type,
// bundle ids present, and at most one partial selector with the percentage
// inside (0, 1].
func (r *ActionRequest) Validate() error {
	switch r.Type {
	case ActionTransfer, ActionCancel, ActionClaim, ActionWithdraw, ActionLock, ActionReserve:
	default:
		return regerr.Validation.New("unsupported action type %q", r.Type)
	}
	if len(r.BundleIDs) == 0 {
		return regerr.Validation.New("no bundle ids provided")
	}
	if r.Quantity != nil && r.Percentage != nil {
		return regerr.Validation.New(
			"can only pass one of certificate_quantity or certificate_bundle_percentage")
	}
	if r.Quantity != nil && *r.Quantity <= 0 {
		return regerr.Validation.New("certificate_quantity must be positive")
	}
	if r.Percentage != nil && (*r.Percentage <= 0 || *r.Percentage > 1) {
		return regerr.Validation.New("certificate_bundle_percentage must be in (0, 1]")
	}
	if r.Type == ActionTransfer && r.TargetID == 0 {
		return regerr.Validation.New("transfer requires a target account")
	}
	return nil
}

// selectorFor returns the number of certificates to act on for a bundle,
// or the full quantity when no partial selector is set.
func (r *ActionRequest) selectorFor(b *Bundle) int64 {
	switch {
	case r.Quantity != nil:
		return *r.Quantity
	case r.Percentage != nil:
		return int64(*r.Percentage * float64(b.Quantity))
	default:
		return b.Quantity
	}
}
