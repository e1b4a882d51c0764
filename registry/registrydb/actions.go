// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package registrydb

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/errs"

	"github.com/energytag/gcregistry/registry/certificate"
	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/events"
)

type actions struct {
	db *registryDB
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Create implements certificate.Actions.
func (a *actions) Create(ctx context.Context, tx *cqrs.Tx, action *certificate.Action) error {
	id, err := tx.Insert(ctx, "certificate_actions",
		[]string{
			"action_type", "source_id", "target_id", "user_id", "bundle_ids",
			"quantity", "percentage", "beneficiary",
			"requested_at", "completed_at", "succeeded", "is_deleted",
		},
		string(action.Type), action.SourceID, action.TargetID, action.UserID,
		joinIDs(action.BundleIDs), action.Quantity, action.Percentage,
		action.Beneficiary, action.RequestedAt, action.CompletedAt,
		action.Succeeded, action.IsDeleted,
	)
	if err != nil {
		return Error.Wrap(err)
	}
	action.ID = id

	attrs := map[string]interface{}{
		"action_type":            string(action.Type),
		"source_id":              action.SourceID,
		"user_id":                action.UserID,
		"certificate_bundle_ids": action.BundleIDs,
		"action_completed":       action.Succeeded,
	}
	if action.TargetID != nil {
		attrs["target_id"] = *action.TargetID
	}
	tx.Record(events.Event{
		EntityID:        id,
		EntityName:      certificate.ActionEntityName,
		EventType:       events.TypeCreate,
		AttributesAfter: attrs,
		Timestamp:       time.Now().UTC(),
	})
	return nil
}

// List implements certificate.Actions.
func (a *actions) List(ctx context.Context, sourceID int64, limit int) (list []*certificate.Action, err error) {
	stmt := `SELECT id, action_type, source_id, target_id, user_id, bundle_ids,
		quantity, percentage, beneficiary, requested_at, completed_at, succeeded, is_deleted
		FROM certificate_actions WHERE source_id = ? AND is_deleted = ?
		ORDER BY requested_at DESC`
	if limit > 0 {
		stmt += " LIMIT " + strconv.Itoa(limit)
	}

	rows, err := a.db.read.QueryContext(ctx, a.db.rebind(stmt), sourceID, false)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Close())) }()

	for rows.Next() {
		var (
			action     certificate.Action
			actionType string
			targetID   sql.NullInt64
			quantity   sql.NullInt64
			percentage sql.NullFloat64
			bundleIDs  string
		)
		err := rows.Scan(&action.ID, &actionType, &action.SourceID, &targetID,
			&action.UserID, &bundleIDs, &quantity, &percentage, &action.Beneficiary,
			&action.RequestedAt, &action.CompletedAt, &action.Succeeded, &action.IsDeleted)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		action.Type = certificate.ActionType(actionType)
		if targetID.Valid {
			action.TargetID = &targetID.Int64
		}
		if quantity.Valid {
			action.Quantity = &quantity.Int64
		}
		if percentage.Valid {
			action.Percentage = &percentage.Float64
		}
		action.BundleIDs, err = splitIDs(bundleIDs)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, &action)
	}
	return list, Error.Wrap(rows.Err())
}
