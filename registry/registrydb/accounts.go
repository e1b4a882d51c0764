// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package registrydb

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeebo/errs"

	"github.com/energytag/gcregistry/registry/account"
	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/events"
	"github.com/energytag/gcregistry/registry/regerr"
)

type accounts struct {
	db *registryDB
}

// Create implements account.DB.
func (a *accounts) Create(ctx context.Context, tx *cqrs.Tx, acct *account.Account) error {
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}
	id, err := tx.Insert(ctx, "accounts",
		[]string{"name", "is_deleted", "created_at"},
		acct.Name, acct.IsDeleted, acct.CreatedAt)
	if err != nil {
		return Error.Wrap(err)
	}
	acct.ID = id

	for _, userID := range acct.UserIDs {
		_, err := tx.Insert(ctx, "account_user_links",
			[]string{"user_id", "account_id"}, userID, id)
		if err != nil {
			return Error.Wrap(err)
		}
	}

	tx.Record(events.Event{
		EntityID:   id,
		EntityName: account.EntityName,
		EventType:  events.TypeCreate,
		AttributesAfter: map[string]interface{}{
			"account_name": acct.Name,
			"user_ids":     acct.UserIDs,
		},
		Timestamp: acct.CreatedAt,
	})
	return nil
}

// Get implements account.DB.
func (a *accounts) Get(ctx context.Context, id int64) (*account.Account, error) {
	var acct account.Account
	err := a.db.read.QueryRowContext(ctx, a.db.rebind(
		`SELECT id, name, is_deleted, created_at FROM accounts WHERE id = ?`), id).
		Scan(&acct.ID, &acct.Name, &acct.IsDeleted, &acct.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, regerr.NotFound.New("account %d not found", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}

	acct.UserIDs, err = a.userIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (a *accounts) userIDs(ctx context.Context, accountID int64) (ids []int64, err error) {
	rows, err := a.db.read.QueryContext(ctx, a.db.rebind(
		`SELECT user_id FROM account_user_links WHERE account_id = ? ORDER BY user_id`), accountID)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Close())) }()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, Error.Wrap(err)
		}
		ids = append(ids, id)
	}
	return ids, Error.Wrap(rows.Err())
}

// GetByName implements account.DB; the match is case-insensitive.
func (a *accounts) GetByName(ctx context.Context, name string) (*account.Account, error) {
	var acct account.Account
	err := a.db.read.QueryRowContext(ctx, a.db.rebind(
		`SELECT id, name, is_deleted, created_at FROM accounts
		 WHERE LOWER(name) = LOWER(?) AND is_deleted = ?`), name, false).
		Scan(&acct.ID, &acct.Name, &acct.IsDeleted, &acct.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, regerr.NotFound.New("account %q not found", name)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}

	acct.UserIDs, err = a.userIDs(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// Exists implements account.DB.
func (a *accounts) Exists(ctx context.Context, id int64) (bool, error) {
	var count int
	err := a.db.read.QueryRowContext(ctx, a.db.rebind(
		`SELECT COUNT(*) FROM accounts WHERE id = ? AND is_deleted = ?`), id, false).Scan(&count)
	if err != nil {
		return false, Error.Wrap(err)
	}
	return count > 0, nil
}

// Delete implements account.DB.
func (a *accounts) Delete(ctx context.Context, tx *cqrs.Tx, id int64) error {
	err := tx.Exec(ctx, `UPDATE accounts SET is_deleted = ? WHERE id = ?`, true, id)
	if err != nil {
		return Error.Wrap(err)
	}
	tx.Record(events.Event{
		EntityID:         id,
		EntityName:       account.EntityName,
		EventType:        events.TypeDelete,
		AttributesBefore: map[string]interface{}{"is_deleted": false},
		AttributesAfter:  map[string]interface{}{"is_deleted": true},
		Timestamp:        time.Now().UTC(),
	})
	return nil
}

// UserLinked implements account.DB.
func (a *accounts) UserLinked(ctx context.Context, userID, accountID int64) (bool, error) {
	var count int
	err := a.db.read.QueryRowContext(ctx, a.db.rebind(
		`SELECT COUNT(*) FROM account_user_links WHERE user_id = ? AND account_id = ?`),
		userID, accountID).Scan(&count)
	if err != nil {
		return false, Error.Wrap(err)
	}
	return count > 0, nil
}

// LinkUser implements account.DB.
func (a *accounts) LinkUser(ctx context.Context, tx *cqrs.Tx, userID, accountID int64) error {
	_, err := tx.Insert(ctx, "account_user_links",
		[]string{"user_id", "account_id"}, userID, accountID)
	return Error.Wrap(err)
}

// AddWhitelistLink implements account.DB.
func (a *accounts) AddWhitelistLink(ctx context.Context, tx *cqrs.Tx, sourceID, targetID int64) error {
	now := time.Now().UTC()
	id, err := tx.Insert(ctx, "account_whitelist_links",
		[]string{"source_account_id", "target_account_id", "is_deleted", "created_at"},
		sourceID, targetID, false, now)
	if err != nil {
		return Error.Wrap(err)
	}
	tx.Record(events.Event{
		EntityID:   id,
		EntityName: account.WhitelistLinkEntityName,
		EventType:  events.TypeCreate,
		AttributesAfter: map[string]interface{}{
			"source_account_id": sourceID,
			"target_account_id": targetID,
		},
		Timestamp: now,
	})
	return nil
}

// RemoveWhitelistLink implements account.DB.
func (a *accounts) RemoveWhitelistLink(ctx context.Context, tx *cqrs.Tx, sourceID, targetID int64) error {
	var id int64
	err := tx.QueryRow(ctx,
		`SELECT id FROM account_whitelist_links
		 WHERE source_account_id = ? AND target_account_id = ? AND is_deleted = ?`,
		sourceID, targetID, false).Scan(&id)
	if err == sql.ErrNoRows {
		return regerr.NotFound.New(
			"no whitelist link from account %d to account %d", sourceID, targetID)
	}
	if err != nil {
		return Error.Wrap(err)
	}

	err = tx.Exec(ctx, `UPDATE account_whitelist_links SET is_deleted = ? WHERE id = ?`, true, id)
	if err != nil {
		return Error.Wrap(err)
	}
	tx.Record(events.Event{
		EntityID:         id,
		EntityName:       account.WhitelistLinkEntityName,
		EventType:        events.TypeUpdate,
		AttributesBefore: map[string]interface{}{"is_deleted": false},
		AttributesAfter:  map[string]interface{}{"is_deleted": true},
		Timestamp:        time.Now().UTC(),
	})
	return nil
}

// WhitelistLinkExists implements account.DB.
func (a *accounts) WhitelistLinkExists(ctx context.Context, sourceID, targetID int64) (bool, error) {
	var count int
	err := a.db.read.QueryRowContext(ctx, a.db.rebind(
		`SELECT COUNT(*) FROM account_whitelist_links
		 WHERE source_account_id = ? AND target_account_id = ? AND is_deleted = ?`),
		sourceID, targetID, false).Scan(&count)
	if err != nil {
		return false, Error.Wrap(err)
	}
	return count > 0, nil
}
