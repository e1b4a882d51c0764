// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package account models bundle-holding accounts, their user links and the
// transfer whitelist.
package account

import (
	"context"
	"time"

	"github.com/zeebo/errs"

	"github.com/energytag/gcregistry/registry/cqrs"
)

// Error is the default account error class.
var Error = errs.Class("account")

// Entity names recorded in the event stream.
const (
	EntityName              = "Account"
	WhitelistLinkEntityName = "AccountWhitelistLink"
)

// Account is a uniquely named holder of bundles. Names are unique across
// non-deleted accounts, case-insensitively.
type Account struct {
	ID        int64
	Name      string
	UserIDs   []int64
	IsDeleted bool
	CreatedAt time.Time
}

// WhitelistLink is a directed admission edge: bundles may transfer from
// the source account to the target account only while such a link exists
// and is not soft-deleted.
type WhitelistLink struct {
	ID              int64
	TargetAccountID int64
	SourceAccountID int64
	IsDeleted       bool
	CreatedAt       time.Time
}

// DB exposes methods to manage accounts, user links and whitelist edges.
//
// architecture: Database
type DB interface {
	// Create inserts an account and its user links and records a CREATE
	// event.
	Create(ctx context.Context, tx *cqrs.Tx, account *Account) error
	// Get loads an account by id from the read store.
	Get(ctx context.Context, id int64) (*Account, error)
	// GetByName loads an account by name, case-insensitively.
	GetByName(ctx context.Context, name string) (*Account, error)
	// Exists reports whether a non-deleted account with the id exists.
	Exists(ctx context.Context, id int64) (bool, error)
	// Delete soft-deletes an account and records a DELETE event.
	Delete(ctx context.Context, tx *cqrs.Tx, id int64) error

	// UserLinked reports whether the user is linked to the account.
	UserLinked(ctx context.Context, userID, accountID int64) (bool, error)
	// LinkUser adds a user to an account.
	LinkUser(ctx context.Context, tx *cqrs.Tx, userID, accountID int64) error

	// AddWhitelistLink creates a source to target admission edge and
	// records a CREATE event.
	AddWhitelistLink(ctx context.Context, tx *cqrs.Tx, sourceID, targetID int64) error
	// RemoveWhitelistLink soft-deletes the admission edge and records an
	// UPDATE event.
	RemoveWhitelistLink(ctx context.Context, tx *cqrs.Tx, sourceID, targetID int64) error
	// WhitelistLinkExists reports whether a non-deleted edge from source
	// to target exists.
	WhitelistLinkExists(ctx context.Context, sourceID, targetID int64) (bool, error)
}
