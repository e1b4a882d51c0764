// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package user models registry users, their roles and credentials.
package user

import (
	"context"
	"time"

	"github.com/zeebo/errs"

	"github.com/energytag/gcregistry/registry/cqrs"
)

// Error is the default user error class.
var Error = errs.Class("user")

// EntityName is the name users are recorded under in the event stream.
const EntityName = "User"

// Role orders user privileges; higher values grant more.
type Role int

// Known roles.
const (
	RoleStorageValidator Role = 0
	RoleAuditUser        Role = 1
	RoleTradingUser      Role = 2
	RoleProductionUser   Role = 3
	RoleAdmin            Role = 4
)

// String returns the lowercase role name.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleProductionUser:
		return "production_user"
	case RoleTradingUser:
		return "trading_user"
	case RoleAuditUser:
		return "audit_user"
	case RoleStorageValidator:
		return "storage_validator"
	default:
		return "unknown"
	}
}

// User is a registry user.
type User struct {
	ID           int64
	Name         string
	Email        string
	Role         Role
	PasswordHash []byte
	IsDeleted    bool
	CreatedAt    time.Time
}

// APIKey is a stored credential; only the SHA-256 of the key material is
// kept.
type APIKey struct {
	ID        int64
	UserID    int64
	Hash      []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// DB exposes methods to manage users and api keys.
//
// architecture: Database
type DB interface {
	// Create inserts a user and records a CREATE event.
	Create(ctx context.Context, tx *cqrs.Tx, user *User) error
	// Get loads a user by id from the read store.
	Get(ctx context.Context, id int64) (*User, error)
	// GetByEmail loads a user by email.
	GetByEmail(ctx context.Context, email string) (*User, error)
	// Exists reports whether all the given user ids resolve.
	Exists(ctx context.Context, ids []int64) (bool, error)

	// CreateAPIKey stores an api key hash.
	CreateAPIKey(ctx context.Context, tx *cqrs.Tx, key *APIKey) error
	// GetAPIKeyByHash loads an api key by its hash.
	GetAPIKeyByHash(ctx context.Context, hash []byte) (*APIKey, error)
}
