// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package registrydb

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/events"
	"github.com/energytag/gcregistry/registry/regerr"
	"github.com/energytag/gcregistry/registry/user"
)

type users struct {
	db *registryDB
}

const userSelect = `SELECT id, name, email, role, password_hash, is_deleted, created_at FROM users`

func scanUser(scan func(dest ...interface{}) error) (*user.User, error) {
	var (
		u    user.User
		role int
	)
	err := scan(&u.ID, &u.Name, &u.Email, &role, &u.PasswordHash, &u.IsDeleted, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = user.Role(role)
	return &u, nil
}

// Create implements user.DB.
func (u *users) Create(ctx context.Context, tx *cqrs.Tx, usr *user.User) error {
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = time.Now().UTC()
	}
	id, err := tx.Insert(ctx, "users",
		[]string{"name", "email", "role", "password_hash", "is_deleted", "created_at"},
		usr.Name, usr.Email, int(usr.Role), usr.PasswordHash, usr.IsDeleted, usr.CreatedAt)
	if err != nil {
		return Error.Wrap(err)
	}
	usr.ID = id

	tx.Record(events.Event{
		EntityID:   id,
		EntityName: user.EntityName,
		EventType:  events.TypeCreate,
		AttributesAfter: map[string]interface{}{
			"name":  usr.Name,
			"email": usr.Email,
			"role":  usr.Role.String(),
		},
		Timestamp: usr.CreatedAt,
	})
	return nil
}

// Get implements user.DB.
func (u *users) Get(ctx context.Context, id int64) (*user.User, error) {
	row := u.db.read.QueryRowContext(ctx, u.db.rebind(userSelect+" WHERE id = ?"), id)
	usr, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return nil, regerr.NotFound.New("user %d not found", id)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return usr, nil
}

// GetByEmail implements user.DB.
func (u *users) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	row := u.db.read.QueryRowContext(ctx,
		u.db.rebind(userSelect+" WHERE email = ? AND is_deleted = ?"), email, false)
	usr, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return nil, regerr.NotFound.New("user %q not found", email)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return usr, nil
}

// Exists implements user.DB.
func (u *users) Exists(ctx context.Context, ids []int64) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, false)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	var count int
	err := u.db.read.QueryRowContext(ctx, u.db.rebind(
		`SELECT COUNT(DISTINCT id) FROM users WHERE is_deleted = ? AND id IN (`+
			strings.Join(placeholders, ", ")+`)`), args...).Scan(&count)
	if err != nil {
		return false, Error.Wrap(err)
	}
	return count == len(ids), nil
}

// CreateAPIKey implements user.DB.
func (u *users) CreateAPIKey(ctx context.Context, tx *cqrs.Tx, key *user.APIKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	id, err := tx.Insert(ctx, "api_keys",
		[]string{"user_id", "hash", "created_at", "expires_at"},
		key.UserID, key.Hash, key.CreatedAt, key.ExpiresAt)
	if err != nil {
		return Error.Wrap(err)
	}
	key.ID = id
	return nil
}

// GetAPIKeyByHash implements user.DB.
func (u *users) GetAPIKeyByHash(ctx context.Context, hash []byte) (*user.APIKey, error) {
	var key user.APIKey
	err := u.db.read.QueryRowContext(ctx, u.db.rebind(
		`SELECT id, user_id, hash, created_at, expires_at FROM api_keys WHERE hash = ?`), hash).
		Scan(&key.ID, &key.UserID, &key.Hash, &key.CreatedAt, &key.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, regerr.Unauthorized.New("unknown api key")
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &key, nil
}
