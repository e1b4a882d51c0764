// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package account

import (
	"context"

	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/regerr"
	"github.com/energytag/gcregistry/registry/user"
)

var mon = monkit.Package()

// Service implements account management and the whitelist and access gate.
type Service struct {
	log   *zap.Logger
	db    DB
	users user.DB
	cqrs  *cqrs.Coordinator
	cache *Cache
}

// NewService creates an account service. The cache may be nil, in which
// case every admission check goes to the read store.
func NewService(log *zap.Logger, db DB, users user.DB, coordinator *cqrs.Coordinator, cache *Cache) *Service {
	return &Service{log: log, db: db, users: users, cqrs: coordinator, cache: cache}
}

// Create validates and creates an account: unique case-insensitive name
// and every linked user id resolving.
func (s *Service) Create(ctx context.Context, account *Account) (err error) {
	defer mon.Task()(&ctx)(&err)

	if account.Name == "" {
		return regerr.Validation.New("account name is required")
	}
	if existing, err := s.db.GetByName(ctx, account.Name); err == nil && existing != nil {
		return regerr.Validation.New("account name already exists in the database")
	}
	if len(account.UserIDs) > 0 {
		ok, err := s.users.Exists(ctx, account.UserIDs)
		if err != nil {
			return Error.Wrap(err)
		}
		if !ok {
			return regerr.Validation.New(
				"one or more users assigned to this account do not exist in the database")
		}
	}

	return s.cqrs.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		return s.db.Create(ctx, tx, account)
	})
}

// Get loads an account from the read store.
func (s *Service) Get(ctx context.Context, id int64) (account *Account, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.db.Get(ctx, id)
}

// Exists reports whether a non-deleted account exists.
func (s *Service) Exists(ctx context.Context, id int64) (ok bool, err error) {
	defer mon.Task()(&ctx)(&err)
	return s.db.Exists(ctx, id)
}

// Whitelist adds a source to target admission edge. Self-links are
// forbidden.
func (s *Service) Whitelist(ctx context.Context, sourceID, targetID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	if sourceID == targetID {
		return regerr.State.New("an account cannot whitelist itself")
	}
	for _, id := range []int64{sourceID, targetID} {
		ok, err := s.db.Exists(ctx, id)
		if err != nil {
			return Error.Wrap(err)
		}
		if !ok {
			return regerr.NotFound.New("account %d does not exist", id)
		}
	}

	err = s.cqrs.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		return s.db.AddWhitelistLink(ctx, tx, sourceID, targetID)
	})
	if err == nil && s.cache != nil {
		s.cache.Invalidate(sourceID, targetID)
	}
	return err
}

// RemoveWhitelist soft-deletes the admission edge.
func (s *Service) RemoveWhitelist(ctx context.Context, sourceID, targetID int64) (err error) {
	defer mon.Task()(&ctx)(&err)

	err = s.cqrs.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		return s.db.RemoveWhitelistLink(ctx, tx, sourceID, targetID)
	})
	if err == nil && s.cache != nil {
		s.cache.Invalidate(sourceID, targetID)
	}
	return err
}

// MayTransfer reports whether a non-deleted whitelist edge admits a
// transfer from source to target.
func (s *Service) MayTransfer(ctx context.Context, sourceID, targetID int64) (allowed bool, err error) {
	defer mon.Task()(&ctx)(&err)

	if s.cache != nil {
		if allowed, ok := s.cache.Get(sourceID, targetID); ok {
			return allowed, nil
		}
	}

	allowed, err = s.db.WhitelistLinkExists(ctx, sourceID, targetID)
	if err != nil {
		return false, Error.Wrap(err)
	}
	if s.cache != nil {
		s.cache.Set(sourceID, targetID, allowed)
	}
	return allowed, nil
}

// CheckAccess verifies that the actor holds at least the required role and
// is linked to the account. Admins bypass the account link requirement.
func (s *Service) CheckAccess(ctx context.Context, actor *user.User, accountID int64, required user.Role) (err error) {
	defer mon.Task()(&ctx)(&err)

	if actor == nil {
		return regerr.Unauthorized.New("no authenticated user")
	}
	if actor.Role < required {
		return regerr.Unauthorized.New(
			"role %s is below the required %s", actor.Role, required)
	}
	if actor.Role == user.RoleAdmin {
		return nil
	}

	linked, err := s.db.UserLinked(ctx, actor.ID, accountID)
	if err != nil {
		return Error.Wrap(err)
	}
	if !linked {
		return regerr.Unauthorized.New(
			"user %d is not linked to account %d", actor.ID, accountID)
	}
	return nil
}
