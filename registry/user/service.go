// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

package user

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/energytag/gcregistry/registry/cqrs"
	"github.com/energytag/gcregistry/registry/regerr"
	"github.com/energytag/gcregistry/registry/user/userauth"
)

var mon = monkit.Package()

// Config holds authentication tunables.
type Config struct {
	TokenSecret     string        `help:"secret used to sign auth tokens" default:""`
	TokenExpiration time.Duration `help:"lifetime of issued auth tokens" default:"24h"`
	APIKeyExpiry    time.Duration `help:"lifetime of issued api keys" default:"2160h"`
	PasswordCost    int           `help:"bcrypt hashing cost for passwords" default:"10"`
}

// Service handles user registration, authentication and api keys.
type Service struct {
	log    *zap.Logger
	db     DB
	cqrs   *cqrs.Coordinator
	signer *userauth.Signer
	config Config
}

// NewService creates a user service.
func NewService(log *zap.Logger, db DB, coordinator *cqrs.Coordinator, config Config) *Service {
	if config.PasswordCost == 0 {
		config.PasswordCost = bcrypt.DefaultCost
	}
	return &Service{
		log:    log,
		db:     db,
		cqrs:   coordinator,
		signer: userauth.NewSigner(config.TokenSecret),
		config: config,
	}
}

// Register creates a new user with a bcrypt password hash.
func (s *Service) Register(ctx context.Context, name, email, password string, role Role) (u *User, err error) {
	defer mon.Task()(&ctx)(&err)

	if email == "" || password == "" {
		return nil, regerr.Validation.New("email and password are required")
	}
	if existing, err := s.db.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, regerr.Validation.New("%s is already in use", email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.PasswordCost)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	u = &User{Name: name, Email: email, Role: role, PasswordHash: hash}
	err = s.cqrs.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		return s.db.Create(ctx, tx, u)
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks credentials and issues a signed auth token.
func (s *Service) Login(ctx context.Context, email, password string) (token string, err error) {
	defer mon.Task()(&ctx)(&err)

	u, err := s.db.GetByEmail(ctx, email)
	if err != nil {
		return "", regerr.Unauthorized.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return "", regerr.Unauthorized.New("invalid credentials")
	}

	return s.signer.Sign(userauth.Claims{
		UserID:     u.ID,
		Email:      u.Email,
		Expiration: time.Now().UTC().Add(s.config.TokenExpiration),
	})
}

// Authorize verifies a token and resolves its user.
func (s *Service) Authorize(ctx context.Context, tokenString string) (u *User, err error) {
	defer mon.Task()(&ctx)(&err)

	claims, err := s.signer.Verify(tokenString, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	u, err = s.db.Get(ctx, claims.UserID)
	if err != nil {
		return nil, regerr.Unauthorized.New("unknown user")
	}
	return u, nil
}

// IssueAPIKey mints an api key for the user; the key material is returned
// exactly once.
func (s *Service) IssueAPIKey(ctx context.Context, userID int64) (key string, err error) {
	defer mon.Task()(&ctx)(&err)

	key, hash, err := userauth.NewAPIKey()
	if err != nil {
		return "", err
	}

	err = s.cqrs.Atomically(ctx, func(ctx context.Context, tx *cqrs.Tx) error {
		return s.db.CreateAPIKey(ctx, tx, &APIKey{
			UserID:    userID,
			Hash:      hash,
			ExpiresAt: time.Now().UTC().Add(s.config.APIKeyExpiry),
		})
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// AuthorizeAPIKey resolves presented api key material to its user.
func (s *Service) AuthorizeAPIKey(ctx context.Context, key string) (u *User, err error) {
	defer mon.Task()(&ctx)(&err)

	hash, err := userauth.HashAPIKey(key)
	if err != nil {
		return nil, err
	}
	stored, err := s.db.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return nil, regerr.Unauthorized.New("unknown api key")
	}
	if time.Now().UTC().After(stored.ExpiresAt) {
		return nil, regerr.Unauthorized.New("api key is expired")
	}
	return s.db.Get(ctx, stored.UserID)
}
