// Copyright (C) 2024 EnergyTag and contributors.
// See LICENSE for copying information.

// Package userauth implements HMAC-signed auth tokens and api keys.
package userauth

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/mr-tron/base58"
	"github.com/zeebo/errs"

	"github.com/energytag/gcregistry/registry/regerr"
)

// Error is the default userauth error class.
var Error = errs.Class("userauth")

// Claims is the payload carried inside a signed token.
type Claims struct {
	UserID     int64     `json:"user_id"`
	Email      string    `json:"email"`
	Expiration time.Time `json:"expiration"`
}

// Token is a signed claims container.
type Token struct {
	Payload   []byte
	Signature []byte
}

// String returns the base64url serialization of the token.
func (t Token) String() string {
	payload := base64.URLEncoding.EncodeToString(t.Payload)
	signature := base64.URLEncoding.EncodeToString(t.Signature)
	return payload + "." + signature
}

// FromString parses a base64url serialized token.
func FromString(s string) (Token, error) {
	i := bytes.IndexByte([]byte(s), '.')
	if i < 0 {
		return Token{}, Error.New("invalid token format")
	}
	payload, err := base64.URLEncoding.DecodeString(s[:i])
	if err != nil {
		return Token{}, Error.Wrap(err)
	}
	signature, err := base64.URLEncoding.DecodeString(s[i+1:])
	if err != nil {
		return Token{}, Error.Wrap(err)
	}
	return Token{Payload: payload, Signature: signature}, nil
}

// Signer signs and verifies tokens with an HMAC-SHA256 secret.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer from the configured secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign creates a signed token for the claims.
func (signer *Signer) Sign(claims Claims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", Error.Wrap(err)
	}

	mac := hmac.New(sha256.New, signer.secret)
	_, _ = mac.Write(payload)

	return Token{Payload: payload, Signature: mac.Sum(nil)}.String(), nil
}

// Verify checks the token signature and expiration and returns the claims.
func (signer *Signer) Verify(tokenString string, now time.Time) (Claims, error) {
	token, err := FromString(tokenString)
	if err != nil {
		return Claims{}, regerr.Unauthorized.Wrap(err)
	}

	mac := hmac.New(sha256.New, signer.secret)
	_, _ = mac.Write(token.Payload)
	if subtle.ConstantTimeCompare(mac.Sum(nil), token.Signature) != 1 {
		return Claims{}, regerr.Unauthorized.New("invalid token signature")
	}

	var claims Claims
	if err := json.Unmarshal(token.Payload, &claims); err != nil {
		return Claims{}, regerr.Unauthorized.Wrap(err)
	}
	if now.After(claims.Expiration) {
		return Claims{}, regerr.Unauthorized.New("token is expired")
	}
	return claims, nil
}

// apiKeyLength is the raw entropy of a generated api key.
const apiKeyLength = 32

// NewAPIKey generates fresh api key material and the hash under which it
// is stored. The base58 string is shown to the caller exactly once.
func NewAPIKey() (key string, hash []byte, err error) {
	raw := make([]byte, apiKeyLength)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, Error.Wrap(err)
	}
	sum := sha256.Sum256(raw)
	return base58.Encode(raw), sum[:], nil
}

// HashAPIKey returns the storage hash of presented api key material.
func HashAPIKey(key string) ([]byte, error) {
	raw, err := base58.Decode(key)
	if err != nil {
		return nil, regerr.Unauthorized.New("malformed api key")
	}
	sum := sha256.Sum256(raw)
	return sum[:], nil
}
