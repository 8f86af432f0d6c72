// Package auth resolves the identity behind a revshare operation.
//
// Every mutating engine call carries a Credential. The engine describes the
// call as an Intent (pool, operation, arguments); a Verifier checks the
// credential against that intent and returns the Identity it proves or
// rejects it. The engine then compares that identity against the pool
// administrator or the payee owner.
package auth

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
)

// Identity is the verified principal that signed an operation.
// For Ed25519 credentials it is the base64url (unpadded) public key.
type Identity string

// String returns the identity as a plain string.
func (i Identity) String() string { return string(i) }

// Credential is the caller-supplied proof of identity. Signed credentials
// cover exactly one Intent, Nonce and Expires (unix seconds).
type Credential struct {
	Identity  Identity `json:"identity"`
	Nonce     uint64   `json:"nonce,omitempty"`
	Expires   int64    `json:"expires,omitempty"`
	Signature []byte   `json:"signature,omitempty"`
}

// SignIntent returns the credential unchanged, so a fixed credential can act
// as a Signer for verifiers that ignore the intent, such as Trusted.
func (c Credential) SignIntent(Intent) (Credential, error) { return c, nil }

// Verifier checks a credential for intent and returns the identity it proves.
type Verifier interface {
	Verify(ctx context.Context, cred Credential, intent Intent) (Identity, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, cred Credential, intent Intent) (Identity, error)

// Verify implements Verifier.
func (f VerifierFunc) Verify(ctx context.Context, cred Credential, intent Intent) (Identity, error) {
	return f(ctx, cred, intent)
}

// Signer produces a credential for an intent. The usage feed signs every
// flush through one.
type Signer interface {
	SignIntent(intent Intent) (Credential, error)
}

var (
	// ErrMissingIdentity is returned for credentials with no identity.
	ErrMissingIdentity = errors.New("auth: missing identity")

	// ErrBadSignature is returned when a signature does not verify.
	ErrBadSignature = errors.New("auth: signature verification failed")

	// ErrExpired is returned for signed credentials past their expiry.
	ErrExpired = errors.New("auth: credential expired")

	// ErrExpiryTooFar is returned when a credential's expiry exceeds the
	// verifier's maximum lifetime.
	ErrExpiryTooFar = errors.New("auth: credential expiry too far in the future")

	// ErrReplayed is returned when a nonce is presented twice before expiry.
	ErrReplayed = errors.New("auth: credential already used")
)

// Trusted accepts the identity as stated and ignores the intent. Use it when
// the host has already authenticated the caller (for example behind an
// authenticating gateway) and in tests.
type Trusted struct{}

// Verify implements Verifier.
func (Trusted) Verify(_ context.Context, cred Credential, _ Intent) (Identity, error) {
	if cred.Identity == "" {
		return "", ErrMissingIdentity
	}
	return cred.Identity, nil
}

// IdentityFromPublicKey encodes an Ed25519 public key as an Identity.
func IdentityFromPublicKey(pub ed25519.PublicKey) Identity {
	return Identity(base64.RawURLEncoding.EncodeToString(pub))
}

// DecodePublicKey decodes an Identity produced by IdentityFromPublicKey.
func DecodePublicKey(i Identity) (ed25519.PublicKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(string(i))
	if err != nil {
		return nil, fmt.Errorf("auth: decode identity %q: %w", i, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("auth: identity %q: want %d key bytes, got %d", i, ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// As returns a credential for the trusted verifier.
func As(identity Identity) Credential {
	return Credential{Identity: identity}
}
