package auth

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// DefaultMaxTTL bounds how far in the future a signed credential may expire.
const DefaultMaxTTL = 5 * time.Minute

// Ed25519Verifier treats the identity as a base64url Ed25519 public key and
// checks the signature over SignBytes for the engine's intent. A credential
// is accepted once: its (identity, nonce) pair is remembered until it
// expires, and expiry may not lie further ahead than the maximum TTL.
type Ed25519Verifier struct {
	now    func() time.Time
	maxTTL time.Duration

	mu   sync.Mutex
	seen map[replayKey]int64
}

type replayKey struct {
	identity Identity
	nonce    uint64
}

// Ed25519Option configures an Ed25519Verifier.
type Ed25519Option func(*Ed25519Verifier)

// WithClock sets the verifier's time source.
func WithClock(now func() time.Time) Ed25519Option {
	return func(v *Ed25519Verifier) { v.now = now }
}

// WithMaxTTL sets the longest credential lifetime the verifier accepts.
func WithMaxTTL(d time.Duration) Ed25519Option {
	return func(v *Ed25519Verifier) { v.maxTTL = d }
}

// NewEd25519Verifier returns a verifier with an empty replay set.
func NewEd25519Verifier(opts ...Ed25519Option) *Ed25519Verifier {
	v := &Ed25519Verifier{
		now:    time.Now,
		maxTTL: DefaultMaxTTL,
		seen:   make(map[replayKey]int64),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify implements Verifier.
func (v *Ed25519Verifier) Verify(_ context.Context, cred Credential, intent Intent) (Identity, error) {
	if cred.Identity == "" {
		return "", ErrMissingIdentity
	}

	now := v.now().Unix()
	if cred.Expires <= now {
		return "", ErrExpired
	}
	if cred.Expires > now+int64(v.maxTTL/time.Second) {
		return "", ErrExpiryTooFar
	}

	pub, err := DecodePublicKey(cred.Identity)
	if err != nil {
		return "", err
	}
	if !ed25519.Verify(pub, SignBytes(intent, cred.Nonce, cred.Expires), cred.Signature) {
		return "", ErrBadSignature
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for k, exp := range v.seen {
		if exp <= now {
			delete(v.seen, k)
		}
	}
	key := replayKey{identity: cred.Identity, nonce: cred.Nonce}
	if _, ok := v.seen[key]; ok {
		return "", ErrReplayed
	}
	v.seen[key] = cred.Expires
	return cred.Identity, nil
}

// Sign produces a credential authorizing intent for the holder of priv.
func Sign(priv ed25519.PrivateKey, intent Intent, nonce uint64, expires time.Time) Credential {
	pub, _ := priv.Public().(ed25519.PublicKey)
	exp := expires.Unix()
	return Credential{
		Identity:  IdentityFromPublicKey(pub),
		Nonce:     nonce,
		Expires:   exp,
		Signature: ed25519.Sign(priv, SignBytes(intent, nonce, exp)),
	}
}

// KeySigner signs each intent with a fresh random nonce and an expiry TTL
// from now.
type KeySigner struct {
	Key ed25519.PrivateKey
	TTL time.Duration
	Now func() time.Time
}

// SignIntent implements Signer.
func (s KeySigner) SignIntent(intent Intent) (Credential, error) {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return Credential{}, fmt.Errorf("auth: nonce: %w", err)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return Sign(s.Key, intent, binary.BigEndian.Uint64(raw[:]), now().Add(ttl)), nil
}
