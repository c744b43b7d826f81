// Package auth owns provider credentials: storage, expiry tracking,
// refresh via token exchange, and auth probing. Credentials never leave
// this package unredacted except to the transport performing the call.
package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/switchboard-dev/switchboard/internal/transport"
	"github.com/switchboard-dev/switchboard/internal/types"
)

// refreshLeeway is how close to expiry a credential is refreshed.
const refreshLeeway = 5 * time.Minute

// Credential is one provider's secret plus its lifecycle metadata.
type Credential struct {
	Token        string
	TokenType    string
	RefreshToken string
	ExpiresAt    time.Time // zero means no expiry
}

// Zero reports whether no credential is set.
func (c Credential) Zero() bool { return c.Token == "" && c.RefreshToken == "" }

// Expired reports whether the credential is past its expiry.
func (c Credential) Expired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// NeedsRefresh reports whether the credential must be exchanged before
// use: no session token has been redeemed yet, or the current one
// expires within the leeway window.
func (c Credential) NeedsRefresh() bool {
	if c.Token == "" {
		return true
	}
	return !c.ExpiresAt.IsZero() && time.Until(c.ExpiresAt) < refreshLeeway
}

// String returns a redacted form. The raw token is never printed.
func (c Credential) String() string {
	return "credential(" + Mask(c.Token) + ")"
}

// Mask redacts a secret for logs and previews.
func Mask(secret string) string {
	if len(secret) <= 10 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

// Persister writes credentials through to durable storage.
type Persister interface {
	SaveCredential(p types.Provider, c Credential) error
}

// Store holds the per-provider credential map. Writers exclude readers
// mid-update via the RWMutex; readers never block each other.
type Store struct {
	mu      sync.RWMutex
	creds   map[types.Provider]Credential
	persist Persister // optional
}

// NewStore creates an empty credential store.
func NewStore() *Store {
	return &Store{creds: make(map[types.Provider]Credential)}
}

// SetPersister wires write-through persistence (the vault).
func (s *Store) SetPersister(p Persister) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist = p
}

// SetToken stores a bare token for a provider, overwriting any prior
// credential.
//
// Copilot takes the caller's long-lived GitHub token, which is not
// usable for chat directly: it is held as refresh material and redeemed
// for a short-lived session token by Ensure on first use.
func (s *Store) SetToken(p types.Provider, token string) error {
	if !p.Valid() {
		return types.Errorf(types.CodeInvalidParameter, "unknown provider id %d", int(p))
	}
	if strings.TrimSpace(token) == "" {
		return types.E(types.CodeInvalidParameter, "token must not be empty")
	}
	if p == types.ProviderCopilot {
		return s.SetCredential(p, Credential{RefreshToken: token})
	}
	return s.SetCredential(p, Credential{Token: token, TokenType: "bearer"})
}

// SetCredential stores a full credential, overwriting any prior one, and
// writes it through to the persister when one is wired.
func (s *Store) SetCredential(p types.Provider, c Credential) error {
	s.mu.Lock()
	s.creds[p] = c
	persist := s.persist
	s.mu.Unlock()

	if persist != nil {
		if err := persist.SaveCredential(p, c); err != nil {
			return types.Wrap(types.CodeConfigLoadFailed, "persist credential", err)
		}
	}
	return nil
}

// Get returns the stored credential for a provider, if any.
func (s *Store) Get(p types.Provider) (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[p]
	return c, ok && !c.Zero()
}

// Ensure returns a usable credential for a request against p, exchanging
// the refresh token first when the current one is about to expire. A
// provider with no stored credential yields the zero credential; the
// transport decides whether that is acceptable.
func (s *Store) Ensure(ctx context.Context, p types.Provider, tr transport.Transport) (Credential, error) {
	c, ok := s.Get(p)
	if !ok {
		return Credential{}, nil
	}
	if !c.NeedsRefresh() {
		return c, nil
	}
	if c.RefreshToken == "" {
		if c.Expired() {
			return Credential{}, types.Errorf(types.CodeAuthenticationFailed, "%s credential expired and no refresh token is set", p)
		}
		return c, nil
	}

	tok, err := tr.ExchangeToken(ctx, c.RefreshToken)
	if err != nil {
		if types.CodeOf(err) == types.CodeTokenExchangeFailed {
			return Credential{}, err
		}
		return Credential{}, types.Wrap(types.CodeTokenExchangeFailed, "token exchange for "+p.String(), err)
	}

	fresh := Credential{
		Token:        tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = c.RefreshToken
	}
	if err := s.SetCredential(p, fresh); err != nil {
		return Credential{}, err
	}
	return fresh, nil
}

// TestAuth probes the provider with the stored credential. It never
// touches the router's health snapshot: auth health is reported
// separately from transport health.
func (s *Store) TestAuth(ctx context.Context, p types.Provider, tr transport.Transport) error {
	c, _ := s.Get(p)
	secret := c.Token
	if secret == "" {
		// Nothing redeemed yet; probe with the refresh material.
		secret = c.RefreshToken
	}
	if err := tr.TestAuth(ctx, secret); err != nil {
		if types.CodeOf(err) == types.CodeAuthenticationFailed {
			return err
		}
		return types.Wrap(types.CodeAuthenticationFailed, "auth test for "+p.String(), err)
	}
	return nil
}
