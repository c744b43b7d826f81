package switchboard

import (
	"context"

	"github.com/switchboard-dev/switchboard/internal/auth"
	"github.com/switchboard-dev/switchboard/internal/types"
)

// SetToken stores (or replaces) the credential used for a provider.
// With a vault configured, the token is also persisted encrypted. The
// token is never logged.
func (i *Instance) SetToken(provider Provider, token string) error {
	if err := i.guard(); err != nil {
		return err
	}
	if err := i.creds.SetToken(provider, token); err != nil {
		return i.fail(err)
	}
	i.log.Info("credential updated",
		"provider", provider.String(),
		"token", auth.Mask(token),
	)
	return nil
}

// TestAuth verifies the stored credential against the provider without
// sending a chat request. Any failure is reported as
// CodeAuthenticationFailed; provider health tracking is not affected.
func (i *Instance) TestAuth(ctx context.Context, provider Provider) error {
	if err := i.guard(); err != nil {
		return err
	}

	entry, ok := i.router.Lookup(provider)
	if !ok {
		return i.fail(types.Errorf(types.CodeProviderUnavailable, "provider %s is not registered", provider))
	}

	cfg := i.snapshot()
	tctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	if err := i.creds.TestAuth(tctx, provider, entry.Transport); err != nil {
		return i.fail(err)
	}
	return nil
}
