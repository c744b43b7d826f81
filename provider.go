package switchboard

// CurrentProvider returns the active provider.
func (i *Instance) CurrentProvider() Provider {
	return i.router.Current()
}

// SwitchProvider makes provider the active one for subsequent requests.
// In-flight requests finish on the provider they started with.
// Switching to the current provider is a no-op; an unknown or disabled
// provider is CodeProviderUnavailable.
func (i *Instance) SwitchProvider(provider Provider) error {
	if err := i.guard(); err != nil {
		return err
	}
	if err := i.router.Switch(provider); err != nil {
		return i.fail(err)
	}
	i.log.Info("provider switched", "provider", provider.String())
	return nil
}

// ProviderStatus returns a point-in-time health snapshot of every
// registered provider, highest priority first. Each entry is internally
// consistent even while requests are completing concurrently.
func (i *Instance) ProviderStatus() ([]ProviderStatus, error) {
	if err := i.guard(); err != nil {
		return nil, err
	}
	return i.router.Status(), nil
}

// ProviderStatusInto fills buf with as many status entries as fit and
// returns the number written plus the total number of providers. A
// short buffer is truncation, not an error.
func (i *Instance) ProviderStatusInto(buf []ProviderStatus) (written, total int, err error) {
	if err := i.guard(); err != nil {
		return 0, 0, err
	}
	written, total = i.router.StatusInto(buf)
	return written, total, nil
}
