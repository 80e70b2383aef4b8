package app

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"olmbox/internal/domain"
	"olmbox/internal/manager"
	"olmbox/internal/olm"
)

// App owns one encryption manager per logged-in account. It replaces any
// notion of a process-global account registry: whoever constructs the App
// controls the lifecycle of everything under it.
type App struct {
	home     string
	provider domain.Provider
	log      zerolog.Logger

	mu       sync.Mutex
	managers map[string]*manager.Manager
	closed   bool
}

// New probes the capability gate once and returns a ready context. With
// encryption disabled (explicitly, or because the provider probe failed)
// every manager it hands out is a no-op manager.
func New(cfg Config) *App {
	var provider domain.Provider
	switch {
	case cfg.DisableEncryption:
		cfg.Logger.Debug().Msg("encryption disabled by configuration")
	case cfg.Provider != nil:
		provider = cfg.Provider
	case olm.Available():
		provider = olm.NewProvider(cfg.PickleKey)
	default:
		cfg.Logger.Warn().Msg("encryption provider unavailable, continuing without encryption")
	}
	return &App{
		home:     cfg.Home,
		provider: provider,
		log:      cfg.Logger,
		managers: make(map[string]*manager.Manager),
	}
}

// Manager returns the encryption manager for (user, device), opening it on
// first use.
func (a *App) Manager(user id.UserID, device id.DeviceID) (*manager.Manager, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, errors.New("app context is closed")
	}
	key := fmt.Sprintf("%s/%s", user, device)
	if m, ok := a.managers[key]; ok {
		return m, nil
	}
	m, err := manager.Open(manager.Config{
		UserID:   user,
		DeviceID: device,
		Dir:      a.home,
		Provider: a.provider,
		Logger:   a.log,
	})
	if err != nil {
		return nil, err
	}
	a.managers[key] = m
	return m, nil
}

// Close flushes and releases every open manager.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	var firstErr error
	for key, m := range a.managers {
		if err := m.Save(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("save %s: %w", key, err)
		}
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", key, err)
		}
		delete(a.managers, key)
	}
	return firstErr
}
