package app

import (
	"github.com/rs/zerolog"

	"olmbox/internal/domain"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	Home string // session storage directory, e.g. $HOME/.olmbox
	// PickleKey protects pickled crypto state at rest. May be empty.
	PickleKey string
	// DisableEncryption forces the capability gate off even when the
	// provider is available.
	DisableEncryption bool
	// Provider overrides the probed default; mainly for tests.
	Provider domain.Provider
	Logger   zerolog.Logger
}
