package domain

import "errors"

// ErrLoadCorrupt marks a fatal failure while restoring persisted crypto
// state. A manager must not serve requests with partially loaded state, so
// loaders wrap any unpickle failure with this error instead of dropping the
// offending row.
var ErrLoadCorrupt = errors.New("stored crypto state could not be loaded")
