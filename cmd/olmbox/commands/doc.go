// Package commands defines the olmbox CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init   Create the encryption account for a (user, device) pair
//   - info   Print identity keys, fingerprints and known sessions
//   - keys   Manage the one-time key pool
//   - sign   Sign a JSON payload with the account's Ed25519 key
//
// # Implementation
//
// The root command builds a shared app context (provider probe, logger,
// session storage directory) before any subcommand runs, so handlers only
// ever ask the context for the manager of the selected account.
package commands
