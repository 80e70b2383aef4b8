// Package app wires application dependencies for the CLI.
//
// The App context owns one encryption manager per (user, device) account.
// Lifecycle is tied to the context, not to package import: construct an App,
// ask it for managers, close it when done.
package app
