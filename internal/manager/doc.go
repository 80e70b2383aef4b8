// Package manager orchestrates end-to-end encryption state for one account:
// it owns the account, the per-sender pairwise session lists and the
// per-room group session registry, dispatches inbound ciphertext to the
// right session, and keeps the persistent store consistent with memory.
//
// Crash-consistency contract: any ratchet advance is written to the store
// before the resulting plaintext is returned, so a crash never leaves the
// pickled state behind the released plaintext.
package manager
