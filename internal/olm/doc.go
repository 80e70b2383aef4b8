// Package olm implements the cryptographic primitive provider: identity
// accounts, pairwise ratchet sessions and inbound group sessions, plus their
// pickled (encrypted, serialised) forms.
//
// The manager consumes this package only through the domain interfaces; the
// concrete types here additionally expose the outbound halves (outbound
// pairwise and group sessions) that the remote side of a conversation uses.
//
// Pairwise sessions bootstrap with a triple Diffie–Hellman over the sender's
// identity key, a fresh ephemeral key and one of the receiver's one-time
// keys, then ratchet per-direction HMAC chains. Group sessions are a signed
// one-way chain ratchet shared through an exported session key. Payloads are
// sealed with ChaCha20-Poly1305.
package olm
