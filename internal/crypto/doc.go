// Package crypto exposes the minimal primitives used by olmbox.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - Unpadded base64 helpers for key material (B64, B64Decode)
//   - Canonical JSON serialisation for signable payloads (CanonicalJSON)
//   - Key display helpers (Fingerprint, PartitionKey)
//
// X25519 keys are fixed-size array types to avoid accidental reallocation.
// Callers should treat returned secrets as sensitive and zeroise them when
// practical to reduce lifetime in memory.
package crypto
