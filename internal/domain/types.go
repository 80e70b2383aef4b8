package domain

import (
	"maunium.net/go/mautrix/id"
)

// MessageType distinguishes the two pairwise wire formats.
type MessageType int

const (
	// MessagePreKey is the first message of a pairwise channel. It carries
	// enough key material for the receiver to bootstrap an inbound session.
	MessagePreKey MessageType = 0
	// MessageNormal is any message after the handshake.
	MessageNormal MessageType = 1
)

// Message is one pairwise ciphertext as handed over by the transport.
// Body is opaque to everything except the provider.
type Message struct {
	Type MessageType
	Body string
}

// Pickle is a provider-serialised blob of cryptographic state. It is stored
// and reloaded verbatim; nothing outside the provider interprets it.
type Pickle string

// GroupSessionKey is the exported key material for an inbound group session,
// delivered out-of-band through an already-encrypted channel.
type GroupSessionKey string

// IdentityKeys are an account's long-term public keys.
type IdentityKeys struct {
	Curve25519 id.Curve25519 `json:"curve25519"`
	Ed25519    id.Ed25519    `json:"ed25519"`
}

// DeviceKeyRecord describes a remote device's public keys. It is lookup-only
// state used for display and verification, never for the session machinery.
type DeviceKeyRecord struct {
	UserID   id.UserID
	DeviceID id.DeviceID
	Keys     map[id.KeyAlgorithm]string
}

// SessionRow is one persisted pairwise session.
type SessionRow struct {
	UserID    id.UserID
	SessionID id.SessionID
	Pickle    Pickle
}

// GroupSessionRow is one persisted inbound group session.
type GroupSessionRow struct {
	RoomID    id.RoomID
	SessionID id.SessionID
	Pickle    Pickle
}
