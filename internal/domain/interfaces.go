package domain

import (
	"maunium.net/go/mautrix/id"
)

// Provider supplies the cryptographic primitives: accounts, pairwise ratchet
// sessions and inbound group sessions. The manager consumes it as an opaque
// capability and never looks inside pickles or ciphertext.
type Provider interface {
	NewAccount() (Account, error)
	UnpickleAccount(p Pickle) (Account, error)

	// NewInboundSession derives a fresh inbound session from a pre-key
	// message. senderKey is the claimed Curve25519 key of the sending
	// device and must match the key embedded in the message.
	NewInboundSession(acct Account, senderKey id.SenderKey, msg Message) (Session, error)
	UnpickleSession(p Pickle) (Session, error)

	NewInboundGroupSession(key GroupSessionKey) (GroupSession, error)
	UnpickleGroupSession(p Pickle) (GroupSession, error)
}

// Account is one device's long-term identity plus its pool of consumable
// one-time keys.
type Account interface {
	IdentityKeys() IdentityKeys
	Sign(message []byte) (string, error)

	// OneTimeKeys returns the not-yet-published keys, keyed by key ID.
	OneTimeKeys() map[string]id.Curve25519
	GenerateOneTimeKeys(count int) error
	MarkKeysAsPublished()
	// RemoveOneTimeKeys discards the one-time key that was consumed while
	// bootstrapping sess. Removing an already-removed key is a no-op.
	RemoveOneTimeKeys(sess Session) error

	Pickle() (Pickle, error)
}

// Session is one pairwise ratchet channel with a single remote device.
type Session interface {
	ID() id.SessionID
	// Matches reports whether a pre-key message belongs to this session's
	// own handshake.
	Matches(msg Message) bool
	Decrypt(msg Message) ([]byte, error)
	Encrypt(plaintext []byte) (Message, error)
	Pickle() (Pickle, error)
}

// GroupSession is decrypt-only ratchet state for a shared room key.
type GroupSession interface {
	ID() id.SessionID
	Decrypt(ciphertext string) ([]byte, error)
	Pickle() (Pickle, error)
}

// CryptoStore persists pickled account, session and group-session state.
// Session listings preserve insertion order; dispatch priority depends on it.
type CryptoStore interface {
	InsertAccount(user id.UserID, p Pickle) error
	UpdateAccount(user id.UserID, p Pickle) error
	Account(user id.UserID) (Pickle, bool, error)

	InsertSession(user id.UserID, sessionID id.SessionID, p Pickle) error
	UpdateSession(user id.UserID, sessionID id.SessionID, p Pickle) error
	Sessions() ([]SessionRow, error)

	UpsertGroupSession(room id.RoomID, sessionID id.SessionID, p Pickle) error
	UpdateGroupSession(room id.RoomID, sessionID id.SessionID, p Pickle) error
	GroupSessions() ([]GroupSessionRow, error)

	Close() error
}
