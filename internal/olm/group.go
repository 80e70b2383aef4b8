package olm

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"maunium.net/go/mautrix/id"

	"olmbox/internal/crypto"
	"olmbox/internal/domain"
)

// groupPayload is the wire form of one group message.
type groupPayload struct {
	Counter    uint32 `json:"counter"`
	Ciphertext []byte `json:"ciphertext"`
	Signature  []byte `json:"signature"`
}

// groupKeyExport is the shared session key handed to receivers. It carries
// the chain state at export time, so a late joiner cannot read history from
// before the export point.
type groupKeyExport struct {
	ID         id.SessionID `json:"session_id"`
	ChainKey   []byte       `json:"chain_key"`
	Counter    uint32       `json:"counter"`
	SigningKey []byte       `json:"signing_key"`
}

type inboundGroupState struct {
	ID         id.SessionID `json:"id"`
	ChainKey   []byte       `json:"chain_key"`
	Counter    uint32       `json:"counter"`
	SigningKey []byte       `json:"signing_key"`
}

// InboundGroupSession is the decrypt-only side of a room's shared key.
// Its ratchet only moves forward: decrypting advances past the message,
// so the same ciphertext is not guaranteed to decrypt twice. Replay
// protection and ordering belong to the transport.
type InboundGroupSession struct {
	p  *Provider
	st inboundGroupState
}

// NewInboundGroupSession builds a session from an exported session key.
func (p *Provider) NewInboundGroupSession(key domain.GroupSessionKey) (domain.GroupSession, error) {
	raw, err := crypto.B64Decode(string(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessageFormat, err)
	}
	var export groupKeyExport
	if err := json.Unmarshal(raw, &export); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessageFormat, err)
	}
	if export.ID == "" || len(export.ChainKey) != 32 || len(export.SigningKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: incomplete group session key", ErrBadMessageFormat)
	}
	return &InboundGroupSession{
		p: p,
		st: inboundGroupState{
			ID:         export.ID,
			ChainKey:   export.ChainKey,
			Counter:    export.Counter,
			SigningKey: export.SigningKey,
		},
	}, nil
}

// UnpickleGroupSession restores an inbound group session.
func (p *Provider) UnpickleGroupSession(pickle domain.Pickle) (domain.GroupSession, error) {
	s := &InboundGroupSession{p: p}
	if err := p.open(pickle, &s.st); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the group session identifier carried in the exported key.
func (s *InboundGroupSession) ID() id.SessionID { return s.st.ID }

// Decrypt verifies and opens one group message, then advances the ratchet
// past it. Messages behind the current counter are rejected.
func (s *InboundGroupSession) Decrypt(ciphertext string) ([]byte, error) {
	raw, err := crypto.B64Decode(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessageFormat, err)
	}
	var msg groupPayload
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessageFormat, err)
	}
	if !crypto.VerifyEd25519(ed25519.PublicKey(s.st.SigningKey), msg.Ciphertext, msg.Signature) {
		return nil, ErrBadSignature
	}
	if msg.Counter < s.st.Counter {
		return nil, ErrRatchetAdvanced
	}
	if msg.Counter-s.st.Counter > maxMessageGap {
		return nil, ErrCounterTooFar
	}
	mk, nextCK, nextCounter := chainAt(s.st.ChainKey, s.st.Counter, msg.Counter)
	pt, err := openPayload(mk, msg.Counter, []byte(s.st.ID), msg.Ciphertext)
	if err != nil {
		return nil, err
	}
	s.st.ChainKey = nextCK
	s.st.Counter = nextCounter
	return pt, nil
}

// Pickle serialises the session.
func (s *InboundGroupSession) Pickle() (domain.Pickle, error) {
	return s.p.seal(s.st)
}

var _ domain.GroupSession = (*InboundGroupSession)(nil)

// OutboundGroupSession is the encrypting side of a room's shared key. The
// manager never holds one; it exists so the owning client can produce the
// session key and ciphertext that inbound sessions consume.
type OutboundGroupSession struct {
	p           *Provider
	id          id.SessionID
	chainKey    []byte
	counter     uint32
	signingPriv ed25519.PrivateKey
	signingPub  ed25519.PublicKey
}

// NewOutboundGroupSession creates a fresh group sending session.
func (p *Provider) NewOutboundGroupSession() (*OutboundGroupSession, error) {
	chain := make([]byte, 32)
	if _, err := rand.Read(chain); err != nil {
		return nil, err
	}
	priv, pub, err := crypto.GenerateEd25519()
	if err != nil {
		return nil, err
	}
	h := sha256.New()
	h.Write(pub)
	h.Write(chain)
	return &OutboundGroupSession{
		p:           p,
		id:          id.SessionID(crypto.B64(h.Sum(nil))),
		chainKey:    chain,
		counter:     0,
		signingPriv: priv,
		signingPub:  pub,
	}, nil
}

// ID returns the group session identifier.
func (s *OutboundGroupSession) ID() id.SessionID { return s.id }

// SessionKey exports the current chain state for distribution to receivers.
func (s *OutboundGroupSession) SessionKey() (domain.GroupSessionKey, error) {
	raw, err := json.Marshal(groupKeyExport{
		ID:         s.id,
		ChainKey:   append([]byte(nil), s.chainKey...),
		Counter:    s.counter,
		SigningKey: append([]byte(nil), s.signingPub...),
	})
	if err != nil {
		return "", err
	}
	return domain.GroupSessionKey(crypto.B64(raw)), nil
}

// Encrypt seals plaintext as the next group message and advances the chain.
func (s *OutboundGroupSession) Encrypt(plaintext []byte) (string, error) {
	nextCK, mk := advanceChain(s.chainKey)
	ct, err := sealPayload(mk, s.counter, []byte(s.id), plaintext)
	if err != nil {
		return "", err
	}
	msg := groupPayload{
		Counter:    s.counter,
		Ciphertext: ct,
		Signature:  crypto.SignEd25519(s.signingPriv, ct),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	s.chainKey = nextCK
	s.counter++
	return crypto.B64(raw), nil
}
