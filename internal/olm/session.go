package olm

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"maunium.net/go/mautrix/id"

	"olmbox/internal/crypto"
	"olmbox/internal/domain"
	"olmbox/internal/util/memzero"
)

const sessionRootInfo = "olmbox.session.root"

// preKeyPayload is the outer body of an initial message. It carries the
// handshake material the receiver needs to derive the same session, plus the
// first ratchet message as Inner.
type preKeyPayload struct {
	IdentityKey  string `json:"identity_key"`
	EphemeralKey string `json:"ephemeral_key"`
	OneTimeKey   string `json:"one_time_key"`
	Inner        string `json:"inner"`
}

// ratchetPayload is the body of a normal message.
type ratchetPayload struct {
	Counter    uint32 `json:"counter"`
	Ciphertext []byte `json:"ciphertext"`
}

type sessionState struct {
	ID             id.SessionID         `json:"id"`
	Inbound        bool                 `json:"inbound"`
	LocalIdentity  crypto.X25519Public  `json:"local_identity"`
	RemoteIdentity crypto.X25519Public  `json:"remote_identity"`
	Ephemeral      crypto.X25519Public  `json:"ephemeral"`
	UsedOneTimeKey crypto.X25519Public  `json:"used_one_time_key"`
	SendChain      []byte               `json:"send_chain"`
	RecvChain      []byte               `json:"recv_chain"`
	SendCounter    uint32               `json:"send_counter"`
	RecvCounter    uint32               `json:"recv_counter"`
	SentPreKey     bool                 `json:"sent_pre_key"`
}

// Session is one pairwise ratchet channel. The outbound side is created
// against a peer's published identity and one-time keys; the inbound side is
// derived from the resulting pre-key message.
type Session struct {
	p  *Provider
	st sessionState
}

// NewOutboundSession creates the sending half of a channel towards a peer,
// consuming one of the peer's published one-time keys. The first message it
// encrypts is a pre-key message; all later ones are normal messages.
func (p *Provider) NewOutboundSession(acct domain.Account, peerIdentity, peerOneTime id.Curve25519) (*Session, error) {
	a, ok := acct.(*Account)
	if !ok {
		return nil, ErrForeignSession
	}
	peerIK, err := decodeKey(string(peerIdentity))
	if err != nil {
		return nil, err
	}
	peerOTK, err := decodeKey(string(peerOneTime))
	if err != nil {
		return nil, err
	}

	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, err
	}

	dh1, err := crypto.DH(a.st.IdentityPriv, peerOTK)
	if err != nil {
		return nil, err
	}
	dh2, err := crypto.DH(ephPriv, peerIK)
	if err != nil {
		return nil, err
	}
	dh3, err := crypto.DH(ephPriv, peerOTK)
	if err != nil {
		return nil, err
	}
	secret := concatDH(dh1, dh2, dh3)
	defer memzero.Zero(secret)

	initiator, responder, err := deriveChains(secret, sessionRootInfo)
	if err != nil {
		return nil, err
	}
	return &Session{
		p: p,
		st: sessionState{
			ID:             sessionID(a.st.IdentityPub, ephPub, peerOTK),
			Inbound:        false,
			LocalIdentity:  a.st.IdentityPub,
			RemoteIdentity: peerIK,
			Ephemeral:      ephPub,
			UsedOneTimeKey: peerOTK,
			SendChain:      initiator,
			RecvChain:      responder,
		},
	}, nil
}

// NewInboundSession derives a session from a pre-key message, consuming the
// referenced one-time key from the account's pool. senderKey must match the
// identity key embedded in the message.
func (p *Provider) NewInboundSession(acct domain.Account, senderKey id.SenderKey, msg domain.Message) (domain.Session, error) {
	a, ok := acct.(*Account)
	if !ok {
		return nil, ErrForeignSession
	}
	if msg.Type != domain.MessagePreKey {
		return nil, ErrWrongMessageType
	}
	outer, err := parsePreKey(msg.Body)
	if err != nil {
		return nil, err
	}
	if senderKey != "" && string(senderKey) != outer.IdentityKey {
		return nil, ErrSenderKeyMismatch
	}

	senderIK, err := decodeKey(outer.IdentityKey)
	if err != nil {
		return nil, err
	}
	ephPub, err := decodeKey(outer.EphemeralKey)
	if err != nil {
		return nil, err
	}
	otkPub, err := decodeKey(outer.OneTimeKey)
	if err != nil {
		return nil, err
	}
	otkPriv, ok := a.lookupOneTimeKey(otkPub)
	if !ok {
		return nil, ErrOneTimeKeyMissing
	}

	dh1, err := crypto.DH(otkPriv, senderIK)
	if err != nil {
		return nil, err
	}
	dh2, err := crypto.DH(a.st.IdentityPriv, ephPub)
	if err != nil {
		return nil, err
	}
	dh3, err := crypto.DH(otkPriv, ephPub)
	if err != nil {
		return nil, err
	}
	secret := concatDH(dh1, dh2, dh3)
	defer memzero.Zero(secret)

	initiator, responder, err := deriveChains(secret, sessionRootInfo)
	if err != nil {
		return nil, err
	}
	return &Session{
		p: p,
		st: sessionState{
			ID:             sessionID(senderIK, ephPub, otkPub),
			Inbound:        true,
			LocalIdentity:  a.st.IdentityPub,
			RemoteIdentity: senderIK,
			Ephemeral:      ephPub,
			UsedOneTimeKey: otkPub,
			SendChain:      responder,
			RecvChain:      initiator,
		},
	}, nil
}

// UnpickleSession restores a session from its pickled form.
func (p *Provider) UnpickleSession(pickle domain.Pickle) (domain.Session, error) {
	s := &Session{p: p}
	if err := p.open(pickle, &s.st); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the session identifier, derived from the handshake key
// material and therefore identical on both ends.
func (s *Session) ID() id.SessionID { return s.st.ID }

// Matches reports whether a pre-key message belongs to this session's own
// handshake: same ephemeral key and same consumed one-time key.
func (s *Session) Matches(msg domain.Message) bool {
	if msg.Type != domain.MessagePreKey {
		return false
	}
	outer, err := parsePreKey(msg.Body)
	if err != nil {
		return false
	}
	eph, err := decodeKey(outer.EphemeralKey)
	if err != nil {
		return false
	}
	otk, err := decodeKey(outer.OneTimeKey)
	if err != nil {
		return false
	}
	return eph == s.st.Ephemeral && otk == s.st.UsedOneTimeKey
}

// Encrypt produces the next message on the sending chain. An outbound
// session emits its first message in pre-key form so the receiver can
// bootstrap; everything after that is a normal message.
func (s *Session) Encrypt(plaintext []byte) (domain.Message, error) {
	nextCK, mk := advanceChain(s.st.SendChain)
	counter := s.st.SendCounter

	ct, err := sealPayload(mk, counter, []byte(s.st.ID), plaintext)
	if err != nil {
		return domain.Message{}, err
	}
	inner, err := json.Marshal(ratchetPayload{Counter: counter, Ciphertext: ct})
	if err != nil {
		return domain.Message{}, err
	}

	s.st.SendChain = nextCK
	s.st.SendCounter++

	if !s.st.Inbound && !s.st.SentPreKey {
		s.st.SentPreKey = true
		outer, err := json.Marshal(preKeyPayload{
			IdentityKey:  crypto.B64(s.st.LocalIdentity[:]),
			EphemeralKey: crypto.B64(s.st.Ephemeral[:]),
			OneTimeKey:   crypto.B64(s.st.UsedOneTimeKey[:]),
			Inner:        crypto.B64(inner),
		})
		if err != nil {
			return domain.Message{}, err
		}
		return domain.Message{Type: domain.MessagePreKey, Body: crypto.B64(outer)}, nil
	}
	return domain.Message{Type: domain.MessageNormal, Body: crypto.B64(inner)}, nil
}

// Decrypt opens a message on the receiving chain, skipping forward over any
// counters the transport dropped. State only advances on success.
func (s *Session) Decrypt(msg domain.Message) ([]byte, error) {
	var inner ratchetPayload
	switch msg.Type {
	case domain.MessagePreKey:
		outer, err := parsePreKey(msg.Body)
		if err != nil {
			return nil, err
		}
		eph, err := decodeKey(outer.EphemeralKey)
		if err != nil {
			return nil, err
		}
		if eph != s.st.Ephemeral {
			return nil, ErrSenderKeyMismatch
		}
		raw, err := crypto.B64Decode(outer.Inner)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadMessageFormat, err)
		}
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadMessageFormat, err)
		}
	case domain.MessageNormal:
		raw, err := crypto.B64Decode(msg.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadMessageFormat, err)
		}
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadMessageFormat, err)
		}
	default:
		return nil, ErrWrongMessageType
	}

	if inner.Counter < s.st.RecvCounter {
		return nil, ErrRatchetAdvanced
	}
	if inner.Counter-s.st.RecvCounter > maxMessageGap {
		return nil, ErrCounterTooFar
	}
	mk, nextCK, nextCounter := chainAt(s.st.RecvChain, s.st.RecvCounter, inner.Counter)
	pt, err := openPayload(mk, inner.Counter, []byte(s.st.ID), inner.Ciphertext)
	if err != nil {
		return nil, err
	}
	s.st.RecvChain = nextCK
	s.st.RecvCounter = nextCounter
	return pt, nil
}

// Pickle serialises the session.
func (s *Session) Pickle() (domain.Pickle, error) {
	return s.p.seal(s.st)
}

// --- helpers ---

func parsePreKey(body string) (preKeyPayload, error) {
	raw, err := crypto.B64Decode(body)
	if err != nil {
		return preKeyPayload{}, fmt.Errorf("%w: %v", ErrBadMessageFormat, err)
	}
	var outer preKeyPayload
	if err := json.Unmarshal(raw, &outer); err != nil {
		return preKeyPayload{}, fmt.Errorf("%w: %v", ErrBadMessageFormat, err)
	}
	return outer, nil
}

func decodeKey(b64 string) (crypto.X25519Public, error) {
	var out crypto.X25519Public
	raw, err := crypto.B64Decode(b64)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrBadMessageFormat, err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("%w: bad key length %d", ErrBadMessageFormat, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func concatDH(parts ...[32]byte) []byte {
	out := make([]byte, 0, 32*len(parts))
	for _, p := range parts {
		out = append(out, p[:]...)
	}
	return out
}

// sessionID hashes the handshake triple so both ends derive the same id.
func sessionID(senderIdentity, ephemeral, oneTime crypto.X25519Public) id.SessionID {
	h := sha256.New()
	h.Write(senderIdentity[:])
	h.Write(ephemeral[:])
	h.Write(oneTime[:])
	return id.SessionID(crypto.B64(h.Sum(nil)))
}

var _ domain.Session = (*Session)(nil)
