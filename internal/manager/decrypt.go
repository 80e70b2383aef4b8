package manager

import (
	"maunium.net/go/mautrix/id"

	"olmbox/internal/domain"
)

// attemptOutcome tags one per-session decrypt attempt. Wrong-session and
// provider failures are indistinguishable to the dispatch loop by design:
// both mean "try the next session".
type attemptOutcome int

const (
	outcomeDecrypted attemptOutcome = iota
	outcomeWrongSession
	outcomeFailed
)

// attempt tries one session against msg without touching the store.
func (m *Manager) attempt(sess domain.Session, msg domain.Message) ([]byte, attemptOutcome) {
	if msg.Type == domain.MessagePreKey && !sess.Matches(msg) {
		return nil, outcomeWrongSession
	}
	plaintext, err := sess.Decrypt(msg)
	if err != nil {
		m.log.Debug().
			Err(err).
			Str("session_id", string(sess.ID())).
			Msg("session rejected message")
		return nil, outcomeFailed
	}
	return plaintext, outcomeDecrypted
}

// Decrypt dispatches one pairwise ciphertext from sender.
//
// Sessions are tried in creation order; pre-key messages are only attempted
// against sessions whose handshake they belong to. The first success wins,
// and the advanced ratchet state is persisted before the plaintext is
// returned. If no session succeeds and the message is an initial (pre-key)
// message, a new inbound session is derived from the account, appended to
// the end of the sender's list, persisted, and tried exactly once more.
//
// ok is false when the message is undecryptable: no matching session, or
// session creation failed. That is a normal, displayable outcome, not an
// error. err is reserved for store failures, which must not be swallowed.
func (m *Manager) Decrypt(sender id.UserID, senderKey id.SenderKey, msg domain.Message) ([]byte, bool, error) {
	if m.disabled() {
		return nil, false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sess := range m.sessions.For(sender) {
		plaintext, outcome := m.attempt(sess, msg)
		if outcome != outcomeDecrypted {
			continue
		}
		if err := m.persistSessionLocked(sender, sess); err != nil {
			return nil, false, err
		}
		return plaintext, true, nil
	}

	if msg.Type != domain.MessagePreKey {
		m.log.Debug().
			Str("sender", string(sender)).
			Msg("no matching session for message")
		return nil, false, nil
	}

	sess, err := m.createInboundSession(sender, senderKey, msg)
	if err != nil {
		return nil, false, err
	}
	if sess == nil {
		return nil, false, nil
	}
	plaintext, err := sess.Decrypt(msg)
	if err != nil {
		m.log.Warn().
			Err(err).
			Str("sender", string(sender)).
			Msg("freshly created session failed to decrypt its own pre-key message")
		return nil, false, nil
	}
	if err := m.persistSessionLocked(sender, sess); err != nil {
		return nil, false, err
	}
	return plaintext, true, nil
}

// createInboundSession derives a session from a pre-key message, registers
// it at the end of sender's list, persists the new row, and consumes the
// used one-time key from the account. A nil session with nil error means the
// key material was unusable; store failures are returned as errors.
func (m *Manager) createInboundSession(sender id.UserID, senderKey id.SenderKey, msg domain.Message) (domain.Session, error) {
	m.log.Debug().Str("sender", string(sender)).Msg("creating session")
	sess, err := m.provider.NewInboundSession(m.account, senderKey, msg)
	if err != nil {
		m.log.Warn().
			Err(err).
			Str("sender", string(sender)).
			Msg("inbound session creation failed")
		return nil, nil
	}
	m.sessions.Add(sender, sess)

	pickle, err := sess.Pickle()
	if err != nil {
		return nil, err
	}
	if err := m.store.InsertSession(sender, sess.ID(), pickle); err != nil {
		return nil, err
	}

	if err := m.account.RemoveOneTimeKeys(sess); err != nil {
		return nil, err
	}
	if err := m.persistAccount(); err != nil {
		return nil, err
	}
	m.log.Info().
		Str("sender", string(sender)).
		Str("session_id", string(sess.ID())).
		Msg("created session")
	return sess, nil
}

// GroupDecrypt opens one group ciphertext for (room, sessionID).
//
// Group sessions are provisioned out-of-band via CreateGroupSession, never
// implicitly here: the key material for a room arrives through a separate,
// already-authenticated channel, not inside the ciphertext. An unknown
// session id therefore yields ok == false. The advanced ratchet state is
// persisted before the plaintext is returned.
func (m *Manager) GroupDecrypt(room id.RoomID, sessionID id.SessionID, ciphertext string) ([]byte, bool, error) {
	if m.disabled() {
		return nil, false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.groups[room][sessionID]
	if !ok {
		m.log.Debug().
			Str("room_id", string(room)).
			Str("session_id", string(sessionID)).
			Msg("unknown group session")
		return nil, false, nil
	}
	plaintext, err := sess.Decrypt(ciphertext)
	if err != nil {
		m.log.Debug().
			Err(err).
			Str("room_id", string(room)).
			Str("session_id", string(sessionID)).
			Msg("group decrypt failed")
		return nil, false, nil
	}

	pickle, err := sess.Pickle()
	if err != nil {
		return nil, false, err
	}
	if err := m.store.UpdateGroupSession(room, sessionID, pickle); err != nil {
		return nil, false, err
	}
	return plaintext, true, nil
}

// CreateGroupSession provisions a decrypt-only group session from a shared
// session key and persists it. Re-provisioning the same (room, sessionID)
// overwrites the previous session; that is how key rotation lands.
func (m *Manager) CreateGroupSession(room id.RoomID, sessionID id.SessionID, key domain.GroupSessionKey) error {
	if m.disabled() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.Debug().Str("room_id", string(room)).Msg("creating group session")
	sess, err := m.provider.NewInboundGroupSession(key)
	if err != nil {
		return err
	}
	m.registerGroupSession(room, sessionID, sess)

	pickle, err := sess.Pickle()
	if err != nil {
		return err
	}
	return m.store.UpsertGroupSession(room, sessionID, pickle)
}
