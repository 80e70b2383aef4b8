package manager

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"olmbox/internal/crypto"
	"olmbox/internal/domain"
	"olmbox/internal/store"
)

// Config carries everything needed to open a manager for one account.
type Config struct {
	UserID   id.UserID
	DeviceID id.DeviceID
	// Dir is the session storage directory; the database file name is
	// derived from (UserID, DeviceID).
	Dir string
	// Provider supplies the cryptographic primitives. A nil provider
	// disables the manager: every operation becomes a silent no-op.
	Provider domain.Provider
	Logger   zerolog.Logger
}

// Manager owns the encryption state of a single (user, device) account.
//
// All operations are serialised by an internal mutex so that "decrypt,
// advance ratchet, persist" runs as one unit.
type Manager struct {
	mu  sync.Mutex
	log zerolog.Logger

	user   id.UserID
	device id.DeviceID

	provider domain.Provider
	store    domain.CryptoStore

	account    domain.Account
	sessions   *sessionRegistry
	groups     map[id.RoomID]map[id.SessionID]domain.GroupSession
	deviceKeys map[id.UserID][]domain.DeviceKeyRecord
}

// Open builds a manager for (cfg.UserID, cfg.DeviceID), creating the store
// and schema if needed. An existing account row restores the full state;
// otherwise a fresh account is generated and persisted immediately.
//
// With a nil provider the returned manager is disabled and touches nothing
// on disk.
func Open(cfg Config) (*Manager, error) {
	log := cfg.Logger.With().
		Str("component", "encryption_manager").
		Stringer("user_id", cfg.UserID).
		Logger()

	m := &Manager{
		log:        log,
		user:       cfg.UserID,
		device:     cfg.DeviceID,
		provider:   cfg.Provider,
		sessions:   newSessionRegistry(),
		groups:     make(map[id.RoomID]map[id.SessionID]domain.GroupSession),
		deviceKeys: make(map[id.UserID][]domain.DeviceKeyRecord),
	}
	if cfg.Provider == nil {
		log.Debug().Msg("encryption provider unavailable, manager disabled")
		return m, nil
	}

	path := filepath.Join(cfg.Dir, store.DBFileName(cfg.UserID, cfg.DeviceID))
	st, err := store.Open(path, log)
	if err != nil {
		return nil, err
	}
	m.store = st

	accountPickle, found, err := st.Account(cfg.UserID)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if found {
		if err := m.restore(accountPickle); err != nil {
			_ = st.Close()
			return nil, err
		}
		return m, nil
	}

	account, err := cfg.Provider.NewAccount()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create account: %w", err)
	}
	pickle, err := account.Pickle()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("pickle account: %w", err)
	}
	if err := st.InsertAccount(cfg.UserID, pickle); err != nil {
		_ = st.Close()
		return nil, err
	}
	m.account = account
	log.Info().Msg("created fresh encryption account")
	return m, nil
}

// restore loads the account and every session from the store. Any unpickle
// failure aborts the whole load; serving with partial state is worse than
// failing loudly.
func (m *Manager) restore(accountPickle domain.Pickle) error {
	account, err := m.provider.UnpickleAccount(accountPickle)
	if err != nil {
		return fmt.Errorf("%w: account: %v", domain.ErrLoadCorrupt, err)
	}
	m.account = account

	rows, err := m.store.Sessions()
	if err != nil {
		return err
	}
	for _, row := range rows {
		sess, err := m.provider.UnpickleSession(row.Pickle)
		if err != nil {
			return fmt.Errorf("%w: session %s/%s: %v",
				domain.ErrLoadCorrupt, row.UserID, row.SessionID, err)
		}
		m.sessions.Add(row.UserID, sess)
	}

	groupRows, err := m.store.GroupSessions()
	if err != nil {
		return err
	}
	for _, row := range groupRows {
		sess, err := m.provider.UnpickleGroupSession(row.Pickle)
		if err != nil {
			return fmt.Errorf("%w: group session %s/%s: %v",
				domain.ErrLoadCorrupt, row.RoomID, row.SessionID, err)
		}
		m.registerGroupSession(row.RoomID, row.SessionID, sess)
	}

	m.log.Debug().
		Int("sessions", len(rows)).
		Int("group_sessions", len(groupRows)).
		Msg("restored encryption state")
	return nil
}

// Close releases the backing store.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}

func (m *Manager) disabled() bool { return m.provider == nil }

// UserID returns the owning user.
func (m *Manager) UserID() id.UserID { return m.user }

// DeviceID returns the owning device.
func (m *Manager) DeviceID() id.DeviceID { return m.device }

// Enabled reports whether the capability gate is on.
func (m *Manager) Enabled() bool { return !m.disabled() }

// IdentityKeys returns the account's public identity keys, or the zero
// value when disabled.
func (m *Manager) IdentityKeys() domain.IdentityKeys {
	if m.disabled() {
		return domain.IdentityKeys{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.account.IdentityKeys()
}

// SignJSON canonicalises payload (sorted keys, compact separators) and signs
// it with the account's long-term Ed25519 key.
func (m *Manager) SignJSON(payload any) (string, error) {
	if m.disabled() {
		return "", nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	canonical, err := crypto.CanonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalise payload: %w", err)
	}
	return m.account.Sign(canonical)
}

// OneTimeKeys returns the account's unpublished one-time keys.
func (m *Manager) OneTimeKeys() map[string]id.Curve25519 {
	if m.disabled() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.account.OneTimeKeys()
}

// GenerateOneTimeKeys refills the pool and persists the account.
func (m *Manager) GenerateOneTimeKeys(count int) error {
	if m.disabled() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.account.GenerateOneTimeKeys(count); err != nil {
		return err
	}
	return m.persistAccount()
}

// MarkKeysAsPublished flags the one-time key pool as uploaded and persists
// the account.
func (m *Manager) MarkKeysAsPublished() error {
	if m.disabled() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.account.MarkKeysAsPublished()
	return m.persistAccount()
}

// AddDeviceKeys records a remote device's keys for display/verification.
func (m *Manager) AddDeviceKeys(rec domain.DeviceKeyRecord) {
	if m.disabled() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviceKeys[rec.UserID] = append(m.deviceKeys[rec.UserID], rec)
}

// DeviceKeys returns the known key records for user, in registration order.
func (m *Manager) DeviceKeys(user id.UserID) []domain.DeviceKeyRecord {
	if m.disabled() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DeviceKeyRecord(nil), m.deviceKeys[user]...)
}

// KnownUsers lists users with recorded device keys, sorted.
func (m *Manager) KnownUsers() []id.UserID {
	if m.disabled() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]id.UserID, 0, len(m.deviceKeys))
	for user := range m.deviceKeys {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SessionIDs lists sender's pairwise sessions in creation order.
func (m *Manager) SessionIDs(sender id.UserID) []id.SessionID {
	if m.disabled() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions := m.sessions.For(sender)
	out := make([]id.SessionID, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.ID())
	}
	return out
}

// GroupSessionIDs lists the provisioned group sessions for room, sorted.
func (m *Manager) GroupSessionIDs(room id.RoomID) []id.SessionID {
	if m.disabled() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]id.SessionID, 0, len(m.groups[room]))
	for sid := range m.groups[room] {
		out = append(out, sid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Senders lists users with at least one pairwise session, sorted.
func (m *Manager) Senders() []id.UserID {
	if m.disabled() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions.Senders()
}

// Save re-persists the account and every pairwise session. Group sessions
// are persisted on every mutation already; this is the bulk flush used at
// shutdown, mirroring per-operation writes.
func (m *Manager) Save() error {
	if m.disabled() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.persistAccount(); err != nil {
		return err
	}
	for _, sender := range m.sessions.Senders() {
		for _, sess := range m.sessions.For(sender) {
			if err := m.persistSessionLocked(sender, sess); err != nil {
				return err
			}
		}
	}
	return nil
}

// persistAccount writes the account pickle. Callers hold the mutex.
func (m *Manager) persistAccount() error {
	pickle, err := m.account.Pickle()
	if err != nil {
		return fmt.Errorf("pickle account: %w", err)
	}
	return m.store.UpdateAccount(m.user, pickle)
}

// persistSessionLocked updates sess's row. Callers hold the mutex.
func (m *Manager) persistSessionLocked(sender id.UserID, sess domain.Session) error {
	pickle, err := sess.Pickle()
	if err != nil {
		return fmt.Errorf("pickle session %s: %w", sess.ID(), err)
	}
	return m.store.UpdateSession(sender, sess.ID(), pickle)
}

func (m *Manager) registerGroupSession(room id.RoomID, sid id.SessionID, sess domain.GroupSession) {
	if m.groups[room] == nil {
		m.groups[room] = make(map[id.SessionID]domain.GroupSession)
	}
	m.groups[room][sid] = sess
}
