package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"
	_ "modernc.org/sqlite"

	"olmbox/internal/domain"
)

// DBFileName returns the deterministic database file name for an account.
func DBFileName(user id.UserID, device id.DeviceID) string {
	return fmt.Sprintf("%s_%s.db", user, device)
}

// CryptoStore persists pickled account, pairwise-session and group-session
// state in SQLite. The manager is the sole writer; a mutex serialises
// statement use across calls.
type CryptoStore struct {
	db  *sql.DB
	log zerolog.Logger
	mu  sync.Mutex
}

// Open opens (or creates) the database at path and ensures the schema.
// Opening an existing database is a no-op beyond the schema probe.
func Open(path string, log zerolog.Logger) (*CryptoStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open crypto store: %w", err)
	}
	s := &CryptoStore{db: db, log: log.With().Str("component", "crypto_store").Logger()}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *CryptoStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// ensureSchema probes sqlite_master per table and creates what is missing.
func (s *CryptoStore) ensureSchema() error {
	tables := []struct {
		name   string
		create string
	}{
		{"olmaccount", "CREATE TABLE olmaccount (user TEXT, pickle TEXT)"},
		{"olmsessions", "CREATE TABLE olmsessions (user TEXT, session_id TEXT, pickle TEXT)"},
		{"inbound_group_sessions", "CREATE TABLE inbound_group_sessions (room_id TEXT, session_id TEXT, pickle TEXT)"},
	}
	for _, t := range tables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", t.name,
		).Scan(&name)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := s.db.Exec(t.create); err != nil {
				return fmt.Errorf("create %s: %w", t.name, err)
			}
			s.log.Debug().Str("table", t.name).Msg("created table")
		case err != nil:
			return fmt.Errorf("probe %s: %w", t.name, err)
		}
	}
	return nil
}

// ---------- account ----------

// InsertAccount stores a freshly created account row.
func (s *CryptoStore) InsertAccount(user id.UserID, p domain.Pickle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("INSERT INTO olmaccount VALUES (?, ?)", string(user), string(p))
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// UpdateAccount replaces the pickle of an existing account row.
func (s *CryptoStore) UpdateAccount(user id.UserID, p domain.Pickle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE olmaccount SET pickle = ? WHERE user = ?", string(p), string(user))
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

// Account fetches the account pickle for user, reporting whether it exists.
func (s *CryptoStore) Account(user id.UserID) (domain.Pickle, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pickle string
	err := s.db.QueryRow("SELECT pickle FROM olmaccount WHERE user = ?", string(user)).Scan(&pickle)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load account: %w", err)
	}
	return domain.Pickle(pickle), true, nil
}

// ---------- pairwise sessions ----------

// InsertSession stores a new session row.
func (s *CryptoStore) InsertSession(user id.UserID, sessionID id.SessionID, p domain.Pickle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("INSERT INTO olmsessions VALUES (?, ?, ?)",
		string(user), string(sessionID), string(p))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// UpdateSession replaces the pickle of an existing session row.
func (s *CryptoStore) UpdateSession(user id.UserID, sessionID id.SessionID, p domain.Pickle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE olmsessions SET pickle = ? WHERE user = ? AND session_id = ?",
		string(p), string(user), string(sessionID))
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Sessions returns every session row in insertion order.
func (s *CryptoStore) Sessions() ([]domain.SessionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT user, session_id, pickle FROM olmsessions ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionRow
	for rows.Next() {
		var user, sid, pickle string
		if err := rows.Scan(&user, &sid, &pickle); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, domain.SessionRow{
			UserID:    id.UserID(user),
			SessionID: id.SessionID(sid),
			Pickle:    domain.Pickle(pickle),
		})
	}
	return out, rows.Err()
}

// ---------- group sessions ----------

// UpsertGroupSession inserts or overwrites the row for (room, sessionID).
// Overwriting supports key rotation re-provisioning the same identity pair.
func (s *CryptoStore) UpsertGroupSession(room id.RoomID, sessionID id.SessionID, p domain.Pickle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"UPDATE inbound_group_sessions SET pickle = ? WHERE room_id = ? AND session_id = ?",
		string(p), string(room), string(sessionID))
	if err != nil {
		return fmt.Errorf("upsert group session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upsert group session: %w", err)
	}
	if n == 0 {
		_, err = s.db.Exec("INSERT INTO inbound_group_sessions VALUES (?, ?, ?)",
			string(room), string(sessionID), string(p))
		if err != nil {
			return fmt.Errorf("insert group session: %w", err)
		}
	}
	return nil
}

// UpdateGroupSession replaces the pickle of an existing group session row.
func (s *CryptoStore) UpdateGroupSession(room id.RoomID, sessionID id.SessionID, p domain.Pickle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"UPDATE inbound_group_sessions SET pickle = ? WHERE room_id = ? AND session_id = ?",
		string(p), string(room), string(sessionID))
	if err != nil {
		return fmt.Errorf("update group session: %w", err)
	}
	return nil
}

// GroupSessions returns every group session row.
func (s *CryptoStore) GroupSessions() ([]domain.GroupSessionRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT room_id, session_id, pickle FROM inbound_group_sessions ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("list group sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.GroupSessionRow
	for rows.Next() {
		var room, sid, pickle string
		if err := rows.Scan(&room, &sid, &pickle); err != nil {
			return nil, fmt.Errorf("scan group session: %w", err)
		}
		out = append(out, domain.GroupSessionRow{
			RoomID:    id.RoomID(room),
			SessionID: id.SessionID(sid),
			Pickle:    domain.Pickle(pickle),
		})
	}
	return out, rows.Err()
}

// Compile-time assertion that CryptoStore implements domain.CryptoStore.
var _ domain.CryptoStore = (*CryptoStore)(nil)
