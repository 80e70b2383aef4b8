package store_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"olmbox/internal/domain"
	"olmbox/internal/store"
)

func openStore(t *testing.T, path string) *store.CryptoStore {
	t.Helper()
	s, err := store.Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDBFileName(t *testing.T) {
	got := store.DBFileName("@alice:example.org", "DEVICEID")
	if got != "@alice:example.org_DEVICEID.db" {
		t.Fatalf("DBFileName = %q", got)
	}
}

func TestOpen_SchemaIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crypto.db")

	first := openStore(t, path)
	if err := first.InsertAccount("@alice:example.org", "pickle-1"); err != nil {
		t.Fatalf("InsertAccount: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening must keep existing tables and their contents.
	second := openStore(t, path)
	pickle, found, err := second.Account("@alice:example.org")
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if !found || pickle != "pickle-1" {
		t.Fatalf("Account = (%q, %v), want (pickle-1, true)", pickle, found)
	}
}

func TestAccount_InsertUpdateLoad(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "crypto.db"))

	if _, found, err := s.Account("@alice:example.org"); err != nil || found {
		t.Fatalf("Account on empty store = (found=%v, err=%v)", found, err)
	}
	if err := s.InsertAccount("@alice:example.org", "v1"); err != nil {
		t.Fatalf("InsertAccount: %v", err)
	}
	if err := s.UpdateAccount("@alice:example.org", "v2"); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	pickle, found, err := s.Account("@alice:example.org")
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if !found || pickle != "v2" {
		t.Fatalf("Account = (%q, %v), want (v2, true)", pickle, found)
	}
}

func TestSessions_InsertionOrderPreserved(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "crypto.db"))

	var want []id.SessionID
	for i := 0; i < 5; i++ {
		sid := id.SessionID(fmt.Sprintf("session-%d", i))
		user := id.UserID("@bob:example.org")
		if i%2 == 1 {
			user = "@carol:example.org"
		}
		if err := s.InsertSession(user, sid, domain.Pickle(fmt.Sprintf("pickle-%d", i))); err != nil {
			t.Fatalf("InsertSession: %v", err)
		}
		want = append(want, sid)
	}

	rows, err := s.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(rows) != len(want) {
		t.Fatalf("len(rows) = %d, want %d", len(rows), len(want))
	}
	for i, row := range rows {
		if row.SessionID != want[i] {
			t.Fatalf("rows[%d].SessionID = %s, want %s", i, row.SessionID, want[i])
		}
	}
}

func TestUpdateSession_TargetsOneRow(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "crypto.db"))

	if err := s.InsertSession("@bob:example.org", "sid-a", "a1"); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}
	if err := s.InsertSession("@bob:example.org", "sid-b", "b1"); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}
	if err := s.UpdateSession("@bob:example.org", "sid-b", "b2"); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	rows, err := s.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if rows[0].Pickle != "a1" || rows[1].Pickle != "b2" {
		t.Fatalf("pickles = %q, %q; want a1, b2", rows[0].Pickle, rows[1].Pickle)
	}
}

func TestGroupSessions_UpsertOverwrites(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "crypto.db"))

	if err := s.UpsertGroupSession("!room:example.org", "gsid", "v1"); err != nil {
		t.Fatalf("UpsertGroupSession: %v", err)
	}
	if err := s.UpsertGroupSession("!room:example.org", "gsid", "v2"); err != nil {
		t.Fatalf("UpsertGroupSession: %v", err)
	}

	rows, err := s.GroupSessions()
	if err != nil {
		t.Fatalf("GroupSessions: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0].Pickle != "v2" {
		t.Fatalf("pickle = %q, want v2", rows[0].Pickle)
	}

	if err := s.UpdateGroupSession("!room:example.org", "gsid", "v3"); err != nil {
		t.Fatalf("UpdateGroupSession: %v", err)
	}
	rows, err = s.GroupSessions()
	if err != nil {
		t.Fatalf("GroupSessions: %v", err)
	}
	if rows[0].Pickle != "v3" {
		t.Fatalf("pickle = %q, want v3", rows[0].Pickle)
	}
}
