package olm_test

import (
	"crypto/ed25519"
	"testing"

	"olmbox/internal/crypto"
	"olmbox/internal/domain"
	"olmbox/internal/olm"
)

// newAccount returns a fresh account on the given provider.
func newAccount(t *testing.T, p *olm.Provider) domain.Account {
	t.Helper()
	acct, err := p.NewAccount()
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	return acct
}

func TestAccount_IdentityKeysStable(t *testing.T) {
	p := olm.NewProvider("pass")
	acct := newAccount(t, p)

	first := acct.IdentityKeys()
	if first.Curve25519 == "" || first.Ed25519 == "" {
		t.Fatalf("empty identity keys: %+v", first)
	}
	if second := acct.IdentityKeys(); second != first {
		t.Fatalf("identity keys changed between calls: %+v vs %+v", first, second)
	}
}

func TestAccount_SignVerifies(t *testing.T) {
	p := olm.NewProvider("pass")
	acct := newAccount(t, p)

	msg := []byte(`{"a":1}`)
	sig, err := acct.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	rawSig, err := crypto.B64Decode(sig)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	rawPub, err := crypto.B64Decode(string(acct.IdentityKeys().Ed25519))
	if err != nil {
		t.Fatalf("decode signing key: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(rawPub), msg, rawSig) {
		t.Fatal("signature did not verify against the account's Ed25519 key")
	}
}

func TestAccount_OneTimeKeyPool(t *testing.T) {
	p := olm.NewProvider("pass")
	acct := newAccount(t, p)

	initial := len(acct.OneTimeKeys())
	if initial == 0 {
		t.Fatal("fresh account has no one-time keys")
	}

	if err := acct.GenerateOneTimeKeys(5); err != nil {
		t.Fatalf("GenerateOneTimeKeys: %v", err)
	}
	if got := len(acct.OneTimeKeys()); got != initial+5 {
		t.Fatalf("pool size = %d, want %d", got, initial+5)
	}

	acct.MarkKeysAsPublished()
	if got := len(acct.OneTimeKeys()); got != 0 {
		t.Fatalf("published keys still reported as unpublished: %d", got)
	}

	// Refill after publishing; only the new keys show up.
	if err := acct.GenerateOneTimeKeys(3); err != nil {
		t.Fatalf("GenerateOneTimeKeys: %v", err)
	}
	if got := len(acct.OneTimeKeys()); got != 3 {
		t.Fatalf("pool size after refill = %d, want 3", got)
	}
}

func TestAccount_PickleRoundTrip(t *testing.T) {
	p := olm.NewProvider("pass")
	acct := newAccount(t, p)

	pickle, err := acct.Pickle()
	if err != nil {
		t.Fatalf("Pickle: %v", err)
	}
	restored, err := p.UnpickleAccount(pickle)
	if err != nil {
		t.Fatalf("UnpickleAccount: %v", err)
	}
	if restored.IdentityKeys() != acct.IdentityKeys() {
		t.Fatal("restored account has different identity keys")
	}
	if got, want := len(restored.OneTimeKeys()), len(acct.OneTimeKeys()); got != want {
		t.Fatalf("restored pool size = %d, want %d", got, want)
	}
}

func TestAccount_UnpickleWrongPassphraseFails(t *testing.T) {
	acct := newAccount(t, olm.NewProvider("right"))
	pickle, err := acct.Pickle()
	if err != nil {
		t.Fatalf("Pickle: %v", err)
	}
	if _, err := olm.NewProvider("wrong").UnpickleAccount(pickle); err == nil {
		t.Fatal("unpickle with wrong passphrase succeeded")
	}
}

func TestAccount_UnpickleGarbageFails(t *testing.T) {
	p := olm.NewProvider("pass")
	if _, err := p.UnpickleAccount("not a pickle"); err == nil {
		t.Fatal("unpickle of garbage succeeded")
	}
}
