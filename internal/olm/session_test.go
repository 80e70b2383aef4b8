package olm_test

import (
	"encoding/json"
	"errors"
	"testing"

	"maunium.net/go/mautrix/id"

	"olmbox/internal/crypto"
	"olmbox/internal/domain"
	"olmbox/internal/olm"
)

// anyOneTimeKey pulls one unpublished one-time key from acct's pool.
func anyOneTimeKey(t *testing.T, acct domain.Account) id.Curve25519 {
	t.Helper()
	for _, key := range acct.OneTimeKeys() {
		return key
	}
	t.Fatal("account has no one-time keys")
	return ""
}

// newPair sets up alice with an outbound session towards bob.
func newPair(t *testing.T, p *olm.Provider) (alice, bob domain.Account, out *olm.Session) {
	t.Helper()
	alice = newAccount(t, p)
	bob = newAccount(t, p)

	out, err := p.NewOutboundSession(alice, bob.IdentityKeys().Curve25519, anyOneTimeKey(t, bob))
	if err != nil {
		t.Fatalf("NewOutboundSession: %v", err)
	}
	return alice, bob, out
}

func TestSession_PreKeyRoundTrip(t *testing.T) {
	p := olm.NewProvider("pass")
	alice, bob, out := newPair(t, p)

	msg, err := out.Encrypt([]byte("hello"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if msg.Type != domain.MessagePreKey {
		t.Fatalf("first message type = %d, want pre-key", msg.Type)
	}

	senderKey := id.SenderKey(alice.IdentityKeys().Curve25519)
	in, err := p.NewInboundSession(bob, senderKey, msg)
	if err != nil {
		t.Fatalf("NewInboundSession: %v", err)
	}
	if in.ID() != out.ID() {
		t.Fatalf("session ids differ: %s vs %s", in.ID(), out.ID())
	}
	if !in.Matches(msg) {
		t.Fatal("inbound session does not match its own pre-key message")
	}

	pt, err := in.Decrypt(msg)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(pt) != "hello" {
		t.Fatalf("got %q, want %q", pt, "hello")
	}
}

func TestSession_SecondMessageIsNormal(t *testing.T) {
	p := olm.NewProvider("pass")
	alice, bob, out := newPair(t, p)

	first, err := out.Encrypt([]byte("one"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	second, err := out.Encrypt([]byte("two"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if second.Type != domain.MessageNormal {
		t.Fatalf("second message type = %d, want normal", second.Type)
	}

	in, err := p.NewInboundSession(bob, id.SenderKey(alice.IdentityKeys().Curve25519), first)
	if err != nil {
		t.Fatalf("NewInboundSession: %v", err)
	}
	if _, err := in.Decrypt(first); err != nil {
		t.Fatalf("decrypt first: %v", err)
	}
	pt, err := in.Decrypt(second)
	if err != nil {
		t.Fatalf("decrypt second: %v", err)
	}
	if string(pt) != "two" {
		t.Fatalf("got %q, want %q", pt, "two")
	}
}

func TestSession_Reply(t *testing.T) {
	p := olm.NewProvider("pass")
	alice, bob, out := newPair(t, p)

	first, err := out.Encrypt([]byte("ping"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	in, err := p.NewInboundSession(bob, id.SenderKey(alice.IdentityKeys().Curve25519), first)
	if err != nil {
		t.Fatalf("NewInboundSession: %v", err)
	}
	if _, err := in.Decrypt(first); err != nil {
		t.Fatalf("decrypt first: %v", err)
	}

	reply, err := in.Encrypt([]byte("pong"))
	if err != nil {
		t.Fatalf("Encrypt reply: %v", err)
	}
	if reply.Type != domain.MessageNormal {
		t.Fatalf("reply type = %d, want normal", reply.Type)
	}
	pt, err := out.Decrypt(reply)
	if err != nil {
		t.Fatalf("decrypt reply: %v", err)
	}
	if string(pt) != "pong" {
		t.Fatalf("got %q, want %q", pt, "pong")
	}
}

func TestSession_SkipsDroppedMessages(t *testing.T) {
	p := olm.NewProvider("pass")
	alice, bob, out := newPair(t, p)

	first, err := out.Encrypt([]byte("m0"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	dropped, err := out.Encrypt([]byte("m1"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	third, err := out.Encrypt([]byte("m2"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	in, err := p.NewInboundSession(bob, id.SenderKey(alice.IdentityKeys().Curve25519), first)
	if err != nil {
		t.Fatalf("NewInboundSession: %v", err)
	}
	if _, err := in.Decrypt(first); err != nil {
		t.Fatalf("decrypt first: %v", err)
	}

	// m1 never arrives; m2 still opens.
	pt, err := in.Decrypt(third)
	if err != nil {
		t.Fatalf("decrypt after gap: %v", err)
	}
	if string(pt) != "m2" {
		t.Fatalf("got %q, want %q", pt, "m2")
	}

	// The skipped message is now behind the ratchet.
	if _, err := in.Decrypt(dropped); !errors.Is(err, olm.ErrRatchetAdvanced) {
		t.Fatalf("decrypt of stale message: err = %v, want ErrRatchetAdvanced", err)
	}
}

func TestSession_ReplayRejected(t *testing.T) {
	p := olm.NewProvider("pass")
	alice, bob, out := newPair(t, p)

	first, err := out.Encrypt([]byte("once"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	second, err := out.Encrypt([]byte("twice"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	in, err := p.NewInboundSession(bob, id.SenderKey(alice.IdentityKeys().Curve25519), first)
	if err != nil {
		t.Fatalf("NewInboundSession: %v", err)
	}
	if _, err := in.Decrypt(first); err != nil {
		t.Fatalf("decrypt first: %v", err)
	}
	if _, err := in.Decrypt(second); err != nil {
		t.Fatalf("decrypt second: %v", err)
	}
	if _, err := in.Decrypt(second); !errors.Is(err, olm.ErrRatchetAdvanced) {
		t.Fatalf("replay: err = %v, want ErrRatchetAdvanced", err)
	}
}

func TestSession_RejectsFarFutureCounter(t *testing.T) {
	p := olm.NewProvider("pass")
	alice, bob, out := newPair(t, p)

	first, err := out.Encrypt([]byte("m0"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	in, err := p.NewInboundSession(bob, id.SenderKey(alice.IdentityKeys().Curve25519), first)
	if err != nil {
		t.Fatalf("NewInboundSession: %v", err)
	}
	if _, err := in.Decrypt(first); err != nil {
		t.Fatalf("decrypt first: %v", err)
	}

	// The counter is attacker-controlled on normal messages; a huge value
	// must be rejected before the chain walk, not after it.
	forged, err := json.Marshal(struct {
		Counter    uint32 `json:"counter"`
		Ciphertext []byte `json:"ciphertext"`
	}{Counter: 5_000_000, Ciphertext: []byte("junk")})
	if err != nil {
		t.Fatalf("marshal forged payload: %v", err)
	}
	msg := domain.Message{Type: domain.MessageNormal, Body: crypto.B64(forged)}
	if _, err := in.Decrypt(msg); !errors.Is(err, olm.ErrCounterTooFar) {
		t.Fatalf("far-future counter: err = %v, want ErrCounterTooFar", err)
	}

	// The session still works afterwards.
	second, err := out.Encrypt([]byte("m1"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pt, err := in.Decrypt(second)
	if err != nil {
		t.Fatalf("decrypt second: %v", err)
	}
	if string(pt) != "m1" {
		t.Fatalf("got %q, want %q", pt, "m1")
	}
}

func TestSession_MatchesRejectsForeignPreKey(t *testing.T) {
	p := olm.NewProvider("pass")
	alice, bob, out := newPair(t, p)

	msg, err := out.Encrypt([]byte("hi"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	in, err := p.NewInboundSession(bob, id.SenderKey(alice.IdentityKeys().Curve25519), msg)
	if err != nil {
		t.Fatalf("NewInboundSession: %v", err)
	}

	// A second handshake from a different outbound session must not match.
	other, err := p.NewOutboundSession(alice, bob.IdentityKeys().Curve25519, anyOneTimeKey(t, bob))
	if err != nil {
		t.Fatalf("NewOutboundSession: %v", err)
	}
	foreign, err := other.Encrypt([]byte("hi again"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if in.Matches(foreign) {
		t.Fatal("session matched a pre-key message from a different handshake")
	}
}

func TestSession_SenderKeyMismatch(t *testing.T) {
	p := olm.NewProvider("pass")
	_, bob, out := newPair(t, p)

	msg, err := out.Encrypt([]byte("hi"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	// Claim the message came from bob's own key.
	wrongKey := id.SenderKey(bob.IdentityKeys().Curve25519)
	if _, err := p.NewInboundSession(bob, wrongKey, msg); !errors.Is(err, olm.ErrSenderKeyMismatch) {
		t.Fatalf("err = %v, want ErrSenderKeyMismatch", err)
	}
}

func TestSession_OneTimeKeyMissing(t *testing.T) {
	p := olm.NewProvider("pass")
	alice, bob, out := newPair(t, p)

	msg, err := out.Encrypt([]byte("hi"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	// Consume the referenced key, then replay the handshake.
	in, err := p.NewInboundSession(bob, id.SenderKey(alice.IdentityKeys().Curve25519), msg)
	if err != nil {
		t.Fatalf("NewInboundSession: %v", err)
	}
	if err := bob.RemoveOneTimeKeys(in); err != nil {
		t.Fatalf("RemoveOneTimeKeys: %v", err)
	}
	if _, err := p.NewInboundSession(bob, id.SenderKey(alice.IdentityKeys().Curve25519), msg); !errors.Is(err, olm.ErrOneTimeKeyMissing) {
		t.Fatalf("err = %v, want ErrOneTimeKeyMissing", err)
	}
}

func TestSession_PickleRoundTripKeepsDecrypting(t *testing.T) {
	p := olm.NewProvider("pass")
	alice, bob, out := newPair(t, p)

	first, err := out.Encrypt([]byte("m0"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	second, err := out.Encrypt([]byte("m1"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	in, err := p.NewInboundSession(bob, id.SenderKey(alice.IdentityKeys().Curve25519), first)
	if err != nil {
		t.Fatalf("NewInboundSession: %v", err)
	}
	if _, err := in.Decrypt(first); err != nil {
		t.Fatalf("decrypt first: %v", err)
	}

	pickle, err := in.Pickle()
	if err != nil {
		t.Fatalf("Pickle: %v", err)
	}
	restored, err := p.UnpickleSession(pickle)
	if err != nil {
		t.Fatalf("UnpickleSession: %v", err)
	}
	if restored.ID() != in.ID() {
		t.Fatalf("restored session id = %s, want %s", restored.ID(), in.ID())
	}
	pt, err := restored.Decrypt(second)
	if err != nil {
		t.Fatalf("decrypt after unpickle: %v", err)
	}
	if string(pt) != "m1" {
		t.Fatalf("got %q, want %q", pt, "m1")
	}
}
