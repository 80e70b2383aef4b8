package olm

import (
	"crypto/ed25519"

	"github.com/google/uuid"
	"maunium.net/go/mautrix/id"

	"olmbox/internal/crypto"
	"olmbox/internal/domain"
)

type oneTimeKey struct {
	ID        string               `json:"id"`
	Priv      crypto.X25519Private `json:"priv"`
	Pub       crypto.X25519Public  `json:"pub"`
	Published bool                 `json:"published"`
}

type accountState struct {
	IdentityPriv crypto.X25519Private `json:"identity_priv"`
	IdentityPub  crypto.X25519Public  `json:"identity_pub"`
	SigningPriv  []byte               `json:"signing_priv"`
	SigningPub   []byte               `json:"signing_pub"`
	OneTimeKeys  []oneTimeKey         `json:"one_time_keys"`
}

// Account holds one device's long-term identity keypair and its pool of
// consumable one-time keys.
type Account struct {
	p  *Provider
	st accountState
}

const defaultOneTimeKeys = 10

// NewAccount generates a fresh account with a starting pool of one-time keys.
func (p *Provider) NewAccount() (domain.Account, error) {
	xPriv, xPub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, err
	}
	edPriv, edPub, err := crypto.GenerateEd25519()
	if err != nil {
		return nil, err
	}
	a := &Account{
		p: p,
		st: accountState{
			IdentityPriv: xPriv,
			IdentityPub:  xPub,
			SigningPriv:  edPriv,
			SigningPub:   edPub,
		},
	}
	if err := a.GenerateOneTimeKeys(defaultOneTimeKeys); err != nil {
		return nil, err
	}
	return a, nil
}

// UnpickleAccount restores an account from its pickled form.
func (p *Provider) UnpickleAccount(pickle domain.Pickle) (domain.Account, error) {
	a := &Account{p: p}
	if err := p.open(pickle, &a.st); err != nil {
		return nil, err
	}
	return a, nil
}

// IdentityKeys returns the public identity keys in wire (unpadded base64) form.
func (a *Account) IdentityKeys() domain.IdentityKeys {
	return domain.IdentityKeys{
		Curve25519: id.Curve25519(crypto.B64(a.st.IdentityPub[:])),
		Ed25519:    id.Ed25519(crypto.B64(a.st.SigningPub)),
	}
}

// Sign signs message with the long-term Ed25519 key and returns the
// signature in unpadded base64.
func (a *Account) Sign(message []byte) (string, error) {
	sig := crypto.SignEd25519(ed25519.PrivateKey(a.st.SigningPriv), message)
	return crypto.B64(sig), nil
}

// OneTimeKeys returns the unpublished keys, keyed by key ID.
func (a *Account) OneTimeKeys() map[string]id.Curve25519 {
	out := make(map[string]id.Curve25519)
	for _, otk := range a.st.OneTimeKeys {
		if !otk.Published {
			out[otk.ID] = id.Curve25519(crypto.B64(otk.Pub[:]))
		}
	}
	return out
}

// GenerateOneTimeKeys appends count fresh keys to the pool.
func (a *Account) GenerateOneTimeKeys(count int) error {
	for i := 0; i < count; i++ {
		priv, pub, err := crypto.GenerateX25519()
		if err != nil {
			return err
		}
		a.st.OneTimeKeys = append(a.st.OneTimeKeys, oneTimeKey{
			ID:   uuid.NewString(),
			Priv: priv,
			Pub:  pub,
		})
	}
	return nil
}

// MarkKeysAsPublished flags every key in the pool as uploaded.
func (a *Account) MarkKeysAsPublished() {
	for i := range a.st.OneTimeKeys {
		a.st.OneTimeKeys[i].Published = true
	}
}

// RemoveOneTimeKeys discards the one-time key consumed by sess. Removing a
// key that is already gone is a no-op.
func (a *Account) RemoveOneTimeKeys(sess domain.Session) error {
	s, ok := sess.(*Session)
	if !ok {
		return ErrForeignSession
	}
	for i, otk := range a.st.OneTimeKeys {
		if otk.Pub == s.st.UsedOneTimeKey {
			a.st.OneTimeKeys = append(a.st.OneTimeKeys[:i], a.st.OneTimeKeys[i+1:]...)
			return nil
		}
	}
	return nil
}

// Pickle serialises the account.
func (a *Account) Pickle() (domain.Pickle, error) {
	return a.p.seal(a.st)
}

// lookupOneTimeKey finds the private half of a pooled key by its public part.
func (a *Account) lookupOneTimeKey(pub crypto.X25519Public) (crypto.X25519Private, bool) {
	for _, otk := range a.st.OneTimeKeys {
		if otk.Pub == pub {
			return otk.Priv, true
		}
	}
	return crypto.X25519Private{}, false
}

var _ domain.Account = (*Account)(nil)
