package olm

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"olmbox/internal/domain"
)

// Pickles are versioned JSON state sealed under a key derived from the
// provider's pickle passphrase. The blob is opaque to callers; only this
// package writes or reads it.

const pickleVersion = 1

var pickleAD = []byte("olmbox.pickle")

type pickleEnvelope struct {
	Version int    `json:"v"`
	Nonce   []byte `json:"nonce"`
	CT      []byte `json:"ct"`
}

func (p *Provider) seal(state any) (domain.Pickle, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.New(p.pickleKey)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	env := pickleEnvelope{
		Version: pickleVersion,
		Nonce:   nonce,
		CT:      aead.Seal(nil, nonce, raw, pickleAD),
	}
	blob, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return domain.Pickle(base64.RawStdEncoding.EncodeToString(blob)), nil
}

func (p *Provider) open(pickle domain.Pickle, into any) error {
	blob, err := base64.RawStdEncoding.DecodeString(string(pickle))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadPickle, err)
	}
	var env pickleEnvelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPickle, err)
	}
	if env.Version != pickleVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrBadPickle, env.Version)
	}
	aead, err := chacha20poly1305.New(p.pickleKey)
	if err != nil {
		return err
	}
	raw, err := aead.Open(nil, env.Nonce, env.CT, pickleAD)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadPickle, err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPickle, err)
	}
	return nil
}
