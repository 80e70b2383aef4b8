package olm

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"olmbox/internal/util/memzero"
)

// Chain ratchet shared by pairwise and group sessions: each step derives a
// message key and replaces the chain key, so earlier message keys cannot be
// recomputed once the chain has advanced.

var (
	chainKeyLabel   = []byte{0x02}
	messageKeyLabel = []byte{0x01}
)

// maxMessageGap bounds how far ahead of the ratchet a message counter may
// be. The skip walk is linear in the gap and the counter arrives
// unauthenticated on pairwise messages, so an unbounded walk lets a peer pin
// the process with a single forged counter.
const maxMessageGap = 2000

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// advanceChain steps ck once, returning the next chain key and the message
// key for the current step.
func advanceChain(ck []byte) (next, mk []byte) {
	return hmacSHA256(ck, chainKeyLabel), hmacSHA256(ck, messageKeyLabel)
}

// deriveChains expands a shared secret into the initiator and responder
// chain keys.
func deriveChains(secret []byte, info string) (initiator, responder []byte, err error) {
	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	initiator = make([]byte, 32)
	responder = make([]byte, 32)
	if _, err = io.ReadFull(r, initiator); err != nil {
		return nil, nil, err
	}
	if _, err = io.ReadFull(r, responder); err != nil {
		return nil, nil, err
	}
	return initiator, responder, nil
}

// counterNonce builds an AEAD nonce from a message counter. Message keys are
// single-use, so a deterministic nonce is safe.
func counterNonce(counter uint32) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint32(nonce[chacha20poly1305.NonceSize-4:], counter)
	return nonce
}

func sealPayload(mk []byte, counter uint32, ad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk)
	if err != nil {
		return nil, err
	}
	ct := aead.Seal(nil, counterNonce(counter), plaintext, ad)
	memzero.Zero(mk)
	return ct, nil
}

func openPayload(mk []byte, counter uint32, ad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(mk)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, counterNonce(counter), ciphertext, ad)
	memzero.Zero(mk)
	return pt, err
}

// chainAt walks a copy of ck forward and returns the message key for
// counter target, the chain key after consuming it, and the next expected
// counter. The caller commits the returned state only after a successful
// open, so a failed decrypt never corrupts the session. Callers enforce
// maxMessageGap, which also keeps target+1 from wrapping to zero and
// reopening the chain.
func chainAt(ck []byte, current, target uint32) (mk, nextCK []byte, nextCounter uint32) {
	c := append([]byte(nil), ck...)
	for n := current; n < target; n++ {
		c = hmacSHA256(c, chainKeyLabel)
	}
	nextCK, mk = advanceChain(c)
	return mk, nextCK, target + 1
}
