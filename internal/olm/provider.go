package olm

import (
	"errors"

	"golang.org/x/crypto/argon2"

	"olmbox/internal/domain"
)

var (
	// ErrBadPickle marks a pickle that could not be decoded or decrypted.
	ErrBadPickle = errors.New("olm: pickle could not be opened")
	// ErrWrongMessageType is returned when a pre-key operation receives a
	// normal message or vice versa.
	ErrWrongMessageType = errors.New("olm: unexpected message type")
	// ErrBadMessageFormat marks a message body that does not parse.
	ErrBadMessageFormat = errors.New("olm: malformed message")
	// ErrSenderKeyMismatch is returned when the claimed sender key does not
	// match the identity key inside a pre-key message.
	ErrSenderKeyMismatch = errors.New("olm: sender key does not match pre-key message")
	// ErrOneTimeKeyMissing means the pre-key message references a one-time
	// key this account no longer holds.
	ErrOneTimeKeyMissing = errors.New("olm: no matching one-time key")
	// ErrRatchetAdvanced means the ratchet has already moved past the
	// message's counter; earlier keys are discarded on advance.
	ErrRatchetAdvanced = errors.New("olm: ratchet already advanced past message")
	// ErrCounterTooFar means the message's counter is further ahead of the
	// ratchet than the skip window allows.
	ErrCounterTooFar = errors.New("olm: message counter too far ahead")
	// ErrBadSignature marks a group message whose signature does not verify.
	ErrBadSignature = errors.New("olm: bad group message signature")
	// ErrForeignSession is returned when an account or session from a
	// different provider implementation is passed in.
	ErrForeignSession = errors.New("olm: foreign account or session type")
)

var pickleKeySalt = []byte("olmbox.pickle.v1")

// Provider implements domain.Provider. The pickle passphrase is fixed at
// construction; every pickle this provider writes or reads uses the key
// derived from it.
type Provider struct {
	pickleKey []byte
}

// NewProvider derives the pickle key from passphrase (which may be empty)
// and returns a ready provider.
func NewProvider(passphrase string) *Provider {
	return &Provider{
		pickleKey: argon2.IDKey([]byte(passphrase), pickleKeySalt, 1, 64*1024, 4, 32),
	}
}

// Available probes whether the provider is usable in this process. Hosts
// treat a false result as "encryption off" and degrade gracefully.
func Available() bool {
	p := NewProvider("")
	acct, err := p.NewAccount()
	if err != nil {
		return false
	}
	_, err = acct.Sign([]byte("probe"))
	return err == nil
}

var _ domain.Provider = (*Provider)(nil)
