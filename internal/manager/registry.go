package manager

import (
	"sort"

	"maunium.net/go/mautrix/id"

	"olmbox/internal/domain"
)

// sessionRegistry indexes pairwise sessions by sender. Lists keep insertion
// order: first created, first tried. New sessions append at the end, so the
// oldest session wins ties. That ordering is a deliberate policy, surprising
// as it may look, and the store preserves it across restarts.
type sessionRegistry struct {
	senders map[id.UserID][]domain.Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{senders: make(map[id.UserID][]domain.Session)}
}

func (r *sessionRegistry) For(sender id.UserID) []domain.Session {
	return r.senders[sender]
}

func (r *sessionRegistry) Add(sender id.UserID, sess domain.Session) {
	r.senders[sender] = append(r.senders[sender], sess)
}

func (r *sessionRegistry) Senders() []id.UserID {
	out := make([]id.UserID, 0, len(r.senders))
	for sender := range r.senders {
		out = append(out, sender)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
