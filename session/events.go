package session

import (
	"github.com/hazyhaar/weslplay/backend"
)

// Event types pushed to subscribers.
const (
	EventResult  = "result"
	EventState   = "state"
	EventMessage = "message"
	EventShared  = "shared"
)

// Event is one push to a subscriber.
type Event struct {
	Type    string          `json:"type"`
	Result  *backend.Result `json:"result,omitempty"`
	State   *View           `json:"state,omitempty"`
	Message string          `json:"message,omitempty"`
	Shared  *string         `json:"shared,omitempty"`
}

const subscriberBuffer = 32

// Subscribe returns a channel receiving the session's events. Slow
// subscribers lose events rather than stall the session. cancel closes the
// channel.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) emit(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Warn("session: subscriber lagging, event dropped", "session", s.id, "subscriber", id, "type", ev.Type)
		}
	}
}

func (s *Session) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
