package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrNoMessages   = errors.New("no messages")
	ErrInvalidRole  = errors.New("invalid message role")
	ErrNotUserFirst = errors.New("conversation must start with a user message")
)

// Observer is called once for every appended message, after it is stored.
type Observer func(Message)

// State is the append-only message log of a single run. It is owned by one
// run and is not safe for concurrent appends.
type State struct {
	messages []Message
	observer Observer
}

// Option configures a State
type Option func(*State)

// WithObserver registers a callback invoked once per appended message.
func WithObserver(o Observer) Option {
	return func(s *State) {
		s.observer = o
	}
}

// New creates an empty conversation.
func New(opts ...Option) *State {
	s := &State{}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Append records a new message and returns it. It is the only mutator.
func (s *State) Append(role Role, name, content string) (Message, error) {
	return s.AppendMessage(Message{Role: role, Name: name, Content: content})
}

// AppendMessage records m as-is.
func (s *State) AppendMessage(m Message) (Message, error) {
	if !m.Role.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, m.Role)
	}
	if len(s.messages) == 0 && m.Role != RoleUser {
		return Message{}, ErrNotUserFirst
	}
	s.messages = append(s.messages, m)
	if s.observer != nil {
		s.observer(m)
	}
	return m, nil
}

// Snapshot returns a copy of the full ordered log.
func (s *State) Snapshot() []Message {
	return slices.Clone(s.messages)
}

// Len returns the number of stored messages.
func (s *State) Len() int {
	return len(s.messages)
}

// Last returns the most recent message.
func (s *State) Last() (Message, bool) {
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Validate checks the log is non-empty and opens with the user.
func (s *State) Validate() error {
	if len(s.messages) == 0 {
		return ErrNoMessages
	}
	if s.messages[0].Role != RoleUser {
		return ErrNotUserFirst
	}
	return nil
}

func (s *State) Dump() ([]byte, error) {
	return json.Marshal(s.messages)
}

// Load rebuilds a conversation from Dump output. The observer is not
// replayed.
func Load(data []byte, opts ...Option) (*State, error) {
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, err
	}
	s := New(opts...)
	s.messages = msgs
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
