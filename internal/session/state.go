package session

import "fmt"

// State is a node of the exam session state machine.
type State int

const (
	StateInitial State = iota
	StateError
	StateInstructions
	StateItem
	StateSubmitConfirm
	StateCompleted
)

var stateNames = map[State]string{
	StateInitial:       "INITIAL",
	StateError:         "ERROR",
	StateInstructions:  "INSTRUCTIONS",
	StateItem:          "ITEM",
	StateSubmitConfirm: "SUBMIT_CONFIRM",
	StateCompleted:     "COMPLETED",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether only Close is left for the session.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// active reports whether the student is still working on the exam.
func (s State) active() bool {
	return s == StateInstructions || s == StateItem || s == StateSubmitConfirm
}

func (s State) MarshalText() ([]byte, error) {
	n, ok := stateNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown session state %d", int(s))
	}
	return []byte(n), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st, n := range stateNames {
		if n == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", string(text))
}
