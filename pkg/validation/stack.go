package validation

import (
	"sync"

	"github.com/cuemby/beacon/pkg/types"
)

// maxPending bounds the stack between two enrichment steps
const maxPending = 50

// Stack holds validation errors until the next event is enriched.
//
// Pop hands out the most recently pushed error and discards the rest: an
// enriched event carries at most one error.
type Stack struct {
	mu      sync.Mutex
	pending []types.ValidationError
}

// NewStack creates an empty stack
func NewStack() *Stack {
	return &Stack{}
}

// Push records a validation error
func (s *Stack) Push(err types.ValidationError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, err)
	if len(s.pending) > maxPending {
		s.pending = s.pending[len(s.pending)-maxPending:]
	}
}

// Pop returns the most recent error and clears the stack
func (s *Stack) Pop() (types.ValidationError, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return types.ValidationError{}, false
	}
	last := s.pending[len(s.pending)-1]
	s.pending = nil
	return last, true
}

// Len returns the number of pending errors
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
