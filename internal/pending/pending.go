// Package pending tracks specs that have started but whose results are not yet recorded.
package pending

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrAlreadyRegistered = errors.New("already registered")
	ErrNotRegistered     = errors.New("not registered")
	ErrAlreadyResolved   = errors.New("already resolved")
)

// Set is a wait-for-all barrier over per-id completion signals.
type Set struct {
	mu      sync.Mutex
	signals map[string]chan struct{}
	order   map[string]int
	next    int
}

func New() *Set {
	return &Set{
		signals: map[string]chan struct{}{},
		order:   map[string]int{},
	}
}

// Register adds id as unresolved and returns its registration ordinal (0-based).
func (s *Set) Register(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.signals[id]; ok {
		return 0, fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	seq := s.next
	s.next++
	s.signals[id] = make(chan struct{})
	s.order[id] = seq
	return seq, nil
}

// Ordinal returns the registration ordinal of id.
func (s *Set) Ordinal(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.order[id]
	return seq, ok
}

// Resolve signals completion of id. It fails if id was never registered or is already resolved.
func (s *Set) Resolve(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.signals[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	select {
	case <-ch:
		return fmt.Errorf("%w: %s", ErrAlreadyResolved, id)
	default:
	}
	close(ch)
	return nil
}

// Resolved reports whether id has been resolved.
func (s *Set) Resolved(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.signals[id]
	if !ok {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Len returns the number of unresolved ids.
func (s *Set) Len() int {
	return len(s.unresolved())
}

// Wait blocks until every registered id, including ones registered while waiting, is resolved.
func (s *Set) Wait(ctx context.Context) error {
	for {
		open := s.unresolved()
		if len(open) == 0 {
			return nil
		}
		for _, ch := range open {
			select {
			case <-ch:
			case <-ctx.Done():
				return fmt.Errorf("waiting for %d pending specs: %w", s.Len(), ctx.Err())
			}
		}
	}
}

func (s *Set) unresolved() []chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []chan struct{}
	for _, ch := range s.signals {
		select {
		case <-ch:
		default:
			open = append(open, ch)
		}
	}
	return open
}
