// Package network reports connectivity to the sync engine.
package network

import (
	"context"
	"sync"
)

// Monitor answers "are we online right now" and pushes later changes to
// subscribers. Subscribers are only called on transitions.
type Monitor interface {
	CurrentState(ctx context.Context) bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

type subscribers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(bool)
}

func (s *subscribers) add(fn func(bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fns == nil {
		s.fns = make(map[int]func(bool))
	}
	id := s.next
	s.next++
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

// notify calls every subscriber outside the lock so a callback may
// unsubscribe itself.
func (s *subscribers) notify(online bool) {
	s.mu.Lock()
	fns := make([]func(bool), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// Manual is a Monitor driven by Set. Used in tests, by the CLI, and when
// connectivity is reported by the host.
type Manual struct {
	mu     sync.Mutex
	online bool
	subs   subscribers
}

func NewManual(online bool) *Manual {
	return &Manual{online: online}
}

func (m *Manual) CurrentState(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Manual) Subscribe(fn func(online bool)) func() {
	return m.subs.add(fn)
}

// Set records the state and notifies subscribers when it changed.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if changed {
		m.subs.notify(online)
	}
}
