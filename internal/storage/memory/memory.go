// Package memory provides an in-process implementation of storage.GroupStore.
//
// It mirrors the remote document store: updates replace whole top-level
// fields, and subscribers receive the full document after every write.
// Delivery is synchronous, so a write returns only after every subscriber
// has seen it.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mmynk/mealboard/internal/models"
	"github.com/mmynk/mealboard/internal/storage"
)

// Ensure Store implements storage.GroupStore
var _ storage.GroupStore = (*Store)(nil)

// Store keeps group documents in a map.
type Store struct {
	// writeMu orders writes with their deliveries so subscribers never see
	// an older document after a newer one. Callbacks must not call back
	// into the store.
	writeMu sync.Mutex

	mu     sync.Mutex
	groups map[string]models.Group
	subs   map[string]map[*subscription]struct{}

	// failNext is returned once by the next store call.
	failNext error
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		groups: make(map[string]models.Group),
		subs:   make(map[string]map[*subscription]struct{}),
	}
}

// FailNext makes the next CreateGroup, GetGroup or UpdateGroup call return err.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func (s *Store) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

// CreateGroup stores a copy of group and notifies subscribers.
func (s *Store) CreateGroup(ctx context.Context, group models.Group) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if err := s.takeFailure(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create group: %w", err)
	}
	s.groups[group.ID] = group.Clone()
	targets := s.targets(group.ID)
	s.mu.Unlock()

	notify(targets, &group)
	return nil
}

// GetGroup returns a copy of the stored group.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	g, ok := s.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrGroupNotFound, groupID)
	}
	cp := g.Clone()
	return &cp, nil
}

// UpdateGroup overwrites the set top-level fields and notifies subscribers.
func (s *Store) UpdateGroup(ctx context.Context, groupID string, update storage.GroupUpdate) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if err := s.takeFailure(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to update group: %w", err)
	}
	g, ok := s.groups[groupID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", storage.ErrGroupNotFound, groupID)
	}
	g = g.Clone()
	update.Apply(&g)
	s.groups[groupID] = g
	targets := s.targets(groupID)
	s.mu.Unlock()

	notify(targets, &g)
	return nil
}

// DeleteGroup removes a group and notifies subscribers with nil.
func (s *Store) DeleteGroup(ctx context.Context, groupID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if _, ok := s.groups[groupID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", storage.ErrGroupNotFound, groupID)
	}
	delete(s.groups, groupID)
	targets := s.targets(groupID)
	s.mu.Unlock()

	notify(targets, nil)
	return nil
}

// SubscribeToGroup registers fn and immediately delivers the current document.
func (s *Store) SubscribeToGroup(ctx context.Context, groupID string, fn func(*models.Group), onStop func(error)) (storage.Subscription, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sub := &subscription{store: s, groupID: groupID, fn: fn, onStop: onStop}

	s.mu.Lock()
	if s.subs[groupID] == nil {
		s.subs[groupID] = make(map[*subscription]struct{})
	}
	s.subs[groupID][sub] = struct{}{}
	var current *models.Group
	if g, ok := s.groups[groupID]; ok {
		cp := g.Clone()
		current = &cp
	}
	s.mu.Unlock()

	sub.deliver(current)
	return sub, nil
}

// DropSubscriptions ends every subscription to groupID as if its feed had
// failed with err. Each stop hook runs before DropSubscriptions returns.
func (s *Store) DropSubscriptions(groupID string, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	targets := s.targets(groupID)
	delete(s.subs, groupID)
	s.mu.Unlock()

	for _, sub := range targets {
		sub.stop(err)
	}
}

// Close drops every subscription.
func (s *Store) Close() error {
	s.mu.Lock()
	var all []*subscription
	for _, set := range s.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range all {
		sub.Unsubscribe()
	}
	return nil
}

// targets snapshots the subscribers of groupID. Caller holds s.mu.
func (s *Store) targets(groupID string) []*subscription {
	set := s.subs[groupID]
	out := make([]*subscription, 0, len(set))
	for sub := range set {
		out = append(out, sub)
	}
	return out
}

func notify(targets []*subscription, g *models.Group) {
	for _, sub := range targets {
		if g == nil {
			sub.deliver(nil)
			continue
		}
		cp := g.Clone()
		sub.deliver(&cp)
	}
}

type subscription struct {
	store   *Store
	groupID string
	fn      func(*models.Group)
	onStop  func(error)

	// mu is held across delivery so Unsubscribe cannot return while a
	// callback is running.
	mu     sync.Mutex
	closed bool
}

func (sub *subscription) deliver(g *models.Group) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.fn(g)
}

// stop closes the subscription and reports err unless it was already closed.
func (sub *subscription) stop(err error) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	if sub.onStop != nil {
		sub.onStop(err)
	}
}

func (sub *subscription) Unsubscribe() {
	sub.mu.Lock()
	sub.closed = true
	sub.mu.Unlock()

	s := sub.store
	s.mu.Lock()
	delete(s.subs[sub.groupID], sub)
	if len(s.subs[sub.groupID]) == 0 {
		delete(s.subs, sub.groupID)
	}
	s.mu.Unlock()
}
