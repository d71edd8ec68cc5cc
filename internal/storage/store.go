// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/mealboard/internal/models"
)

var (
	// ErrGroupNotFound is returned when a group document does not exist.
	ErrGroupNotFound = errors.New("group not found")

	// ErrSubscriptionClosed is passed to a subscription's stop hook when the
	// store ended the subscription without an I/O error.
	ErrSubscriptionClosed = errors.New("subscription closed by store")
)

// SnapshotKey is the fixed key under which the local backend keeps the
// serialized AppData.
const SnapshotKey = "meal_schedule_app_data"

// GroupStore defines the remote document store for groups.
// This abstraction allows swapping document backends (MongoDB, in-memory)
// without changing the state model.
//
// Implementations do not retry; I/O failures are returned to the caller.
type GroupStore interface {
	// CreateGroup writes a new group document, replacing any document with the same ID.
	CreateGroup(ctx context.Context, group models.Group) error

	// GetGroup retrieves a group by its ID.
	// Returns ErrGroupNotFound if the group does not exist.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// UpdateGroup merges the set fields of update into the stored document.
	// Fields are replaced whole; there is no merge below the top level.
	// Returns ErrGroupNotFound if the group does not exist.
	UpdateGroup(ctx context.Context, groupID string, update GroupUpdate) error

	// SubscribeToGroup calls fn with the current document and then again on
	// every change. fn receives nil if the document is absent or deleted.
	// ctx bounds only the setup; the subscription lives until Unsubscribe.
	//
	// If the subscription ends for any other reason, onStop (if non-nil) is
	// called once with the cause and fn is never called again. onStop runs
	// on the delivery goroutine and must not call Unsubscribe.
	SubscribeToGroup(ctx context.Context, groupID string, fn func(*models.Group), onStop func(error)) (Subscription, error)

	// Close releases any resources held by the store.
	Close() error
}

// SnapshotStore defines the local durable slot holding the whole AppData.
// There is no partial update: every save replaces the record.
type SnapshotStore interface {
	// LoadSnapshot returns the stored record, or nil if nothing has been saved yet.
	LoadSnapshot(ctx context.Context) ([]byte, error)

	// SaveSnapshot atomically replaces the stored record.
	SaveSnapshot(ctx context.Context, data []byte) error

	// Close releases any resources held by the store.
	Close() error
}

// Subscription is a live-update handle returned by SubscribeToGroup.
type Subscription interface {
	// Unsubscribe stops delivery. Once it returns, the callback is never
	// invoked again. It is safe to call more than once.
	Unsubscribe()
}

// GroupUpdate lists the top-level group fields to overwrite. Nil fields are left alone.
type GroupUpdate struct {
	Name  *string
	Users []models.User
	Meals map[string]models.UserMeals
}

// IsEmpty reports whether the update sets no fields.
func (u GroupUpdate) IsEmpty() bool {
	return u.Name == nil && u.Users == nil && u.Meals == nil
}

// Apply merges the set fields into g.
func (u GroupUpdate) Apply(g *models.Group) {
	if u.Name != nil {
		g.Name = *u.Name
	}
	if u.Users != nil {
		g.Users = append([]models.User(nil), u.Users...)
	}
	if u.Meals != nil {
		g.Meals = models.CloneMeals(u.Meals)
	}
}

// SubscriptionFunc adapts a function to the Subscription interface.
type SubscriptionFunc func()

// Unsubscribe calls f.
func (f SubscriptionFunc) Unsubscribe() { f() }
