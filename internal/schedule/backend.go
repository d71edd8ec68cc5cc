package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmynk/mealboard/internal/models"
	"github.com/mmynk/mealboard/internal/storage"
)

// Backend is the persistence strategy a Model is constructed with.
// It is chosen once at startup; the Model never inspects which one it has.
type Backend interface {
	// Name identifies the strategy ("local" or "remote").
	Name() string

	// Load returns the state the Model starts from.
	Load(ctx context.Context) (*models.AppData, error)

	// Fetch returns the authoritative copy of a group. local is the
	// Model's in-memory copy, or nil if it holds none.
	Fetch(ctx context.Context, groupID string, local *models.Group) (models.Group, error)

	// CreateGroup persists a new group.
	CreateGroup(ctx context.Context, group models.Group) error

	// UpdateGroup persists a top-level field update of one group.
	UpdateGroup(ctx context.Context, groupID string, update storage.GroupUpdate) error

	// Commit receives a copy of the whole state after every change.
	Commit(ctx context.Context, data *models.AppData) error

	// Watch delivers authoritative copies of a group until unsubscribed.
	// onStop is called once if deliveries end for any other reason.
	Watch(ctx context.Context, groupID string, fn func(*models.Group), onStop func(error)) (storage.Subscription, error)
}

// localBackend keeps all state in memory and rewrites the whole snapshot on
// every change.
type localBackend struct {
	store storage.SnapshotStore
}

// NewLocalBackend returns the local-only strategy backed by store.
func NewLocalBackend(store storage.SnapshotStore) Backend {
	return &localBackend{store: store}
}

func (b *localBackend) Name() string { return "local" }

// Load decodes the stored snapshot. A missing or unreadable snapshot yields
// fresh state with the default group; only I/O errors are returned.
func (b *localBackend) Load(ctx context.Context) (*models.AppData, error) {
	raw, err := b.store.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return models.NewAppData(), nil
	}

	var data models.AppData
	if err := json.Unmarshal(raw, &data); err != nil {
		slog.Warn("Stored state is malformed, starting fresh", "error", err)
		return models.NewAppData(), nil
	}
	if data.Groups == nil {
		slog.Warn("Stored state has no groups, starting fresh")
		return models.NewAppData(), nil
	}
	if data.EnsureDefaultGroup() {
		slog.Info("Added default group to stored state", "group_id", models.DefaultGroupID)
	}
	return &data, nil
}

func (b *localBackend) Fetch(ctx context.Context, groupID string, local *models.Group) (models.Group, error) {
	if local == nil {
		return models.Group{}, fmt.Errorf("%w: %s", storage.ErrGroupNotFound, groupID)
	}
	return local.Clone(), nil
}

func (b *localBackend) CreateGroup(ctx context.Context, group models.Group) error { return nil }

func (b *localBackend) UpdateGroup(ctx context.Context, groupID string, update storage.GroupUpdate) error {
	return nil
}

func (b *localBackend) Commit(ctx context.Context, data *models.AppData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	return b.store.SaveSnapshot(ctx, raw)
}

// Watch has no live source to follow.
func (b *localBackend) Watch(ctx context.Context, groupID string, fn func(*models.Group), onStop func(error)) (storage.Subscription, error) {
	return storage.SubscriptionFunc(func() {}), nil
}

// remoteBackend writes through to a document store and follows it live.
// The selection (current group/user) stays in process memory.
type remoteBackend struct {
	store storage.GroupStore
}

// NewRemoteBackend returns the remote strategy backed by store.
func NewRemoteBackend(store storage.GroupStore) Backend {
	return &remoteBackend{store: store}
}

func (b *remoteBackend) Name() string { return "remote" }

// Load starts from fresh state and makes sure the default group document exists.
func (b *remoteBackend) Load(ctx context.Context) (*models.AppData, error) {
	data := models.NewAppData()

	g, err := b.store.GetGroup(ctx, models.DefaultGroupID)
	switch {
	case errors.Is(err, storage.ErrGroupNotFound):
		if err := b.store.CreateGroup(ctx, data.Groups[models.DefaultGroupID]); err != nil {
			return nil, err
		}
		slog.Info("Created default group", "group_id", models.DefaultGroupID)
	case err != nil:
		return nil, err
	default:
		data.Groups[g.ID] = *g
	}
	return data, nil
}

func (b *remoteBackend) Fetch(ctx context.Context, groupID string, local *models.Group) (models.Group, error) {
	g, err := b.store.GetGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	return *g, nil
}

func (b *remoteBackend) CreateGroup(ctx context.Context, group models.Group) error {
	return b.store.CreateGroup(ctx, group)
}

func (b *remoteBackend) UpdateGroup(ctx context.Context, groupID string, update storage.GroupUpdate) error {
	return b.store.UpdateGroup(ctx, groupID, update)
}

func (b *remoteBackend) Commit(ctx context.Context, data *models.AppData) error { return nil }

func (b *remoteBackend) Watch(ctx context.Context, groupID string, fn func(*models.Group), onStop func(error)) (storage.Subscription, error) {
	return b.store.SubscribeToGroup(ctx, groupID, fn, onStop)
}
