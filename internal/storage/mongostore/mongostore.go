// Package mongostore provides a MongoDB-backed implementation of the storage.GroupStore interface.
//
// Groups live in one collection keyed by group ID. Live updates use change
// streams, which require the server to run as a replica set.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mmynk/mealboard/internal/models"
	"github.com/mmynk/mealboard/internal/storage"
)

// Collection is the name of the groups collection.
const Collection = "groups"

// Ensure Store implements storage.GroupStore
var _ storage.GroupStore = (*Store)(nil)

// Store implements storage.GroupStore on a MongoDB collection.
type Store struct {
	client *mongo.Client // nil when the caller owns the client
	c      *mongo.Collection
}

// groupDoc is the stored document: the group fields plus _id.
type groupDoc struct {
	Key          string `bson:"_id"`
	models.Group `bson:",inline"`
}

type changeEvent struct {
	OperationType string    `bson:"operationType"`
	FullDocument  *groupDoc `bson:"fullDocument"`
}

// New wraps the groups collection of db. The caller keeps ownership of the client.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection(Collection)}
}

// Connect dials uri, verifies the connection and returns a Store for database.
// Close disconnects the client.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	s := New(client.Database(database))
	s.client = client
	return s, nil
}

// Close disconnects the client if the store owns it.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}

// CreateGroup writes group, replacing any existing document with the same ID.
func (s *Store) CreateGroup(ctx context.Context, group models.Group) error {
	group.Normalize()
	doc := groupDoc{Key: group.ID, Group: group}
	_, err := s.c.ReplaceOne(ctx, bson.M{"_id": group.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID.
func (s *Store) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	var doc groupDoc
	err := s.c.FindOne(ctx, bson.M{"_id": groupID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", storage.ErrGroupNotFound, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	g := doc.Group
	g.Normalize()
	return &g, nil
}

// UpdateGroup applies $set with only the fields present in update.
func (s *Store) UpdateGroup(ctx context.Context, groupID string, update storage.GroupUpdate) error {
	set := bson.M{}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Users != nil {
		set["users"] = update.Users
	}
	if update.Meals != nil {
		set["meals"] = update.Meals
	}

	if len(set) == 0 {
		n, err := s.c.CountDocuments(ctx, bson.M{"_id": groupID})
		if err != nil {
			return fmt.Errorf("failed to update group: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", storage.ErrGroupNotFound, groupID)
		}
		return nil
	}

	res, err := s.c.UpdateOne(ctx, bson.M{"_id": groupID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", storage.ErrGroupNotFound, groupID)
	}
	return nil
}

// DeleteGroup removes a group by ID.
func (s *Store) DeleteGroup(ctx context.Context, groupID string) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": groupID})
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", storage.ErrGroupNotFound, groupID)
	}
	return nil
}

// SubscribeToGroup opens a change stream on one document and delivers the
// current document followed by every change, from a dedicated goroutine.
//
// The stream is opened before the current document is read so that no
// write between the two is lost. A stream that fails or is invalidated is
// reported to onStop.
func (s *Store) SubscribeToGroup(ctx context.Context, groupID string, fn func(*models.Group), onStop func(error)) (storage.Subscription, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: groupID}}}},
	}
	stream, err := s.c.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("failed to watch group: %w", err)
	}

	current, err := s.GetGroup(ctx, groupID)
	if err != nil && !errors.Is(err, storage.ErrGroupNotFound) {
		stream.Close(context.Background())
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer stream.Close(context.Background())

		fn(current)
		for stream.Next(streamCtx) {
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				slog.Warn("Failed to decode group change", "group_id", groupID, "error", err)
				continue
			}
			switch ev.OperationType {
			case "insert", "replace", "update":
				if ev.FullDocument == nil {
					// updateLookup found nothing: deleted after the change.
					fn(nil)
					continue
				}
				g := ev.FullDocument.Group
				g.Normalize()
				fn(&g)
			case "delete", "drop", "invalidate":
				fn(nil)
			}
		}
		if streamCtx.Err() != nil {
			return
		}
		err := stream.Err()
		if err == nil {
			err = storage.ErrSubscriptionClosed
		}
		slog.Warn("Group change stream stopped", "group_id", groupID, "error", err)
		if onStop != nil {
			onStop(fmt.Errorf("change stream for group %s: %w", groupID, err))
		}
	}()

	return sub, nil
}

type subscription struct {
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

// Unsubscribe cancels the stream and waits for the delivery goroutine to exit.
// It must not be called from inside the callback.
func (sub *subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.cancel()
		<-sub.done
	})
}
