package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/mmynk/mealboard/internal/models"
	"github.com/mmynk/mealboard/internal/storage"
)

func newGroup(id string) models.Group {
	g := models.NewGroup(id, "Flat")
	g.Users = []models.User{{ID: "a", Name: "Ann", Color: models.ColorFor(0)}}
	g.Normalize()
	return g
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("GetGroup returns ErrGroupNotFound for unknown id", func(t *testing.T) {
		s := New()
		if _, err := s.GetGroup(ctx, "missing"); !errors.Is(err, storage.ErrGroupNotFound) {
			t.Errorf("expected ErrGroupNotFound, got %v", err)
		}
	})

	t.Run("UpdateGroup returns ErrGroupNotFound for unknown id", func(t *testing.T) {
		s := New()
		name := "x"
		if err := s.UpdateGroup(ctx, "missing", storage.GroupUpdate{Name: &name}); !errors.Is(err, storage.ErrGroupNotFound) {
			t.Errorf("expected ErrGroupNotFound, got %v", err)
		}
	})

	t.Run("UpdateGroup merges only set fields", func(t *testing.T) {
		s := New()
		if err := s.CreateGroup(ctx, newGroup("g")); err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}

		meals := map[string]models.UserMeals{"a": {"2024-06-12": {Lunch: true}}}
		if err := s.UpdateGroup(ctx, "g", storage.GroupUpdate{Meals: meals}); err != nil {
			t.Fatalf("UpdateGroup failed: %v", err)
		}

		got, err := s.GetGroup(ctx, "g")
		if err != nil {
			t.Fatalf("GetGroup failed: %v", err)
		}
		if got.Name != "Flat" || len(got.Users) != 1 {
			t.Errorf("untouched fields changed: %+v", got)
		}
		if !got.Meals["a"]["2024-06-12"].Lunch {
			t.Error("meals not updated")
		}
	})

	t.Run("GetGroup returns an independent copy", func(t *testing.T) {
		s := New()
		s.CreateGroup(ctx, newGroup("g"))

		got, _ := s.GetGroup(ctx, "g")
		got.Users[0].Name = "Mutated"

		again, _ := s.GetGroup(ctx, "g")
		if again.Users[0].Name != "Ann" {
			t.Error("caller mutation leaked into the store")
		}
	})

	t.Run("FailNext fails exactly one call", func(t *testing.T) {
		s := New()
		s.CreateGroup(ctx, newGroup("g"))

		boom := errors.New("connection reset")
		s.FailNext(boom)
		if _, err := s.GetGroup(ctx, "g"); !errors.Is(err, boom) {
			t.Errorf("expected injected failure, got %v", err)
		}
		if _, err := s.GetGroup(ctx, "g"); err != nil {
			t.Errorf("second call should succeed, got %v", err)
		}
	})
}

func TestSubscribeToGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers current document then changes", func(t *testing.T) {
		s := New()
		s.CreateGroup(ctx, newGroup("g"))

		var seen []*models.Group
		sub, err := s.SubscribeToGroup(ctx, "g", func(g *models.Group) { seen = append(seen, g) }, nil)
		if err != nil {
			t.Fatalf("SubscribeToGroup failed: %v", err)
		}
		defer sub.Unsubscribe()

		name := "Renamed"
		s.UpdateGroup(ctx, "g", storage.GroupUpdate{Name: &name})

		if len(seen) != 2 {
			t.Fatalf("expected 2 deliveries, got %d", len(seen))
		}
		if seen[0] == nil || seen[0].Name != "Flat" {
			t.Errorf("initial delivery: %+v", seen[0])
		}
		if seen[1] == nil || seen[1].Name != "Renamed" {
			t.Errorf("update delivery: %+v", seen[1])
		}
	})

	t.Run("delivers nil for absent and deleted documents", func(t *testing.T) {
		s := New()

		var seen []*models.Group
		sub, _ := s.SubscribeToGroup(ctx, "g", func(g *models.Group) { seen = append(seen, g) }, nil)
		defer sub.Unsubscribe()

		s.CreateGroup(ctx, newGroup("g"))
		s.DeleteGroup(ctx, "g")

		if len(seen) != 3 {
			t.Fatalf("expected 3 deliveries, got %d", len(seen))
		}
		if seen[0] != nil || seen[1] == nil || seen[2] != nil {
			t.Errorf("unexpected delivery sequence: %v", seen)
		}
	})

	t.Run("no delivery after Unsubscribe", func(t *testing.T) {
		s := New()
		s.CreateGroup(ctx, newGroup("g"))

		calls := 0
		sub, _ := s.SubscribeToGroup(ctx, "g", func(*models.Group) { calls++ }, nil)
		sub.Unsubscribe()
		sub.Unsubscribe()

		name := "After"
		s.UpdateGroup(ctx, "g", storage.GroupUpdate{Name: &name})

		if calls != 1 {
			t.Errorf("expected only the initial delivery, got %d calls", calls)
		}
	})

	t.Run("subscribers of other groups are not notified", func(t *testing.T) {
		s := New()
		s.CreateGroup(ctx, newGroup("g1"))
		s.CreateGroup(ctx, newGroup("g2"))

		calls := 0
		sub, _ := s.SubscribeToGroup(ctx, "g1", func(*models.Group) { calls++ }, nil)
		defer sub.Unsubscribe()

		name := "Other"
		s.UpdateGroup(ctx, "g2", storage.GroupUpdate{Name: &name})

		if calls != 1 {
			t.Errorf("expected only the initial delivery, got %d calls", calls)
		}
	})

	t.Run("dropped subscription reports once and stops delivering", func(t *testing.T) {
		s := New()
		s.CreateGroup(ctx, newGroup("g"))

		calls := 0
		var stops []error
		sub, _ := s.SubscribeToGroup(ctx, "g",
			func(*models.Group) { calls++ },
			func(err error) { stops = append(stops, err) },
		)

		lost := errors.New("connection reset")
		s.DropSubscriptions("g", lost)
		s.DropSubscriptions("g", lost)

		name := "After"
		s.UpdateGroup(ctx, "g", storage.GroupUpdate{Name: &name})
		sub.Unsubscribe()

		if calls != 1 {
			t.Errorf("expected only the initial delivery, got %d calls", calls)
		}
		if len(stops) != 1 || !errors.Is(stops[0], lost) {
			t.Errorf("expected one stop with the drop error, got %v", stops)
		}
	})

	t.Run("Unsubscribe does not fire the stop hook", func(t *testing.T) {
		s := New()
		s.CreateGroup(ctx, newGroup("g"))

		stops := 0
		sub, _ := s.SubscribeToGroup(ctx, "g", func(*models.Group) {}, func(error) { stops++ })
		sub.Unsubscribe()
		s.DropSubscriptions("g", errors.New("late"))

		if stops != 0 {
			t.Errorf("expected no stop after Unsubscribe, got %d", stops)
		}
	})
}
