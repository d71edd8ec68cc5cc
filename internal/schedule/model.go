// Package schedule holds the group/meal state model: every known group, the
// current group and user, and per-user per-day meal flags.
//
// A Model is the only mutation surface for that state. It is built with one
// Backend (local snapshot or remote document store) and applies the same
// rules regardless of which one it has.
//
// Consistency is last-writer-wins. On the remote backend, a toggle sends the
// group's whole meals map, so two clients writing the same group at the same
// moment can overwrite each other's change. The live subscription replaces
// the local copy of the current group wholesale whenever the store reports a
// change. If that subscription dies, the failure is reported through Err
// and the next operation on the group subscribes again.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/mealboard/internal/calendar"
	"github.com/mmynk/mealboard/internal/models"
	"github.com/mmynk/mealboard/internal/storage"
)

var (
	// ErrGroupFull is returned when adding a user to a group at capacity.
	ErrGroupFull = fmt.Errorf("group already has %d users", models.MaxUsersPerGroup)

	// ErrEmptyName is returned when a group or user name is blank.
	ErrEmptyName = errors.New("name must not be empty")

	// ErrNoCurrentGroup is returned by operations that need a current group.
	ErrNoCurrentGroup = errors.New("no current group")
)

// Operation names reported to the observer.
const (
	OpCreateGroup    = "create_group"
	OpAddUser        = "add_user"
	OpSetCurrentUser = "set_current_user"
	OpSelectGroup    = "select_group"
	OpToggleMeal     = "toggle_meal"
	OpRemoteUpdate   = "remote_update"
)

// Option configures a Model.
type Option func(*Model)

// WithIDGenerator replaces the UUID generator used for new groups and users.
func WithIDGenerator(fn func() string) Option {
	return func(m *Model) { m.newID = fn }
}

// WithObserver registers fn to be told the outcome of every operation.
func WithObserver(fn func(op string, err error)) Option {
	return func(m *Model) { m.observe = fn }
}

// Model is the state container for groups and meals.
//
// Operations are serialised by opMu so they run one at a time. State reads
// and subscription callbacks only take mu, so a callback arriving during a
// remote call never waits on that call.
type Model struct {
	backend Backend
	newID   func() string
	observe func(op string, err error)

	opMu     sync.Mutex
	sub      storage.Subscription // guarded by opMu
	subGroup string               // guarded by opMu

	mu        sync.RWMutex
	data      *models.AppData
	lastErr   error
	seq       map[string]uint64 // remote deliveries per group
	listeners map[int]func(models.Group)
	nextID    int

	// subGen identifies the live subscription; a stop reported by an older
	// one is ignored. subStopped is set when the current one has died.
	subGen     uint64
	subStopped bool
}

// New loads the initial state from backend and subscribes to the current group.
func New(ctx context.Context, backend Backend, opts ...Option) (*Model, error) {
	m := &Model{
		backend:   backend,
		newID:     uuid.NewString,
		seq:       make(map[string]uint64),
		listeners: make(map[int]func(models.Group)),
	}
	for _, opt := range opts {
		opt(m)
	}

	data, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	data.Normalize()
	m.data = data

	if err := backend.Commit(ctx, data.Clone()); err != nil {
		return nil, fmt.Errorf("failed to save state: %w", err)
	}

	if g, ok := data.CurrentGroup(); ok {
		m.opMu.Lock()
		err := m.follow(ctx, g.ID)
		m.opMu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	slog.Info("State model ready",
		"backend", backend.Name(),
		"groups", len(data.Groups),
	)
	return m, nil
}

// Backend returns the name of the active backend.
func (m *Model) Backend() string {
	return m.backend.Name()
}

// Close tears down the live subscription. No subscription callback runs
// after Close returns.
func (m *Model) Close() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.unfollow()
}

// CreateGroup creates a group whose only member is founder, persists it, and
// makes it the current group with founder as the current user.
func (m *Model) CreateGroup(ctx context.Context, name, founder string) (models.Group, error) {
	name, founder = strings.TrimSpace(name), strings.TrimSpace(founder)
	if name == "" || founder == "" {
		return models.Group{}, m.done(OpCreateGroup, ErrEmptyName)
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	user := models.User{ID: m.newID(), Name: founder, Color: models.ColorFor(0)}
	group := models.NewGroup(m.newID(), name)
	group.Users = append(group.Users, user)
	group.Meals[user.ID] = models.UserMeals{}

	if err := m.backend.CreateGroup(ctx, group); err != nil {
		return models.Group{}, m.failed(OpCreateGroup, err)
	}

	m.mu.Lock()
	m.data.Groups[group.ID] = group.Clone()
	m.data.SetCurrentGroup(group.ID)
	m.data.SetCurrentUser(user.ID)
	m.lastErr = nil
	snapshot := m.data.Clone()
	m.mu.Unlock()

	slog.Info("Group created", "group_id", group.ID, "name", group.Name, "user_id", user.ID)

	if err := m.commit(ctx, OpCreateGroup, snapshot); err != nil {
		return group.Clone(), err
	}
	if err := m.follow(ctx, group.ID); err != nil {
		return group.Clone(), m.failed(OpCreateGroup, err)
	}
	m.notify(group)
	return group.Clone(), m.done(OpCreateGroup, nil)
}

// AddUser appends a new member to the current group. The first user added
// while no user is selected becomes the current user.
func (m *Model) AddUser(ctx context.Context, name string) (models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.User{}, m.done(OpAddUser, ErrEmptyName)
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.resume(ctx); err != nil {
		return models.User{}, m.failed(OpAddUser, err)
	}

	m.mu.RLock()
	local, ok := m.data.CurrentGroup()
	local = local.Clone()
	seq := m.seq[local.ID]
	m.mu.RUnlock()

	if !ok {
		return models.User{}, m.done(OpAddUser, ErrNoCurrentGroup)
	}
	if len(local.Users) >= models.MaxUsersPerGroup {
		return models.User{}, m.done(OpAddUser, ErrGroupFull)
	}

	base, err := m.backend.Fetch(ctx, local.ID, &local)
	if err != nil {
		return models.User{}, m.failed(OpAddUser, err)
	}
	if len(base.Users) >= models.MaxUsersPerGroup {
		return models.User{}, m.done(OpAddUser, ErrGroupFull)
	}

	user := models.User{ID: m.newID(), Name: name, Color: models.ColorFor(len(base.Users))}
	users := append(append([]models.User(nil), base.Users...), user)
	meals := models.CloneMeals(base.Meals)
	if meals == nil {
		meals = map[string]models.UserMeals{}
	}
	meals[user.ID] = models.UserMeals{}
	update := storage.GroupUpdate{Users: users, Meals: meals}

	if err := m.backend.UpdateGroup(ctx, base.ID, update); err != nil {
		return models.User{}, m.failed(OpAddUser, err)
	}

	update.Apply(&base)
	m.mu.Lock()
	m.applyLocal(base, seq)
	if m.data.CurrentUserID == nil || *m.data.CurrentUserID == "" {
		m.data.SetCurrentUser(user.ID)
	}
	m.lastErr = nil
	snapshot := m.data.Clone()
	m.mu.Unlock()

	slog.Info("User added", "group_id", base.ID, "user_id", user.ID, "name", user.Name, "users", len(base.Users))

	if err := m.commit(ctx, OpAddUser, snapshot); err != nil {
		return user, err
	}
	m.notify(base)
	return user, m.done(OpAddUser, nil)
}

// SetCurrentUser selects userID unconditionally. An ID that is not a member
// of the current group makes CurrentUser report none.
func (m *Model) SetCurrentUser(ctx context.Context, userID string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.data.SetCurrentUser(userID)
	snapshot := m.data.Clone()
	m.mu.Unlock()

	slog.Debug("Current user set", "user_id", userID)

	if err := m.commit(ctx, OpSetCurrentUser, snapshot); err != nil {
		return err
	}
	return m.done(OpSetCurrentUser, nil)
}

// SelectGroup makes groupID the current group and follows it. The current
// user is cleared if it is not a member of the new group.
func (m *Model) SelectGroup(ctx context.Context, groupID string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	var local *models.Group
	if g, ok := m.data.Groups[groupID]; ok {
		cp := g.Clone()
		local = &cp
	}
	seq := m.seq[groupID]
	m.mu.RUnlock()

	group, err := m.backend.Fetch(ctx, groupID, local)
	if err != nil {
		return m.failed(OpSelectGroup, err)
	}
	group.Normalize()

	m.mu.Lock()
	m.applyLocal(group, seq)
	m.data.SetCurrentGroup(group.ID)
	if _, ok := m.data.CurrentUser(); !ok {
		m.data.CurrentUserID = nil
	}
	m.lastErr = nil
	snapshot := m.data.Clone()
	m.mu.Unlock()

	slog.Info("Group selected", "group_id", group.ID)

	if err := m.commit(ctx, OpSelectGroup, snapshot); err != nil {
		return err
	}
	if err := m.follow(ctx, group.ID); err != nil {
		return m.failed(OpSelectGroup, err)
	}
	m.notify(group)
	return m.done(OpSelectGroup, nil)
}

// ToggleMeal flips the current user's flag for meal on date and returns the
// new status. Without a current group or user it does nothing.
func (m *Model) ToggleMeal(ctx context.Context, date string, meal models.MealType) (models.MealStatus, error) {
	if _, err := models.ParseMealType(string(meal)); err != nil {
		return models.MealStatus{}, m.done(OpToggleMeal, err)
	}
	if !calendar.ValidDateKey(date) {
		return models.MealStatus{}, m.done(OpToggleMeal, fmt.Errorf("%w: %q", calendar.ErrInvalidDateKey, date))
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.resume(ctx); err != nil {
		return models.MealStatus{}, m.failed(OpToggleMeal, err)
	}

	m.mu.RLock()
	local, ok := m.data.CurrentGroup()
	user, userOK := m.data.CurrentUser()
	local = local.Clone()
	seq := m.seq[local.ID]
	m.mu.RUnlock()

	if !ok || !userOK {
		return models.MealStatus{}, nil
	}

	base, err := m.backend.Fetch(ctx, local.ID, &local)
	if err != nil {
		return models.MealStatus{}, m.failed(OpToggleMeal, err)
	}

	status := base.Status(user.ID, date).Toggled(meal)
	meals := models.CloneMeals(base.Meals)
	if meals == nil {
		meals = map[string]models.UserMeals{}
	}
	if meals[user.ID] == nil {
		meals[user.ID] = models.UserMeals{}
	}
	meals[user.ID][date] = status
	update := storage.GroupUpdate{Meals: meals}

	if err := m.backend.UpdateGroup(ctx, base.ID, update); err != nil {
		return models.MealStatus{}, m.failed(OpToggleMeal, err)
	}

	update.Apply(&base)
	m.mu.Lock()
	m.applyLocal(base, seq)
	m.lastErr = nil
	snapshot := m.data.Clone()
	m.mu.Unlock()

	slog.Debug("Meal toggled",
		"group_id", base.ID,
		"user_id", user.ID,
		"date", date,
		"meal", meal,
		"lunch", status.Lunch,
		"dinner", status.Dinner,
	)

	if err := m.commit(ctx, OpToggleMeal, snapshot); err != nil {
		return status, err
	}
	m.notify(base)
	return status, m.done(OpToggleMeal, nil)
}

// MealStatus returns a user's status for date in the current group.
// Absent group, user entry or date entry all read as {false, false}.
func (m *Model) MealStatus(userID, date string) models.MealStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.data.CurrentGroup()
	if !ok {
		return models.MealStatus{}
	}
	return g.Status(userID, date)
}

// MealCount returns how many members of the current group attend meal on date.
func (m *Model) MealCount(date string, meal models.MealType) models.MealCount {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.data.CurrentGroup()
	if !ok {
		return models.MealCount{}
	}
	return g.Count(date, meal)
}

// WeekSummary returns lunch and dinner counts for each of dates.
func (m *Model) WeekSummary(dates []time.Time) []models.DaySummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.data.CurrentGroup()
	out := make([]models.DaySummary, len(dates))
	for i, d := range dates {
		key := calendar.DateKey(d)
		out[i].Date = key
		if ok {
			out[i].Lunch = g.Count(key, models.Lunch)
			out[i].Dinner = g.Count(key, models.Dinner)
		}
	}
	return out
}

// CurrentGroup returns a copy of the current group.
func (m *Model) CurrentGroup() (models.Group, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.data.CurrentGroup()
	if !ok {
		return models.Group{}, false
	}
	return g.Clone(), true
}

// CurrentUser returns the current user if it is a member of the current group.
func (m *Model) CurrentUser() (models.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.CurrentUser()
}

// Snapshot returns a deep copy of the whole state.
func (m *Model) Snapshot() *models.AppData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Clone()
}

// Err returns the last backend failure, or nil once a later backend call
// has succeeded.
func (m *Model) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Listen registers fn to receive a copy of a group after every local or
// remote change. fn runs on the goroutine that made the change and must not
// block or call back into the Model's mutators. The returned func removes it.
func (m *Model) Listen(fn func(models.Group)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// applyRemote replaces a group with the store's copy. A nil group (absent
// or deleted document) leaves local state alone.
func (m *Model) applyRemote(g *models.Group) {
	if g == nil {
		slog.Debug("Remote group missing, keeping local copy")
		return
	}
	group := g.Clone()
	group.Normalize()

	m.mu.Lock()
	m.seq[group.ID]++
	m.data.Groups[group.ID] = group
	m.mu.Unlock()

	if m.observe != nil {
		m.observe(OpRemoteUpdate, nil)
	}
	m.notify(group)
}

// applyLocal stores the result of a local write unless the subscription has
// delivered this group since seq was read; that delivery is newer or equal,
// and the write's own change event is still on its way. Caller holds m.mu.
func (m *Model) applyLocal(g models.Group, seq uint64) {
	if m.seq[g.ID] != seq {
		return
	}
	m.data.Groups[g.ID] = g.Clone()
}

// follow points the live subscription at groupID. Caller holds m.opMu and
// must not hold m.mu: tearing down waits for in-flight callbacks.
func (m *Model) follow(ctx context.Context, groupID string) error {
	m.mu.RLock()
	stopped := m.subStopped
	m.mu.RUnlock()
	if m.sub != nil && m.subGroup == groupID && !stopped {
		return nil
	}
	m.unfollow()

	m.mu.RLock()
	gen := m.subGen
	m.mu.RUnlock()

	sub, err := m.backend.Watch(ctx, groupID, m.applyRemote, func(err error) {
		m.lost(gen, groupID, err)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to group %s: %w", groupID, err)
	}
	m.sub = sub
	m.subGroup = groupID
	slog.Debug("Following group", "group_id", groupID, "backend", m.backend.Name())
	return nil
}

// unfollow tears down the subscription. Caller holds m.opMu.
func (m *Model) unfollow() {
	m.mu.Lock()
	m.subGen++
	m.subStopped = false
	m.mu.Unlock()

	if m.sub == nil {
		return
	}
	m.sub.Unsubscribe()
	slog.Debug("Stopped following group", "group_id", m.subGroup)
	m.sub = nil
	m.subGroup = ""
}

// resume follows the current group again if its subscription has died or
// could not be opened. Caller holds m.opMu.
func (m *Model) resume(ctx context.Context) error {
	m.mu.RLock()
	stopped := m.subStopped
	g, ok := m.data.CurrentGroup()
	m.mu.RUnlock()
	if !ok || (m.sub != nil && !stopped) {
		return nil
	}

	if err := m.follow(ctx, g.ID); err != nil {
		return err
	}
	m.mu.Lock()
	m.lastErr = nil
	m.mu.Unlock()
	slog.Info("Live updates resumed", "group_id", g.ID)
	return nil
}

// lost marks subscription gen as dead. It runs on the store's delivery
// goroutine, so it takes only m.mu.
func (m *Model) lost(gen uint64, groupID string, err error) {
	m.mu.Lock()
	if gen != m.subGen {
		m.mu.Unlock()
		return
	}
	m.subStopped = true
	m.lastErr = fmt.Errorf("%s: %w", OpRemoteUpdate, err)
	m.mu.Unlock()

	slog.Error("Live updates stopped", "group_id", groupID, "backend", m.backend.Name(), "error", err)
	m.done(OpRemoteUpdate, err)
}

// commit hands a state copy to the backend.
func (m *Model) commit(ctx context.Context, op string, snapshot *models.AppData) error {
	if err := m.backend.Commit(ctx, snapshot); err != nil {
		return m.failed(op, err)
	}
	return nil
}

func (m *Model) notify(g models.Group) {
	m.mu.RLock()
	fns := make([]func(models.Group), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(g.Clone())
	}
}

// failed records a backend failure as the recoverable error state. A
// missing group is returned and logged but not recorded.
func (m *Model) failed(op string, err error) error {
	if errors.Is(err, storage.ErrGroupNotFound) {
		slog.Warn("Group not found", "op", op, "backend", m.backend.Name(), "error", err)
		return m.done(op, err)
	}

	m.mu.Lock()
	m.lastErr = fmt.Errorf("%s: %w", op, err)
	m.mu.Unlock()

	slog.Error("Backend call failed", "op", op, "backend", m.backend.Name(), "error", err)
	return m.done(op, err)
}

func (m *Model) done(op string, err error) error {
	if m.observe != nil {
		m.observe(op, err)
	}
	return err
}
