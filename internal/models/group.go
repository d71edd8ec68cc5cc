package models

// Default group created for fresh or legacy state.
const (
	DefaultGroupID   = "default_group"
	DefaultGroupName = "My Group"
)

// Group is a named collection of users sharing one meal schedule.
//
// Every user in Users should have an entry in Meals; readers must still
// tolerate a missing entry and treat it as empty.
type Group struct {
	// ID is the unique identifier for the group (UUID format, or DefaultGroupID).
	ID string `json:"id" bson:"id"`

	// Name is the display name of the group (e.g., "Flat 3B").
	Name string `json:"name" bson:"name"`

	// Users in join order. Never reordered or removed.
	Users []User `json:"users" bson:"users"`

	// Meals maps user ID to that user's per-day statuses.
	Meals map[string]UserMeals `json:"meals" bson:"meals"`
}

// NewGroup returns an empty group with initialised collections.
func NewGroup(id, name string) Group {
	return Group{
		ID:    id,
		Name:  name,
		Users: []User{},
		Meals: map[string]UserMeals{},
	}
}

// User returns the member with the given ID.
func (g *Group) User(id string) (User, bool) {
	for _, u := range g.Users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

// Status returns the meal status for a user on a date, or the zero status.
func (g *Group) Status(userID, date string) MealStatus {
	return g.Meals[userID][date]
}

// Count returns how many members attend the given meal on date.
func (g *Group) Count(date string, meal MealType) MealCount {
	c := MealCount{Total: len(g.Users)}
	for _, u := range g.Users {
		if g.Status(u.ID, date).Get(meal) {
			c.Count++
		}
	}
	return c
}

// Normalize fills nil collections and adds an empty meals entry for every
// user that lacks one.
func (g *Group) Normalize() {
	if g.Users == nil {
		g.Users = []User{}
	}
	if g.Meals == nil {
		g.Meals = map[string]UserMeals{}
	}
	for _, u := range g.Users {
		if g.Meals[u.ID] == nil {
			g.Meals[u.ID] = UserMeals{}
		}
	}
}

// Clone returns a deep copy of g.
func (g Group) Clone() Group {
	out := Group{ID: g.ID, Name: g.Name}
	if g.Users != nil {
		out.Users = make([]User, len(g.Users))
		copy(out.Users, g.Users)
	}
	out.Meals = CloneMeals(g.Meals)
	return out
}

// CloneMeals deep-copies a meals map. A nil map clones to nil.
func CloneMeals(meals map[string]UserMeals) map[string]UserMeals {
	if meals == nil {
		return nil
	}
	out := make(map[string]UserMeals, len(meals))
	for userID, days := range meals {
		if days == nil {
			out[userID] = nil
			continue
		}
		cp := make(UserMeals, len(days))
		for date, s := range days {
			cp[date] = s
		}
		out[userID] = cp
	}
	return out
}
