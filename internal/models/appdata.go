package models

// AppData is the root aggregate: every known group plus the current selection.
//
// CurrentUserID is only meaningful relative to CurrentGroupID. If the user is
// not a member of the current group, the current user resolves to none.
type AppData struct {
	Groups         map[string]Group `json:"groups"`
	CurrentGroupID *string          `json:"currentGroupId"`
	CurrentUserID  *string          `json:"currentUserId"`
}

// NewAppData returns fresh state holding only the empty default group,
// selected as current.
func NewAppData() *AppData {
	id := DefaultGroupID
	return &AppData{
		Groups: map[string]Group{
			DefaultGroupID: NewGroup(DefaultGroupID, DefaultGroupName),
		},
		CurrentGroupID: &id,
	}
}

// EnsureDefaultGroup adds the default group when it is missing and points the
// current selection at it. It reports whether anything changed.
func (d *AppData) EnsureDefaultGroup() bool {
	if d.Groups == nil {
		d.Groups = map[string]Group{}
	}
	if _, ok := d.Groups[DefaultGroupID]; ok {
		return false
	}
	d.Groups[DefaultGroupID] = NewGroup(DefaultGroupID, DefaultGroupName)
	d.SetCurrentGroup(DefaultGroupID)
	return true
}

// Normalize normalises every group in place.
func (d *AppData) Normalize() {
	if d.Groups == nil {
		d.Groups = map[string]Group{}
	}
	for id, g := range d.Groups {
		g.Normalize()
		d.Groups[id] = g
	}
}

// SetCurrentGroup selects a group by ID.
func (d *AppData) SetCurrentGroup(id string) {
	d.CurrentGroupID = &id
}

// SetCurrentUser selects a user by ID. Membership is not checked.
func (d *AppData) SetCurrentUser(id string) {
	d.CurrentUserID = &id
}

// CurrentGroup returns the selected group, if it exists.
func (d *AppData) CurrentGroup() (Group, bool) {
	if d.CurrentGroupID == nil {
		return Group{}, false
	}
	g, ok := d.Groups[*d.CurrentGroupID]
	return g, ok
}

// CurrentUser returns the selected user if it is a member of the current group.
func (d *AppData) CurrentUser() (User, bool) {
	g, ok := d.CurrentGroup()
	if !ok || d.CurrentUserID == nil {
		return User{}, false
	}
	return g.User(*d.CurrentUserID)
}

// Clone returns a deep copy of d.
func (d *AppData) Clone() *AppData {
	out := &AppData{}
	if d.Groups != nil {
		out.Groups = make(map[string]Group, len(d.Groups))
		for id, g := range d.Groups {
			out.Groups[id] = g.Clone()
		}
	}
	if d.CurrentGroupID != nil {
		id := *d.CurrentGroupID
		out.CurrentGroupID = &id
	}
	if d.CurrentUserID != nil {
		id := *d.CurrentUserID
		out.CurrentUserID = &id
	}
	return out
}
