package models

// MaxUsersPerGroup is the capacity of a group.
const MaxUsersPerGroup = 10

// Palette is the fixed, ordered set of user colours.
// The Nth user to join a group gets Palette[N % len(Palette)].
var Palette = []string{
	"#3B82F6", // blue
	"#10B981", // green
	"#F59E0B", // amber
	"#EF4444", // red
	"#8B5CF6", // violet
	"#EC4899", // pink
	"#06B6D4", // cyan
	"#F97316", // orange
	"#6366F1", // indigo
	"#14B8A6", // teal
}

// ColorFor returns the palette colour for the user at the given join index.
// Negative indexes wrap from the end of the palette.
func ColorFor(index int) string {
	n := len(Palette)
	return Palette[((index%n)+n)%n]
}

// User represents one member of a group.
type User struct {
	// ID is the unique identifier for the user (UUID format). Immutable.
	ID string `json:"id" bson:"id"`

	// Name is the display name entered when the user joined.
	Name string `json:"name" bson:"name"`

	// Color is derived from the user's position in the group (see Palette).
	Color string `json:"color" bson:"color"`
}
