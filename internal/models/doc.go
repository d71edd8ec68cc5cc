// Package models defines the core domain models for mealboard.
//
// # Models
//
//   - AppData: root aggregate holding every known group plus the current selection
//   - Group: a named set of users sharing one meal schedule
//   - User: a group member; colour is derived from join order
//   - MealStatus: lunch/dinner attendance for one user on one day
//
// Meals are keyed by user ID, then by date-key ("YYYY-MM-DD", local calendar day).
// A missing user entry or date entry means "not attending".
//
// # Design Principles
//
// 1. **Document shape**: the same struct encodes to JSON (local snapshot) and BSON (remote document)
// 2. **Value semantics**: state handed out of the model is a deep copy (see Clone)
// 3. **Tolerant reads**: lookups never fail; absent data reads as false
package models
