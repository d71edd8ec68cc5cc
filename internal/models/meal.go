package models

import (
	"errors"
	"fmt"
)

// ErrInvalidMealType is returned when a meal type is neither lunch nor dinner.
var ErrInvalidMealType = errors.New("invalid meal type")

// MealType identifies one of the two tracked meals.
type MealType string

const (
	Lunch  MealType = "lunch"
	Dinner MealType = "dinner"
)

// ParseMealType validates s as a MealType.
func ParseMealType(s string) (MealType, error) {
	switch MealType(s) {
	case Lunch, Dinner:
		return MealType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMealType, s)
}

// MealStatus is one user's attendance for one calendar day.
type MealStatus struct {
	Lunch  bool `json:"lunch" bson:"lunch"`
	Dinner bool `json:"dinner" bson:"dinner"`
}

// Get reports the flag for the given meal. Unknown meal types read as false.
func (s MealStatus) Get(meal MealType) bool {
	switch meal {
	case Lunch:
		return s.Lunch
	case Dinner:
		return s.Dinner
	}
	return false
}

// Toggled returns a copy of s with the given meal flipped.
func (s MealStatus) Toggled(meal MealType) MealStatus {
	switch meal {
	case Lunch:
		s.Lunch = !s.Lunch
	case Dinner:
		s.Dinner = !s.Dinner
	}
	return s
}

// UserMeals maps a date-key (YYYY-MM-DD) to that day's status.
// Keys are created lazily; a missing key means both flags are false.
type UserMeals map[string]MealStatus

// MealCount is the attendance for one meal on one day.
// Total may be zero; callers must not divide by it.
type MealCount struct {
	Count int `json:"count"`
	Total int `json:"total"`
}

// DaySummary holds both meal counts for one date.
type DaySummary struct {
	Date   string    `json:"date"`
	Lunch  MealCount `json:"lunch"`
	Dinner MealCount `json:"dinner"`
}
