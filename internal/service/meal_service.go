package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/mealboard/internal/calendar"
	"github.com/mmynk/mealboard/internal/models"
	"github.com/mmynk/mealboard/internal/schedule"
)

// MealService serves meal toggling, per-user status, counts and the week view.
type MealService struct {
	model *schedule.Model
	opts  options
}

// NewMealService creates a MealService over model.
func NewMealService(model *schedule.Model, opts ...Option) *MealService {
	return &MealService{model: model, opts: buildOptions(opts)}
}

type toggleMealRequest struct {
	Date string `json:"date"`
	Meal string `json:"meal"`
}

// WeekResponse is one calendar window with attendance counts.
type WeekResponse struct {
	Offset int       `json:"offset"`
	Range  string    `json:"range"`
	Days   []WeekDay `json:"days"`
}

// WeekDay is one date in the window.
type WeekDay struct {
	Date   string           `json:"date"`
	Label  string           `json:"label"`
	Today  bool             `json:"today"`
	Lunch  models.MealCount `json:"lunch"`
	Dinner models.MealCount `json:"dinner"`
}

// ToggleMeal flips the current user's flag for one meal and returns the new
// status. Without a current user nothing changes and both flags read false.
func (s *MealService) ToggleMeal(w http.ResponseWriter, r *http.Request) {
	var req toggleMealRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	status, err := s.model.ToggleMeal(r.Context(), req.Date, models.MealType(req.Meal))
	if err != nil {
		slog.Error("ToggleMeal failed", "date", req.Date, "meal", req.Meal, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// GetMealCount returns attendance for one meal on one date in the current group.
func (s *MealService) GetMealCount(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	meal, err := models.ParseMealType(chi.URLParam(r, "meal"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !calendar.ValidDateKey(date) {
		writeError(w, fmt.Errorf("%w: %q", calendar.ErrInvalidDateKey, date))
		return
	}

	writeJSON(w, http.StatusOK, s.model.MealCount(date, meal))
}

// GetMealStatus returns one user's status for one date.
func (s *MealService) GetMealStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	date := chi.URLParam(r, "date")
	if !calendar.ValidDateKey(date) {
		writeError(w, fmt.Errorf("%w: %q", calendar.ErrInvalidDateKey, date))
		return
	}

	writeJSON(w, http.StatusOK, s.model.MealStatus(userID, date))
}

// GetWeek returns the 8-day window for ?offset=N (default 0) with counts.
func (s *MealService) GetWeek(w http.ResponseWriter, r *http.Request) {
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, fmt.Errorf("%w: offset %q is not an integer", errBadRequest, raw))
			return
		}
		offset = n
	}

	now := s.opts.now()
	dates := calendar.WeekDatesAt(now, offset)
	summary := s.model.WeekSummary(dates)

	resp := WeekResponse{
		Offset: offset,
		Range:  calendar.FormatRange(dates),
		Days:   make([]WeekDay, len(dates)),
	}
	for i, d := range dates {
		resp.Days[i] = WeekDay{
			Date:   summary[i].Date,
			Label:  calendar.DisplayDate(d),
			Today:  calendar.IsTodayAt(d, now),
			Lunch:  summary[i].Lunch,
			Dinner: summary[i].Dinner,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
