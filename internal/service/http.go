// Package service exposes the state model to the view layer as a JSON HTTP
// API plus a server-sent-events stream of group changes.
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/mealboard/internal/calendar"
	"github.com/mmynk/mealboard/internal/models"
	"github.com/mmynk/mealboard/internal/schedule"
	"github.com/mmynk/mealboard/internal/storage"
)

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 16

// Option configures the services.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock sets the clock used for "today" and week windows.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Routes mounts every API endpoint on a new router.
func Routes(groups *GroupService, meals *MealService, events *EventHub) chi.Router {
	r := chi.NewRouter()

	r.Get("/state", groups.GetState)
	r.Post("/groups", groups.CreateGroup)
	r.Post("/groups/{groupID}/select", groups.SelectGroup)
	r.Post("/users", groups.AddUser)
	r.Put("/current-user", groups.SetCurrentUser)

	r.Post("/meals/toggle", meals.ToggleMeal)
	r.Get("/meals/{date}/{meal}/count", meals.GetMealCount)
	r.Get("/users/{userID}/meals/{date}", meals.GetMealStatus)
	r.Get("/week", meals.GetWeek)

	r.Get("/events", events.ServeHTTP)

	return r
}

// decodeJSON reads a JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

// statusFor maps model and storage errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, schedule.ErrGroupFull),
		errors.Is(err, schedule.ErrEmptyName),
		errors.Is(err, models.ErrInvalidMealType),
		errors.Is(err, calendar.ErrInvalidDateKey):
		return http.StatusBadRequest
	case errors.Is(err, schedule.ErrNoCurrentGroup):
		return http.StatusConflict
	case errors.Is(err, storage.ErrGroupNotFound):
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

type errorResponse struct {
	Error string `json:"error"`
}
