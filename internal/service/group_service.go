package service

import (
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/mealboard/internal/models"
	"github.com/mmynk/mealboard/internal/schedule"
)

// GroupService serves group, user and selection endpoints.
type GroupService struct {
	model *schedule.Model
}

// NewGroupService creates a GroupService over model.
func NewGroupService(model *schedule.Model) *GroupService {
	return &GroupService{model: model}
}

// StateResponse is the view layer's picture of the current selection.
type StateResponse struct {
	Backend string         `json:"backend"`
	Group   *models.Group  `json:"group"`
	User    *models.User   `json:"user"`
	Groups  []GroupSummary `json:"groups"`
	Error   string         `json:"error,omitempty"`
}

// GroupSummary names one known group.
type GroupSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Users int    `json:"users"`
}

type createGroupRequest struct {
	Name     string `json:"name"`
	UserName string `json:"userName"`
}

type addUserRequest struct {
	Name string `json:"name"`
}

type setCurrentUserRequest struct {
	UserID string `json:"userId"`
}

// GetState returns the current group, current user and backend name.
func (s *GroupService) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

func (s *GroupService) state() StateResponse {
	resp := StateResponse{Backend: s.model.Backend()}
	if g, ok := s.model.CurrentGroup(); ok {
		resp.Group = &g
	}
	if u, ok := s.model.CurrentUser(); ok {
		resp.User = &u
	}
	if err := s.model.Err(); err != nil {
		resp.Error = err.Error()
	}

	data := s.model.Snapshot()
	resp.Groups = make([]GroupSummary, 0, len(data.Groups))
	for _, g := range data.Groups {
		resp.Groups = append(resp.Groups, GroupSummary{ID: g.ID, Name: g.Name, Users: len(g.Users)})
	}
	sort.Slice(resp.Groups, func(i, j int) bool {
		if resp.Groups[i].Name != resp.Groups[j].Name {
			return resp.Groups[i].Name < resp.Groups[j].Name
		}
		return resp.Groups[i].ID < resp.Groups[j].ID
	})
	return resp
}

// CreateGroup creates a group with its founding member.
func (s *GroupService) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("CreateGroup request received", "name", req.Name, "user_name", req.UserName)

	group, err := s.model.CreateGroup(r.Context(), req.Name, req.UserName)
	if err != nil {
		slog.Error("CreateGroup failed", "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, group)
}

// SelectGroup switches the current group.
func (s *GroupService) SelectGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	if err := s.model.SelectGroup(r.Context(), groupID); err != nil {
		slog.Error("SelectGroup failed", "group_id", groupID, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.state())
}

// AddUser adds a member to the current group.
func (s *GroupService) AddUser(w http.ResponseWriter, r *http.Request) {
	var req addUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := s.model.AddUser(r.Context(), req.Name)
	if err != nil {
		slog.Error("AddUser failed", "name", req.Name, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// SetCurrentUser changes the selected user. Membership is not checked; the
// response shows whether the selection resolved to a member.
func (s *GroupService) SetCurrentUser(w http.ResponseWriter, r *http.Request) {
	var req setCurrentUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.model.SetCurrentUser(r.Context(), req.UserID); err != nil {
		slog.Error("SetCurrentUser failed", "user_id", req.UserID, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.state())
}
