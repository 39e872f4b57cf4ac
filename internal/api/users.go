package api

import (
	"net/http"

	"taskdesk/pkg/apperr"
	"taskdesk/pkg/task"
	"taskdesk/pkg/user"
)

type memberSummary struct {
	user.User
	Tasks task.Counts `json:"tasks"`
}

func (s *Server) handleUserList(w http.ResponseWriter, r *http.Request, _ *user.User) error {
	ctx := r.Context()
	members, err := s.users.List(ctx, user.RoleMember)
	if err != nil {
		return apperr.Internal(err, "failed to list users")
	}
	out := make([]memberSummary, 0, len(members))
	for _, m := range members {
		counts, err := s.tasks.CountsFor(ctx, m.ID)
		if err != nil {
			return err
		}
		out = append(out, memberSummary{User: m, Tasks: counts})
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *Server) handleUserGet(w http.ResponseWriter, r *http.Request, _ *user.User) error {
	u, err := s.users.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		return storeErr(err, "failed to load user")
	}
	writeJSON(w, http.StatusOK, u)
	return nil
}

func (s *Server) handleUserDelete(w http.ResponseWriter, r *http.Request, caller *user.User) error {
	id := r.PathValue("id")
	if id == caller.ID {
		return apperr.Validation("you cannot delete your own account")
	}
	if err := s.users.Delete(r.Context(), id); err != nil {
		return storeErr(err, "failed to delete user")
	}
	s.log.WithField("operation", "user.delete").WithField("user_id", id).WithField("by", caller.ID).Info("user deleted")
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
	return nil
}

// storeErr keeps classified store errors and wraps everything else.
func storeErr(err error, msg string) error {
	if apperr.KindOf(err) == apperr.KindInternal {
		return apperr.Internal(err, "%s", msg)
	}
	return err
}
