package api

import (
	"net/http"

	"taskdesk/pkg/apperr"
	"taskdesk/pkg/task"
	"taskdesk/pkg/user"
)

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request, caller *user.User) error {
	status := task.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		return apperr.Validation("status must be one of Pending, In Progress, Completed")
	}
	res, err := s.tasks.List(r.Context(), caller, status)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request, caller *user.User) error {
	v, err := s.tasks.Get(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, v)
	return nil
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request, caller *user.User) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	in, err := task.DecodeCreate(body)
	if err != nil {
		return err
	}
	v, err := s.tasks.Create(r.Context(), caller, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, v)
	return nil
}

func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request, caller *user.User) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	p, err := task.DecodePatch(body)
	if err != nil {
		return err
	}
	if p.Empty() {
		return apperr.Validation("no fields to update")
	}
	v, err := s.tasks.Update(r.Context(), caller, r.PathValue("id"), p)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, v)
	return nil
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request, caller *user.User) error {
	if err := s.tasks.Delete(r.Context(), caller, r.PathValue("id")); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "task deleted"})
	return nil
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request, caller *user.User) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	status, err := task.DecodeStatus(body)
	if err != nil {
		return err
	}
	v, err := s.tasks.SetStatus(r.Context(), caller, r.PathValue("id"), status)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, v)
	return nil
}

func (s *Server) handleTaskChecklist(w http.ResponseWriter, r *http.Request, caller *user.User) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	items, err := task.DecodeChecklist(body)
	if err != nil {
		return err
	}
	v, err := s.tasks.UpdateChecklist(r.Context(), caller, r.PathValue("id"), items)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, v)
	return nil
}

func (s *Server) handleTaskActivity(w http.ResponseWriter, r *http.Request, caller *user.User) error {
	entries, err := s.tasks.Activity(r.Context(), caller, r.PathValue("id"), queryInt(r, "limit", 100))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, entries)
	return nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, caller *user.User) error {
	d, err := s.tasks.Dashboard(r.Context(), caller, task.ScopeAll)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, d)
	return nil
}

func (s *Server) handleDashboardMe(w http.ResponseWriter, r *http.Request, caller *user.User) error {
	d, err := s.tasks.Dashboard(r.Context(), caller, task.ScopeMine)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, d)
	return nil
}
