package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"taskdesk/pkg/apperr"
	"taskdesk/pkg/user"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ *user.User) error {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ *user.User) error {
	ctx := r.Context()
	counts, err := s.tasks.CountsFor(ctx, "")
	if err != nil {
		return err
	}
	users, err := s.users.List(ctx, "")
	if err != nil {
		return apperr.Internal(err, "failed to count users")
	}
	entries := 0
	if s.activity != nil {
		if entries, err = s.activity.Count(ctx); err != nil {
			return apperr.Internal(err, "failed to count activity")
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tasks":            counts,
		"users":            len(users),
		"activity_entries": entries,
	})
	return nil
}

// streamPage bounds one Since read while catching up.
const streamPage = 100

// handleActivityStream pushes new activity entries as server-sent events.
// ?after resumes from an entry ID; without it only entries recorded after
// the stream opens are sent.
func (s *Server) handleActivityStream(w http.ResponseWriter, r *http.Request, _ *user.User) error {
	if s.activity == nil {
		return apperr.Configuration("activity log is disabled")
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		return apperr.Internal(nil, "streaming not supported")
	}

	ctx := r.Context()
	lastID := r.URL.Query().Get("after")
	if lastID == "" {
		head, err := s.activity.Recent(ctx, 1)
		if err != nil {
			return apperr.Internal(err, "failed to read activity")
		}
		if len(head) > 0 {
			lastID = head[0].ID
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(s.streamEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// Page forward until caught up.
			for {
				batch, err := s.activity.Since(ctx, lastID, streamPage)
				if err != nil {
					if ctx.Err() == nil {
						s.log.WithField("operation", "activity.stream").WithError(err).Warn("poll failed")
					}
					break
				}
				for _, e := range batch {
					fmt.Fprintf(w, "id: %s\ndata: ", e.ID)
					json.NewEncoder(w).Encode(e)
					fmt.Fprint(w, "\n")
					lastID = e.ID
				}
				if len(batch) > 0 {
					flusher.Flush()
				}
				if len(batch) < streamPage {
					break
				}
			}
		}
	}
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
