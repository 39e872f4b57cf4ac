package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// client talks to the taskdesk HTTP API on behalf of one signed-in user.
type client struct {
	base string
	http *http.Client

	mu    sync.RWMutex
	token string
	me    *Member
}

type Member struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
	Role   string `json:"role"`
}

type session struct {
	User  *Member `json:"user"`
	Token string  `json:"token"`
}

type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ChecklistItem struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

type TaskView struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Priority       string          `json:"priority"`
	Status         string          `json:"status"`
	Progress       int             `json:"progress"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	Checklist      []ChecklistItem `json:"checklist"`
	Assignees      []Ref           `json:"assignees"`
	CompletedCount int             `json:"completed_count"`
}

type Distribution struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Low        int `json:"low"`
	Moderate   int `json:"moderate"`
	High       int `json:"high"`
}

type Dashboard struct {
	Total        int          `json:"total"`
	Distribution Distribution `json:"distribution"`
	Recent       []TaskView   `json:"recent"`
}

type taskList struct {
	Tasks []TaskView `json:"tasks"`
}

func newClient(base string) *client {
	return &client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *client) signedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

func (c *client) member() *Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.me
}

func (c *client) login(handle, secret string) error {
	var s session
	err := c.do(http.MethodPost, "/auth/login", map[string]string{"handle": handle, "secret": secret}, &s)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.token, c.me = s.Token, s.User
	c.mu.Unlock()
	return nil
}

func (c *client) logout() {
	c.mu.Lock()
	c.token, c.me = "", nil
	c.mu.Unlock()
}

func (c *client) dashboard() (*Dashboard, error) {
	var d Dashboard
	if err := c.do(http.MethodGet, "/tasks/dashboard/me", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *client) myTasks() ([]TaskView, error) {
	var l taskList
	if err := c.do(http.MethodGet, "/tasks", nil, &l); err != nil {
		return nil, err
	}
	return l.Tasks, nil
}

func (c *client) complete(id string) error {
	return c.do(http.MethodPut, "/tasks/"+id+"/status", map[string]string{"status": "Completed"}, nil)
}

// do sends body as JSON and decodes a 2xx response into out. Error
// responses surface the server's {"error": ...} message.
func (c *client) do(method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s", e.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
