// Package remote stores tasks in the hosted PostgREST tasks table. Calls are
// made with the caller's forwarded token so row-level security applies.
package remote

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/ichigozero/taskgate/supabase"
	"github.com/ichigozero/taskgate/tasksvc"
)

const tasksPath = "/rest/v1/tasks"

type taskRepository struct {
	selectTasks endpoint.Endpoint
	insertTask  endpoint.Endpoint
	updateTask  endpoint.Endpoint
	deleteTask  endpoint.Endpoint
	now         func() time.Time
}

func NewTaskRepository(api *supabase.Client) tasksvc.TaskRepository {
	return &taskRepository{
		selectTasks: api.ReadEndpoint("postgrest.tasks.select", http.MethodGet),
		insertTask:  api.Endpoint("postgrest.tasks.insert", http.MethodPost),
		updateTask:  api.Endpoint("postgrest.tasks.update", http.MethodPatch),
		deleteTask:  api.Endpoint("postgrest.tasks.delete", http.MethodDelete),
		now:         time.Now,
	}
}

type row struct {
	ID          tasksvc.ID `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Completed   bool       `json:"completed"`
	UserID      string     `json:"user_id"`
	CreatedAt   timestamp  `json:"created_at"`
	UpdatedAt   *timestamp `json:"updated_at"`
}

func (r row) task() tasksvc.Task {
	t := tasksvc.Task{
		ID:        r.ID,
		Title:     r.Title,
		Completed: r.Completed,
		OwnerID:   r.UserID,
		CreatedAt: r.CreatedAt.Time,
	}
	if r.Description != nil {
		t.Description = *r.Description
	}
	if r.UpdatedAt != nil {
		u := r.UpdatedAt.Time
		t.UpdatedAt = &u
	}
	return t
}

type insertRow struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	UserID      string `json:"user_id,omitempty"`
}

func (t *taskRepository) FindAll(ctx context.Context, q tasksvc.Query) (tasksvc.Page, error) {
	v := url.Values{"select": {"*"}}
	switch q.Sort {
	case tasksvc.SortTitle:
		v.Set("order", "title.asc")
	default:
		v.Set("order", "created_at.desc")
	}
	if q.Completed != nil {
		v.Set("completed", "eq."+strconv.FormatBool(*q.Completed))
	}
	if q.OwnerID != "" {
		v.Set("user_id", "eq."+q.OwnerID)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
		v.Set("offset", strconv.Itoa(q.Offset()))
	}

	response, err := t.selectTasks(ctx, supabase.Request{Path: tasksPath, Query: v, Prefer: "count=exact"})
	if err != nil {
		return tasksvc.Page{}, err
	}
	resp := response.(supabase.Response)

	rows, err := decodeRows(resp)
	if err != nil {
		return tasksvc.Page{}, err
	}

	tasks := make([]tasksvc.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.task())
	}

	total, ok := supabase.Total(resp)
	if !ok {
		total = len(tasks)
		if q.Limit > 0 {
			total += q.Offset()
		}
	}
	return tasksvc.Page{Tasks: tasks, Total: total, Page: q.Page, Limit: q.Limit}, nil
}

func (t *taskRepository) Find(ctx context.Context, id tasksvc.ID) (tasksvc.Task, error) {
	v := url.Values{
		"select": {"*"},
		"id":     {"eq." + id.String()},
		"limit":  {"1"},
	}
	response, err := t.selectTasks(ctx, supabase.Request{Path: tasksPath, Query: v})
	if err != nil {
		return tasksvc.Task{}, err
	}

	rows, err := decodeRows(response.(supabase.Response))
	if err != nil {
		return tasksvc.Task{}, err
	}
	if len(rows) == 0 {
		return tasksvc.Task{}, tasksvc.ErrTaskNotFound
	}
	return rows[0].task(), nil
}

func (t *taskRepository) Create(ctx context.Context, d tasksvc.Draft) (tasksvc.Task, error) {
	response, err := t.insertTask(ctx, supabase.Request{
		Path:   tasksPath,
		Prefer: "return=representation",
		Body: insertRow{
			Title:       d.Title,
			Description: d.Description,
			Completed:   false,
			UserID:      d.OwnerID,
		},
	})
	if err != nil {
		return tasksvc.Task{}, err
	}
	return firstRow(response.(supabase.Response))
}

func (t *taskRepository) Update(ctx context.Context, id tasksvc.ID, f tasksvc.Fields) (tasksvc.Task, error) {
	body := map[string]interface{}{
		"updated_at": t.now().UTC().Format(time.RFC3339Nano),
	}
	if f.Title != nil {
		body["title"] = *f.Title
	}
	if f.Description != nil {
		body["description"] = *f.Description
	}
	if f.Completed != nil {
		body["completed"] = *f.Completed
	}

	response, err := t.updateTask(ctx, supabase.Request{
		Path:   tasksPath,
		Query:  url.Values{"id": {"eq." + id.String()}},
		Prefer: "return=representation",
		Body:   body,
	})
	if err != nil {
		return tasksvc.Task{}, err
	}
	return firstRow(response.(supabase.Response))
}

func (t *taskRepository) Delete(ctx context.Context, id tasksvc.ID) error {
	response, err := t.deleteTask(ctx, supabase.Request{
		Path:   tasksPath,
		Query:  url.Values{"id": {"eq." + id.String()}},
		Prefer: "return=representation",
	})
	if err != nil {
		return err
	}

	rep, err := supabase.Decode(response.(supabase.Response))
	if err != nil {
		return err
	}
	if rep.Empty() {
		return tasksvc.ErrTaskNotFound
	}
	return nil
}

func decodeRows(resp supabase.Response) ([]row, error) {
	rep, err := supabase.Decode(resp)
	if err != nil {
		return nil, err
	}
	var rows []row
	if err := rep.All(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// firstRow unwraps a write representation. An acknowledged write without a
// representation yields tasksvc.ErrNoRepresentation.
func firstRow(resp supabase.Response) (tasksvc.Task, error) {
	rep, err := supabase.Decode(resp)
	if err != nil {
		return tasksvc.Task{}, err
	}
	if rep.Empty() {
		return tasksvc.Task{}, tasksvc.ErrNoRepresentation
	}
	var r row
	if err := rep.First(&r); err != nil {
		return tasksvc.Task{}, err
	}
	return r.task(), nil
}

// timestamp accepts both timestamptz and timestamp column values.
type timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func (t *timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}

	var err error
	for _, layout := range timestampLayouts {
		var parsed time.Time
		if parsed, err = time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return err
}
