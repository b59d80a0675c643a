package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	kitjwt "github.com/go-kit/kit/auth/jwt"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskgate/supabase"
	"github.com/ichigozero/taskgate/tasksvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postgrest is a minimal in-memory stand-in for the hosted tasks table.
type postgrest struct {
	mu        sync.Mutex
	rows      []map[string]interface{}
	next      int
	lastQuery url.Values
	lastBody  map[string]interface{}
	tokens    []string
	// silent makes inserts answer 201 without a representation.
	silent bool
}

func (p *postgrest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r.URL.Path != tasksPath {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	p.tokens = append(p.tokens, r.Header.Get("Authorization"))
	p.lastQuery = r.URL.Query()
	p.lastBody = nil
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&p.lastBody)
	}

	switch r.Method {
	case http.MethodGet:
		matched := p.match(p.lastQuery)
		if p.lastQuery.Get("order") == "title.asc" {
			sort.SliceStable(matched, func(i, j int) bool {
				return matched[i]["title"].(string) < matched[j]["title"].(string)
			})
		}
		total := len(matched)
		offset, _ := strconv.Atoi(p.lastQuery.Get("offset"))
		if limit, err := strconv.Atoi(p.lastQuery.Get("limit")); err == nil {
			if offset > len(matched) {
				offset = len(matched)
			}
			end := offset + limit
			if end > len(matched) {
				end = len(matched)
			}
			matched = matched[offset:end]
		}
		if strings.Contains(r.Header.Get("Prefer"), "count=exact") {
			w.Header().Set("Content-Range", fmt.Sprintf("%d-%d/%d", offset, offset+len(matched)-1, total))
		}
		p.write(w, http.StatusOK, matched)

	case http.MethodPost:
		p.next++
		row := map[string]interface{}{
			"id":          p.next,
			"title":       p.lastBody["title"],
			"description": p.lastBody["description"],
			"completed":   p.lastBody["completed"],
			"user_id":     p.lastBody["user_id"],
			"created_at":  "2024-01-01T10:00:00.123456+00:00",
			"updated_at":  nil,
		}
		p.rows = append(p.rows, row)
		p.write(w, http.StatusCreated, []map[string]interface{}{row})

	case http.MethodPatch:
		matched := p.match(p.lastQuery)
		for _, row := range matched {
			for k, v := range p.lastBody {
				row[k] = v
			}
		}
		p.write(w, http.StatusOK, matched)

	case http.MethodDelete:
		matched := p.match(p.lastQuery)
		kept := p.rows[:0]
		for _, row := range p.rows {
			if !contains(matched, row) {
				kept = append(kept, row)
			}
		}
		p.rows = kept
		p.write(w, http.StatusOK, matched)
	}
}

func (p *postgrest) write(w http.ResponseWriter, status int, rows []map[string]interface{}) {
	if p.silent && status == http.StatusCreated {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	json.NewEncoder(w).Encode(rows)
}

func (p *postgrest) match(q url.Values) []map[string]interface{} {
	matched := []map[string]interface{}{}
	for _, row := range p.rows {
		if v := q.Get("id"); v != "" && "eq."+fmt.Sprint(row["id"]) != v {
			continue
		}
		if v := q.Get("user_id"); v != "" && "eq."+fmt.Sprint(row["user_id"]) != v {
			continue
		}
		if v := q.Get("completed"); v != "" && "eq."+fmt.Sprint(row["completed"]) != v {
			continue
		}
		matched = append(matched, row)
	}
	return matched
}

func contains(rows []map[string]interface{}, row map[string]interface{}) bool {
	for _, r := range rows {
		if r["id"] == row["id"] {
			return true
		}
	}
	return false
}

func newTestRepository(t *testing.T) (*postgrest, tasksvc.TaskRepository) {
	t.Helper()

	fake := &postgrest{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	api, err := supabase.New(supabase.Config{URL: srv.URL, Key: "anon"}, log.NewNopLogger())
	require.NoError(t, err)
	return fake, NewTaskRepository(api)
}

func userContext(token string) context.Context {
	return context.WithValue(context.Background(), kitjwt.JWTContextKey, token)
}

func boolean(b bool) *bool { return &b }

func str(s string) *string { return &s }

func TestCreateForwardsTokenAndOwner(t *testing.T) {
	fake, r := newTestRepository(t)

	task, err := r.Create(userContext("alice-token"), tasksvc.Draft{Title: "Buy milk", OwnerID: "alice"})
	require.NoError(t, err)

	assert.Equal(t, tasksvc.ID("1"), task.ID)
	assert.Equal(t, "Buy milk", task.Title)
	assert.Equal(t, "alice", task.OwnerID)
	assert.False(t, task.Completed)
	assert.True(t, time.Date(2024, 1, 1, 10, 0, 0, 123456000, time.UTC).Equal(task.CreatedAt))
	assert.Nil(t, task.UpdatedAt)

	assert.Equal(t, []string{"Bearer alice-token"}, fake.tokens)
	assert.Equal(t, "alice", fake.lastBody["user_id"])
	assert.Equal(t, false, fake.lastBody["completed"])
}

func TestFindAll(t *testing.T) {
	fake, r := newTestRepository(t)
	ctx := userContext("tok")
	for _, d := range []tasksvc.Draft{
		{Title: "banana", OwnerID: "alice"},
		{Title: "apple", OwnerID: "alice"},
		{Title: "cherry", OwnerID: "bob"},
	} {
		_, err := r.Create(ctx, d)
		require.NoError(t, err)
	}

	p, err := r.FindAll(ctx, tasksvc.Query{Page: 1, Limit: 10, Sort: tasksvc.SortTitle, OwnerID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "title.asc", fake.lastQuery.Get("order"))
	assert.Equal(t, "eq.alice", fake.lastQuery.Get("user_id"))
	assert.Equal(t, "10", fake.lastQuery.Get("limit"))
	assert.Equal(t, "0", fake.lastQuery.Get("offset"))
	require.Len(t, p.Tasks, 2)
	assert.Equal(t, "apple", p.Tasks[0].Title)
	assert.Equal(t, 2, p.Total)

	p, err = r.FindAll(ctx, tasksvc.Query{Page: 2, Limit: 2, Completed: boolean(false)})
	require.NoError(t, err)
	assert.Equal(t, "created_at.desc", fake.lastQuery.Get("order"))
	assert.Equal(t, "eq.false", fake.lastQuery.Get("completed"))
	assert.Equal(t, "2", fake.lastQuery.Get("offset"))
	assert.Len(t, p.Tasks, 1)
	assert.Equal(t, 3, p.Total)
	assert.Equal(t, 2, p.Page)
}

func TestFind(t *testing.T) {
	_, r := newTestRepository(t)
	ctx := userContext("tok")
	created, err := r.Create(ctx, tasksvc.Draft{Title: "Buy milk", Description: "2 litres"})
	require.NoError(t, err)

	found, err := r.Find(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "2 litres", found.Description)

	_, err = r.Find(ctx, "42")
	assert.ErrorIs(t, err, tasksvc.ErrTaskNotFound)
}

func TestUpdate(t *testing.T) {
	fake, r := newTestRepository(t)
	ctx := userContext("tok")
	created, err := r.Create(ctx, tasksvc.Draft{Title: "Buy milk"})
	require.NoError(t, err)

	updated, err := r.Update(ctx, created.ID, tasksvc.Fields{Completed: boolean(true)})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assert.Equal(t, "Buy milk", updated.Title)
	require.NotNil(t, updated.UpdatedAt)

	assert.Equal(t, "eq.1", fake.lastQuery.Get("id"))
	assert.NotContains(t, fake.lastBody, "title")
	assert.Contains(t, fake.lastBody, "updated_at")

	updated, err = r.Update(ctx, created.ID, tasksvc.Fields{Title: str("Buy oat milk")})
	require.NoError(t, err)
	assert.Equal(t, "Buy oat milk", updated.Title)
	assert.True(t, updated.Completed)

	_, err = r.Update(ctx, "42", tasksvc.Fields{Completed: boolean(true)})
	assert.ErrorIs(t, err, tasksvc.ErrNoRepresentation)
}

func TestDelete(t *testing.T) {
	_, r := newTestRepository(t)
	ctx := userContext("tok")
	created, err := r.Create(ctx, tasksvc.Draft{Title: "Buy milk"})
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, created.ID))
	assert.ErrorIs(t, r.Delete(ctx, created.ID), tasksvc.ErrTaskNotFound)

	_, err = r.Find(ctx, created.ID)
	assert.ErrorIs(t, err, tasksvc.ErrTaskNotFound)
}

func TestWriteWithoutRepresentation(t *testing.T) {
	fake, r := newTestRepository(t)
	fake.silent = true

	_, err := r.Create(userContext("tok"), tasksvc.Draft{Title: "Buy milk"})
	assert.ErrorIs(t, err, tasksvc.ErrNoRepresentation)
}

func TestTimestampLayouts(t *testing.T) {
	for _, s := range []string{
		`"2024-01-01T10:00:00Z"`,
		`"2024-01-01T10:00:00.5+00:00"`,
		`"2024-01-01T10:00:00"`,
		`"2024-01-01 10:00:00+00:00"`,
	} {
		var ts timestamp
		require.NoError(t, json.Unmarshal([]byte(s), &ts), s)
		assert.Equal(t, 2024, ts.Year(), s)
		assert.Equal(t, 10, ts.Hour(), s)
	}

	var ts timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}
