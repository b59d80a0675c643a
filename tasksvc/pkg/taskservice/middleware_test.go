package taskservice

import (
	"context"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/ichigozero/taskgate/authsvc"
	"github.com/ichigozero/taskgate/tasksvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepository is an unsorted in-memory TaskRepository that records the
// last query it served.
type memRepository struct {
	tasks     map[tasksvc.ID]tasksvc.Task
	next      int
	lastQuery tasksvc.Query
}

func newMemRepository(tasks ...tasksvc.Task) *memRepository {
	r := &memRepository{tasks: map[tasksvc.ID]tasksvc.Task{}}
	for _, t := range tasks {
		r.tasks[t.ID] = t
		r.next++
	}
	return r
}

func (r *memRepository) FindAll(_ context.Context, q tasksvc.Query) (tasksvc.Page, error) {
	r.lastQuery = q
	tasks := []tasksvc.Task{}
	for _, t := range r.tasks {
		if q.OwnerID == "" || t.OwnerID == q.OwnerID {
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasksvc.Page{Tasks: tasks, Total: len(tasks), Page: q.Page, Limit: q.Limit}, nil
}

func (r *memRepository) Find(_ context.Context, id tasksvc.ID) (tasksvc.Task, error) {
	t, ok := r.tasks[id]
	if !ok {
		return tasksvc.Task{}, tasksvc.ErrTaskNotFound
	}
	return t, nil
}

func (r *memRepository) Create(_ context.Context, d tasksvc.Draft) (tasksvc.Task, error) {
	r.next++
	t := tasksvc.Task{
		ID:          tasksvc.ID(strconv.Itoa(r.next)),
		Title:       d.Title,
		Description: d.Description,
		OwnerID:     d.OwnerID,
		CreatedAt:   time.Now(),
	}
	r.tasks[t.ID] = t
	return t, nil
}

func (r *memRepository) Update(_ context.Context, id tasksvc.ID, f tasksvc.Fields) (tasksvc.Task, error) {
	t, ok := r.tasks[id]
	if !ok {
		return tasksvc.Task{}, tasksvc.ErrTaskNotFound
	}
	if f.Title != nil {
		t.Title = *f.Title
	}
	if f.Description != nil {
		t.Description = *f.Description
	}
	if f.Completed != nil {
		t.Completed = *f.Completed
	}
	now := time.Now()
	t.UpdatedAt = &now
	r.tasks[id] = t
	return t, nil
}

func (r *memRepository) Delete(_ context.Context, id tasksvc.ID) error {
	if _, ok := r.tasks[id]; !ok {
		return tasksvc.ErrTaskNotFound
	}
	delete(r.tasks, id)
	return nil
}

var (
	alice = authsvc.Identity{Subject: "alice", Role: authsvc.RoleUser}
	bob   = authsvc.Identity{Subject: "bob", Role: authsvc.RoleUser}
	admin = authsvc.Identity{Subject: "root", Role: authsvc.RoleAdmin}
)

func newAuthorizedService(repo *memRepository) Service {
	return AuthorizingMiddleware(repo)(NewBasicService(repo, Validator{}))
}

func seeded() *memRepository {
	return newMemRepository(
		tasksvc.Task{ID: "1", Title: "alice's", OwnerID: "alice"},
		tasksvc.Task{ID: "2", Title: "bob's", OwnerID: "bob"},
	)
}

func TestTasksAreScopedToOwner(t *testing.T) {
	repo := seeded()
	svc := newAuthorizedService(repo)
	q := tasksvc.Query{Page: 1, Limit: 10}

	p, err := svc.Tasks(context.Background(), alice, q)
	require.NoError(t, err)
	assert.Equal(t, "alice", repo.lastQuery.OwnerID)
	require.Len(t, p.Tasks, 1)
	assert.Equal(t, tasksvc.ID("1"), p.Tasks[0].ID)

	// A caller cannot widen the scope by naming another owner.
	q.OwnerID = "bob"
	_, err = svc.Tasks(context.Background(), alice, q)
	require.NoError(t, err)
	assert.Equal(t, "alice", repo.lastQuery.OwnerID)

	p, err = svc.Tasks(context.Background(), admin, tasksvc.Query{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "", repo.lastQuery.OwnerID)
	assert.Equal(t, 2, p.Total)
}

func TestAnonymousCallerIsRejected(t *testing.T) {
	svc := newAuthorizedService(seeded())
	ctx := context.Background()
	anon := authsvc.Identity{}

	_, err := svc.Tasks(ctx, anon, tasksvc.Query{Page: 1, Limit: 10})
	assert.ErrorIs(t, err, authsvc.ErrMissingCredential)
	_, err = svc.Task(ctx, anon, "1")
	assert.ErrorIs(t, err, authsvc.ErrMissingCredential)
	_, err = svc.CreateTask(ctx, anon, tasksvc.Fields{Title: str("x")})
	assert.ErrorIs(t, err, authsvc.ErrMissingCredential)
	_, err = svc.UpdateTask(ctx, anon, "1", tasksvc.Fields{})
	assert.ErrorIs(t, err, authsvc.ErrMissingCredential)
	assert.ErrorIs(t, svc.DeleteTask(ctx, anon, "1"), authsvc.ErrMissingCredential)
}

func TestCreateStampsOwner(t *testing.T) {
	repo := seeded()
	svc := newAuthorizedService(repo)

	task, err := svc.CreateTask(context.Background(), bob, tasksvc.Fields{Title: str(" Buy milk "), Completed: boolean(true)})
	require.NoError(t, err)
	assert.Equal(t, "bob", task.OwnerID)
	assert.Equal(t, "Buy milk", task.Title)
	assert.False(t, task.Completed)
}

func TestReadForeignTask(t *testing.T) {
	svc := newAuthorizedService(seeded())

	_, err := svc.Task(context.Background(), alice, "2")
	assert.ErrorIs(t, err, authsvc.ErrAccessDenied)

	task, err := svc.Task(context.Background(), admin, "2")
	require.NoError(t, err)
	assert.Equal(t, "bob", task.OwnerID)

	_, err = svc.Task(context.Background(), alice, "99")
	assert.ErrorIs(t, err, tasksvc.ErrTaskNotFound)
}

func TestUpdateForeignTask(t *testing.T) {
	repo := seeded()
	svc := newAuthorizedService(repo)

	_, err := svc.UpdateTask(context.Background(), alice, "2", tasksvc.Fields{Completed: boolean(true)})
	assert.ErrorIs(t, err, authsvc.ErrAccessDenied)
	assert.False(t, repo.tasks["2"].Completed)

	// Ownership is decided before the payload is validated.
	_, err = svc.UpdateTask(context.Background(), alice, "2", tasksvc.Fields{Title: str("")})
	assert.ErrorIs(t, err, authsvc.ErrAccessDenied)

	_, err = svc.UpdateTask(context.Background(), alice, "99", tasksvc.Fields{Completed: boolean(true)})
	assert.ErrorIs(t, err, tasksvc.ErrTaskNotFound)

	task, err := svc.UpdateTask(context.Background(), bob, "2", tasksvc.Fields{Completed: boolean(true)})
	require.NoError(t, err)
	assert.True(t, task.Completed)
	assert.Equal(t, "bob's", task.Title)
	assert.NotNil(t, task.UpdatedAt)

	task, err = svc.UpdateTask(context.Background(), admin, "1", tasksvc.Fields{Title: str("renamed")})
	require.NoError(t, err)
	assert.Equal(t, "renamed", task.Title)
}

func TestDeleteForeignTask(t *testing.T) {
	repo := seeded()
	svc := newAuthorizedService(repo)

	assert.ErrorIs(t, svc.DeleteTask(context.Background(), bob, "1"), authsvc.ErrAccessDenied)
	assert.Contains(t, repo.tasks, tasksvc.ID("1"))

	require.NoError(t, svc.DeleteTask(context.Background(), admin, "1"))
	assert.NotContains(t, repo.tasks, tasksvc.ID("1"))

	assert.ErrorIs(t, svc.DeleteTask(context.Background(), admin, "1"), tasksvc.ErrTaskNotFound)
}
