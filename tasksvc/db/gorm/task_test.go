package gorm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ichigozero/taskgate/tasksvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	libgorm "gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *libgorm.DB {
	t.Helper()

	db, err := libgorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &libgorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func boolean(b bool) *bool { return &b }

func str(s string) *string { return &s }

func seed(t *testing.T, r tasksvc.TaskRepository, owner string, titles ...string) []tasksvc.Task {
	t.Helper()
	var tasks []tasksvc.Task
	for _, title := range titles {
		task, err := r.Create(context.Background(), tasksvc.Draft{Title: title, OwnerID: owner})
		require.NoError(t, err)
		tasks = append(tasks, task)
	}
	return tasks
}

func TestCreateAndFind(t *testing.T) {
	r := NewTaskRepository(openTestDB(t))
	ctx := context.Background()

	created, err := r.Create(ctx, tasksvc.Draft{Title: "Buy milk", Description: "2 litres", OwnerID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, tasksvc.ID("1"), created.ID)
	assert.Equal(t, "alice", created.OwnerID)
	assert.False(t, created.Completed)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Nil(t, created.UpdatedAt)

	found, err := r.Find(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", found.Title)
	assert.Equal(t, "2 litres", found.Description)
	assert.Equal(t, "alice", found.OwnerID)

	for _, id := range []tasksvc.ID{"99", "abc", "-1"} {
		_, err := r.Find(ctx, id)
		assert.ErrorIs(t, err, tasksvc.ErrTaskNotFound, "id %q", id)
	}
}

func TestFindAll(t *testing.T) {
	r := NewTaskRepository(openTestDB(t))
	ctx := context.Background()

	seed(t, r, "alice", "banana", "Apple")
	seed(t, r, "bob", "cherry")
	_, err := r.Update(ctx, "2", tasksvc.Fields{Completed: boolean(true)})
	require.NoError(t, err)

	titles := func(p tasksvc.Page) []string {
		out := []string{}
		for _, task := range p.Tasks {
			out = append(out, task.Title)
		}
		return out
	}

	p, err := r.FindAll(ctx, tasksvc.Query{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"banana", "Apple", "cherry"}, titles(p))
	assert.Equal(t, 3, p.Total)

	p, err = r.FindAll(ctx, tasksvc.Query{Page: 1, Limit: 10, Sort: tasksvc.SortTitle})
	require.NoError(t, err)
	assert.Equal(t, []string{"Apple", "banana", "cherry"}, titles(p))

	p, err = r.FindAll(ctx, tasksvc.Query{Page: 1, Limit: 10, OwnerID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"banana", "Apple"}, titles(p))
	assert.Equal(t, 2, p.Total)

	p, err = r.FindAll(ctx, tasksvc.Query{Page: 1, Limit: 10, OwnerID: "alice", Completed: boolean(false)})
	require.NoError(t, err)
	assert.Equal(t, []string{"banana"}, titles(p))
	assert.Equal(t, 1, p.Total)

	p, err = r.FindAll(ctx, tasksvc.Query{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"cherry"}, titles(p))
	assert.Equal(t, 3, p.Total)

	p, err = r.FindAll(ctx, tasksvc.Query{Page: 100, Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, p.Tasks)
	assert.Empty(t, p.Tasks)
	assert.Equal(t, 3, p.Total)
}

func TestUpdate(t *testing.T) {
	r := NewTaskRepository(openTestDB(t))
	ctx := context.Background()
	created := seed(t, r, "alice", "Buy milk")[0]

	updated, err := r.Update(ctx, created.ID, tasksvc.Fields{Completed: boolean(true)})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assert.Equal(t, "Buy milk", updated.Title)
	assert.Equal(t, "alice", updated.OwnerID)
	assert.NotNil(t, updated.UpdatedAt)

	updated, err = r.Update(ctx, created.ID, tasksvc.Fields{Title: str("Buy oat milk"), Completed: boolean(false)})
	require.NoError(t, err)
	assert.Equal(t, "Buy oat milk", updated.Title)
	assert.False(t, updated.Completed)

	_, err = r.Update(ctx, "42", tasksvc.Fields{Completed: boolean(true)})
	assert.ErrorIs(t, err, tasksvc.ErrTaskNotFound)

	_, err = r.Update(ctx, "abc", tasksvc.Fields{Completed: boolean(true)})
	assert.ErrorIs(t, err, tasksvc.ErrTaskNotFound)
}

func TestDelete(t *testing.T) {
	r := NewTaskRepository(openTestDB(t))
	ctx := context.Background()
	seed(t, r, "alice", "one", "two")

	require.NoError(t, r.Delete(ctx, "1"))
	assert.ErrorIs(t, r.Delete(ctx, "1"), tasksvc.ErrTaskNotFound)
	assert.ErrorIs(t, r.Delete(ctx, "abc"), tasksvc.ErrTaskNotFound)

	_, err := r.Find(ctx, "1")
	assert.ErrorIs(t, err, tasksvc.ErrTaskNotFound)

	created, err := r.Create(ctx, tasksvc.Draft{Title: "three"})
	require.NoError(t, err)
	assert.Equal(t, tasksvc.ID("3"), created.ID)
}
