// Package jsonfile keeps every task in a single JSON array file.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ichigozero/taskgate/tasksvc"
)

// requiredFields must be present in every stored record.
var requiredFields = []string{"id", "title", "completed", "createdAt"}

type taskRepository struct {
	mu   sync.RWMutex
	path string
	// highWater is the largest id ever handed out by this repository.
	highWater int64
	now       func() time.Time
}

func NewTaskRepository(path string) tasksvc.TaskRepository {
	return newTaskRepository(path, time.Now)
}

func newTaskRepository(path string, now func() time.Time) *taskRepository {
	return &taskRepository{path: path, now: now}
}

func (t *taskRepository) FindAll(_ context.Context, q tasksvc.Query) (tasksvc.Page, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	tasks, err := t.load()
	if err != nil {
		return tasksvc.Page{}, err
	}

	filtered := tasks[:0]
	for _, task := range tasks {
		if q.Completed != nil && task.Completed != *q.Completed {
			continue
		}
		filtered = append(filtered, task)
	}

	switch q.Sort {
	case tasksvc.SortTitle:
		sort.SliceStable(filtered, func(i, j int) bool {
			return strings.ToLower(filtered[i].Title) < strings.ToLower(filtered[j].Title)
		})
	case tasksvc.SortCreatedAt:
		sort.SliceStable(filtered, func(i, j int) bool {
			return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
		})
	}

	page := tasksvc.Page{Tasks: []tasksvc.Task{}, Total: len(filtered), Page: q.Page, Limit: q.Limit}
	if q.Limit <= 0 {
		page.Tasks = append(page.Tasks, filtered...)
		return page, nil
	}
	if offset := q.Offset(); offset < len(filtered) {
		end := offset + q.Limit
		if end > len(filtered) {
			end = len(filtered)
		}
		page.Tasks = append(page.Tasks, filtered[offset:end]...)
	}
	return page, nil
}

func (t *taskRepository) Find(_ context.Context, id tasksvc.ID) (tasksvc.Task, error) {
	n, err := parseID(id)
	if err != nil {
		return tasksvc.Task{}, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	tasks, err := t.load()
	if err != nil {
		return tasksvc.Task{}, err
	}
	i := indexOf(tasks, n)
	if i < 0 {
		return tasksvc.Task{}, tasksvc.ErrTaskNotFound
	}
	return tasks[i], nil
}

func (t *taskRepository) Create(_ context.Context, d tasksvc.Draft) (tasksvc.Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tasks, err := t.load()
	if err != nil {
		return tasksvc.Task{}, err
	}

	next := t.highWater
	for _, task := range tasks {
		if n, _ := task.ID.Int(); n > next {
			next = n
		}
	}
	next++

	task := tasksvc.Task{
		ID:          tasksvc.ID(strconv.FormatInt(next, 10)),
		Title:       d.Title,
		Description: d.Description,
		Completed:   false,
		CreatedAt:   t.now().UTC(),
	}
	if err := t.save(append(tasks, task)); err != nil {
		return tasksvc.Task{}, err
	}
	t.highWater = next

	return task, nil
}

func (t *taskRepository) Update(_ context.Context, id tasksvc.ID, f tasksvc.Fields) (tasksvc.Task, error) {
	n, err := parseID(id)
	if err != nil {
		return tasksvc.Task{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tasks, err := t.load()
	if err != nil {
		return tasksvc.Task{}, err
	}
	i := indexOf(tasks, n)
	if i < 0 {
		return tasksvc.Task{}, tasksvc.ErrTaskNotFound
	}

	task := tasks[i]
	if f.Title != nil {
		task.Title = *f.Title
	}
	if f.Description != nil {
		task.Description = *f.Description
	}
	if f.Completed != nil {
		task.Completed = *f.Completed
	}
	now := t.now().UTC()
	task.UpdatedAt = &now
	tasks[i] = task

	if err := t.save(tasks); err != nil {
		return tasksvc.Task{}, err
	}
	return task, nil
}

func (t *taskRepository) Delete(_ context.Context, id tasksvc.ID) error {
	n, err := parseID(id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	tasks, err := t.load()
	if err != nil {
		return err
	}
	i := indexOf(tasks, n)
	if i < 0 {
		return tasksvc.ErrTaskNotFound
	}
	return t.save(append(tasks[:i], tasks[i+1:]...))
}

func parseID(id tasksvc.ID) (int64, error) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, tasksvc.NewValidationError("id", "id must be an integer")
	}
	if n <= 0 {
		return 0, tasksvc.ErrTaskNotFound
	}
	return n, nil
}

func indexOf(tasks []tasksvc.Task, n int64) int {
	for i, task := range tasks {
		if id, ok := task.ID.Int(); ok && id == n {
			return i
		}
	}
	return -1
}

// load reads the whole collection. A missing file is an empty collection.
func (t *taskRepository) load() ([]tasksvc.Task, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []tasksvc.Task{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", t.path, err)
	}

	var records []map[string]json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", tasksvc.ErrStoreCorruption, err)
	}

	tasks := make([]tasksvc.Task, 0, len(records))
	for i, record := range records {
		task, err := decodeRecord(record)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", tasksvc.ErrStoreCorruption, i, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func decodeRecord(record map[string]json.RawMessage) (tasksvc.Task, error) {
	if record == nil {
		return tasksvc.Task{}, errors.New("not an object")
	}
	for _, field := range requiredFields {
		if v, ok := record[field]; !ok || string(v) == "null" {
			return tasksvc.Task{}, fmt.Errorf("missing %q", field)
		}
	}

	var id int64
	if err := json.Unmarshal(record["id"], &id); err != nil {
		return tasksvc.Task{}, fmt.Errorf("id: %v", err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return tasksvc.Task{}, err
	}
	var task tasksvc.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return tasksvc.Task{}, err
	}
	task.ID = tasksvc.ID(strconv.FormatInt(id, 10))
	task.OwnerID = ""
	return task, nil
}

// save rewrites the collection with a temp file and rename so readers never
// observe a partial write.
func (t *taskRepository) save(tasks []tasksvc.Task) error {
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(t.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write tasks tmp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write tasks tmp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync tasks tmp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close tasks tmp: %w", err)
	}

	if err := os.Rename(tmp.Name(), t.path); err != nil {
		return fmt.Errorf("rename tasks: %w", err)
	}
	return nil
}
