package tasksvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ID identifies a task. Numeric ids travel as JSON numbers, anything else
// (e.g. a uuid primary key) as a JSON string.
type ID string

func (id ID) String() string { return string(id) }

// Int returns the numeric value of a canonical unsigned id.
func (id ID) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil || strconv.FormatInt(n, 10) != string(id) {
		return 0, false
	}
	return n, true
}

func (id ID) MarshalJSON() ([]byte, error) {
	if n, ok := id.Int(); ok && n >= 0 {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*id = ID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("task id: %w", err)
	}
	*id = ID(s)
	return nil
}

type Task struct {
	ID          ID         `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	OwnerID     string     `json:"ownerId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// Fields is a client payload. Nil members were not sent.
type Fields struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// Draft is a validated create payload.
type Draft struct {
	Title       string
	Description string
	OwnerID     string
}

const (
	SortTitle     = "title"
	SortCreatedAt = "createdAt"
)

type Query struct {
	Completed *bool
	Sort      string
	Page      int
	Limit     int
	// OwnerID restricts the result to one owner when set.
	OwnerID string
}

func (q Query) Offset() int { return (q.Page - 1) * q.Limit }

type Page struct {
	Tasks []Task
	Total int
	Page  int
	Limit int
}

type TaskRepository interface {
	FindAll(ctx context.Context, q Query) (Page, error)
	Find(ctx context.Context, id ID) (Task, error)
	Create(ctx context.Context, d Draft) (Task, error)
	Update(ctx context.Context, id ID, f Fields) (Task, error)
	Delete(ctx context.Context, id ID) error
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrStoreCorruption = errors.New("task store is corrupted")
	// ErrNoRepresentation is returned by a write the store acknowledged without
	// echoing the record back.
	ErrNoRepresentation = errors.New("store returned no representation")
)
