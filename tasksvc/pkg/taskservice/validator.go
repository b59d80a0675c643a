package taskservice

import (
	"fmt"
	"strings"

	"github.com/ichigozero/taskgate/tasksvc"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 10000
)

// Validator checks client payloads and normalizes them. Only the first
// failure is reported.
type Validator struct {
	// MinTitleLength applies to the trimmed title when positive.
	MinTitleLength int
}

func (v Validator) Create(f tasksvc.Fields) (tasksvc.Draft, error) {
	if f.Title == nil {
		return tasksvc.Draft{}, tasksvc.NewValidationError("title", "title is required")
	}
	title, err := v.title(*f.Title)
	if err != nil {
		return tasksvc.Draft{}, err
	}

	var description string
	if f.Description != nil {
		description = strings.TrimSpace(*f.Description)
	}
	return tasksvc.Draft{Title: title, Description: description}, nil
}

func (v Validator) Update(f tasksvc.Fields) (tasksvc.Fields, error) {
	var out tasksvc.Fields
	if f.Title != nil {
		title, err := v.title(*f.Title)
		if err != nil {
			return tasksvc.Fields{}, err
		}
		out.Title = &title
	}
	if f.Description != nil {
		description := strings.TrimSpace(*f.Description)
		out.Description = &description
	}
	if f.Completed != nil {
		completed := *f.Completed
		out.Completed = &completed
	}
	return out, nil
}

func (v Validator) title(s string) (string, error) {
	title := strings.TrimSpace(s)
	if title == "" {
		return "", tasksvc.NewValidationError("title", "title must not be empty")
	}
	if v.MinTitleLength > 0 && len([]rune(title)) < v.MinTitleLength {
		return "", tasksvc.NewValidationError(
			"title",
			fmt.Sprintf("title must be at least %d characters long", v.MinTitleLength),
		)
	}
	return title, nil
}

// Query rejects out-of-range paging and unknown sort keys. Callers apply
// DefaultPage and DefaultLimit to absent parameters.
func (v Validator) Query(q tasksvc.Query) (tasksvc.Query, error) {
	if q.Page < 1 {
		return tasksvc.Query{}, tasksvc.NewValidationError("page", "page must be greater than or equal to 1")
	}
	if q.Limit < 1 || q.Limit > MaxLimit {
		return tasksvc.Query{}, tasksvc.NewValidationError("limit", fmt.Sprintf("limit must be between 1 and %d", MaxLimit))
	}
	switch q.Sort {
	case "", tasksvc.SortTitle, tasksvc.SortCreatedAt:
	default:
		return tasksvc.Query{}, tasksvc.NewValidationError("sort", fmt.Sprintf("sort must be %q or %q", tasksvc.SortTitle, tasksvc.SortCreatedAt))
	}
	return q, nil
}
