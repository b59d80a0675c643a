package gorm

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/ichigozero/taskgate/tasksvc"
	libgorm "gorm.io/gorm"
)

// taskModel is the row layout, shared with the hosted tasks table.
type taskModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Title       string `gorm:"not null"`
	Description string `gorm:"not null;default:''"`
	Completed   bool   `gorm:"not null;default:false"`
	UserID      string `gorm:"index"`
	CreatedAt   time.Time
	Modified    *time.Time `gorm:"column:updated_at"`
}

func (taskModel) TableName() string { return "tasks" }

func (m taskModel) task() tasksvc.Task {
	return tasksvc.Task{
		ID:          tasksvc.ID(strconv.FormatInt(m.ID, 10)),
		Title:       m.Title,
		Description: m.Description,
		Completed:   m.Completed,
		OwnerID:     m.UserID,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.Modified,
	}
}

type taskRepository struct {
	db *libgorm.DB
}

func NewTaskRepository(db *libgorm.DB) tasksvc.TaskRepository {
	return &taskRepository{db}
}

// Migrate creates or updates the tasks table.
func Migrate(db *libgorm.DB) error {
	return db.AutoMigrate(&taskModel{})
}

func (t taskRepository) FindAll(ctx context.Context, q tasksvc.Query) (tasksvc.Page, error) {
	filter := func(tx *libgorm.DB) *libgorm.DB {
		if q.Completed != nil {
			tx = tx.Where("completed = ?", *q.Completed)
		}
		if q.OwnerID != "" {
			tx = tx.Where("user_id = ?", q.OwnerID)
		}
		return tx
	}

	var total int64
	if err := t.db.WithContext(ctx).Model(&taskModel{}).Scopes(filter).Count(&total).Error; err != nil {
		return tasksvc.Page{}, err
	}

	tx := t.db.WithContext(ctx).Scopes(filter)
	switch q.Sort {
	case tasksvc.SortTitle:
		tx = tx.Order("LOWER(title) ASC")
	case tasksvc.SortCreatedAt:
		tx = tx.Order("created_at DESC")
	}
	tx = tx.Order("id ASC")
	if q.Limit > 0 {
		tx = tx.Offset(q.Offset()).Limit(q.Limit)
	}

	var models []taskModel
	if err := tx.Find(&models).Error; err != nil {
		return tasksvc.Page{}, err
	}

	tasks := make([]tasksvc.Task, 0, len(models))
	for _, m := range models {
		tasks = append(tasks, m.task())
	}
	return tasksvc.Page{Tasks: tasks, Total: int(total), Page: q.Page, Limit: q.Limit}, nil
}

func (t taskRepository) Find(ctx context.Context, id tasksvc.ID) (tasksvc.Task, error) {
	n, ok := id.Int()
	if !ok {
		return tasksvc.Task{}, tasksvc.ErrTaskNotFound
	}

	var m taskModel
	err := t.db.WithContext(ctx).First(&m, "id = ?", n).Error
	if errors.Is(err, libgorm.ErrRecordNotFound) {
		return tasksvc.Task{}, tasksvc.ErrTaskNotFound
	}
	if err != nil {
		return tasksvc.Task{}, err
	}
	return m.task(), nil
}

func (t taskRepository) Create(ctx context.Context, d tasksvc.Draft) (tasksvc.Task, error) {
	m := taskModel{
		Title:       d.Title,
		Description: d.Description,
		Completed:   false,
		UserID:      d.OwnerID,
	}
	if err := t.db.WithContext(ctx).Create(&m).Error; err != nil {
		return tasksvc.Task{}, err
	}
	return m.task(), nil
}

func (t taskRepository) Update(ctx context.Context, id tasksvc.ID, f tasksvc.Fields) (tasksvc.Task, error) {
	n, ok := id.Int()
	if !ok {
		return tasksvc.Task{}, tasksvc.ErrTaskNotFound
	}

	updates := map[string]interface{}{"updated_at": time.Now().UTC()}
	if f.Title != nil {
		updates["title"] = *f.Title
	}
	if f.Description != nil {
		updates["description"] = *f.Description
	}
	if f.Completed != nil {
		updates["completed"] = *f.Completed
	}

	result := t.db.WithContext(ctx).Model(&taskModel{}).Where("id = ?", n).Updates(updates)
	if result.Error != nil {
		return tasksvc.Task{}, result.Error
	}
	if result.RowsAffected == 0 {
		return tasksvc.Task{}, tasksvc.ErrTaskNotFound
	}
	return t.Find(ctx, id)
}

func (t taskRepository) Delete(ctx context.Context, id tasksvc.ID) error {
	n, ok := id.Int()
	if !ok {
		return tasksvc.ErrTaskNotFound
	}

	result := t.db.WithContext(ctx).Delete(&taskModel{}, n)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return tasksvc.ErrTaskNotFound
	}
	return nil
}
