package taskservice

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskgate/authsvc"
	"github.com/ichigozero/taskgate/tasksvc"
)

type Service interface {
	Tasks(ctx context.Context, a authsvc.Identity, q tasksvc.Query) (tasksvc.Page, error)
	Task(ctx context.Context, a authsvc.Identity, id tasksvc.ID) (tasksvc.Task, error)
	CreateTask(ctx context.Context, a authsvc.Identity, f tasksvc.Fields) (tasksvc.Task, error)
	UpdateTask(ctx context.Context, a authsvc.Identity, id tasksvc.ID, f tasksvc.Fields) (tasksvc.Task, error)
	DeleteTask(ctx context.Context, a authsvc.Identity, id tasksvc.ID) error
}

func New(t tasksvc.TaskRepository, v Validator, logger log.Logger) Service {
	var svc Service
	{
		svc = NewBasicService(t, v)
		svc = LoggingMiddleware(logger)(svc)
	}
	return svc
}

type basicService struct {
	tasks     tasksvc.TaskRepository
	validator Validator
}

// NewBasicService validates payloads and hands them to the repository. It
// performs no access control; see AuthorizingMiddleware.
func NewBasicService(t tasksvc.TaskRepository, v Validator) Service {
	return basicService{tasks: t, validator: v}
}

func (s basicService) Tasks(ctx context.Context, _ authsvc.Identity, q tasksvc.Query) (tasksvc.Page, error) {
	q, err := s.validator.Query(q)
	if err != nil {
		return tasksvc.Page{}, err
	}
	return s.tasks.FindAll(ctx, q)
}

func (s basicService) Task(ctx context.Context, _ authsvc.Identity, id tasksvc.ID) (tasksvc.Task, error) {
	return s.tasks.Find(ctx, id)
}

func (s basicService) CreateTask(ctx context.Context, a authsvc.Identity, f tasksvc.Fields) (tasksvc.Task, error) {
	d, err := s.validator.Create(f)
	if err != nil {
		return tasksvc.Task{}, err
	}
	d.OwnerID = a.Subject
	return s.tasks.Create(ctx, d)
}

func (s basicService) UpdateTask(ctx context.Context, _ authsvc.Identity, id tasksvc.ID, f tasksvc.Fields) (tasksvc.Task, error) {
	f, err := s.validator.Update(f)
	if err != nil {
		return tasksvc.Task{}, err
	}
	return s.tasks.Update(ctx, id, f)
}

func (s basicService) DeleteTask(ctx context.Context, _ authsvc.Identity, id tasksvc.ID) error {
	return s.tasks.Delete(ctx, id)
}
