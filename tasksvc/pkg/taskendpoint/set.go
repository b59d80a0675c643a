package taskendpoint

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/ichigozero/taskgate/authsvc"
	"github.com/ichigozero/taskgate/tasksvc"
	"github.com/ichigozero/taskgate/tasksvc/pkg/taskservice"
)

type Set struct {
	TasksEndpoint      endpoint.Endpoint
	TaskEndpoint       endpoint.Endpoint
	CreateTaskEndpoint endpoint.Endpoint
	UpdateTaskEndpoint endpoint.Endpoint
	DeleteTaskEndpoint endpoint.Endpoint
}

func New(svc taskservice.Service, logger log.Logger) Set {
	var tasksEndpoint endpoint.Endpoint
	{
		tasksEndpoint = MakeTasksEndpoint(svc)
		tasksEndpoint = LoggingMiddleware(log.With(logger, "method", "Tasks"))(tasksEndpoint)
	}

	var taskEndpoint endpoint.Endpoint
	{
		taskEndpoint = MakeTaskEndpoint(svc)
		taskEndpoint = LoggingMiddleware(log.With(logger, "method", "Task"))(taskEndpoint)
	}

	var createTaskEndpoint endpoint.Endpoint
	{
		createTaskEndpoint = MakeCreateTaskEndpoint(svc)
		createTaskEndpoint = LoggingMiddleware(log.With(logger, "method", "CreateTask"))(createTaskEndpoint)
	}

	var updateTaskEndpoint endpoint.Endpoint
	{
		updateTaskEndpoint = MakeUpdateTaskEndpoint(svc)
		updateTaskEndpoint = LoggingMiddleware(log.With(logger, "method", "UpdateTask"))(updateTaskEndpoint)
	}

	var deleteTaskEndpoint endpoint.Endpoint
	{
		deleteTaskEndpoint = MakeDeleteTaskEndpoint(svc)
		deleteTaskEndpoint = LoggingMiddleware(log.With(logger, "method", "DeleteTask"))(deleteTaskEndpoint)
	}

	return Set{
		TasksEndpoint:      tasksEndpoint,
		TaskEndpoint:       taskEndpoint,
		CreateTaskEndpoint: createTaskEndpoint,
		UpdateTaskEndpoint: updateTaskEndpoint,
		DeleteTaskEndpoint: deleteTaskEndpoint,
	}
}

// Wrap applies mw to every endpoint of the set.
func (s Set) Wrap(mw endpoint.Middleware) Set {
	return Set{
		TasksEndpoint:      mw(s.TasksEndpoint),
		TaskEndpoint:       mw(s.TaskEndpoint),
		CreateTaskEndpoint: mw(s.CreateTaskEndpoint),
		UpdateTaskEndpoint: mw(s.UpdateTaskEndpoint),
		DeleteTaskEndpoint: mw(s.DeleteTaskEndpoint),
	}
}

// The Set methods let endpoints stand in for taskservice.Service. The
// identity argument is carried through the context.

func (s Set) Tasks(ctx context.Context, a authsvc.Identity, q tasksvc.Query) (tasksvc.Page, error) {
	resp, err := s.TasksEndpoint(authsvc.NewContext(ctx, a), TasksRequest{Query: q})
	if err != nil {
		return tasksvc.Page{}, err
	}
	response := resp.(TasksResponse)
	return tasksvc.Page{
		Tasks: response.Tasks,
		Total: response.Total,
		Page:  response.Page,
		Limit: response.Limit,
	}, response.Err
}

func (s Set) Task(ctx context.Context, a authsvc.Identity, id tasksvc.ID) (tasksvc.Task, error) {
	resp, err := s.TaskEndpoint(authsvc.NewContext(ctx, a), TaskRequest{ID: id})
	if err != nil {
		return tasksvc.Task{}, err
	}
	response := resp.(TaskResponse)
	return response.Task, response.Err
}

func (s Set) CreateTask(ctx context.Context, a authsvc.Identity, f tasksvc.Fields) (tasksvc.Task, error) {
	resp, err := s.CreateTaskEndpoint(authsvc.NewContext(ctx, a), CreateTaskRequest{Fields: f})
	if err != nil {
		return tasksvc.Task{}, err
	}
	response := resp.(CreateTaskResponse)
	if response.Empty && response.Err == nil {
		return tasksvc.Task{}, tasksvc.ErrNoRepresentation
	}
	return response.Task, response.Err
}

func (s Set) UpdateTask(ctx context.Context, a authsvc.Identity, id tasksvc.ID, f tasksvc.Fields) (tasksvc.Task, error) {
	resp, err := s.UpdateTaskEndpoint(authsvc.NewContext(ctx, a), UpdateTaskRequest{ID: id, Fields: f})
	if err != nil {
		return tasksvc.Task{}, err
	}
	response := resp.(UpdateTaskResponse)
	if response.Empty && response.Err == nil {
		return tasksvc.Task{}, tasksvc.ErrNoRepresentation
	}
	return response.Task, response.Err
}

func (s Set) DeleteTask(ctx context.Context, a authsvc.Identity, id tasksvc.ID) error {
	resp, err := s.DeleteTaskEndpoint(authsvc.NewContext(ctx, a), DeleteTaskRequest{ID: id})
	if err != nil {
		return err
	}
	return resp.(DeleteTaskResponse).Err
}

func MakeTasksEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		a, _ := authsvc.FromContext(ctx)
		req := request.(TasksRequest)

		p, err := s.Tasks(ctx, a, req.Query)
		if err != nil {
			return TasksResponse{Err: err}, nil
		}

		tasks := p.Tasks
		if tasks == nil {
			tasks = []tasksvc.Task{}
		}
		return TasksResponse{Tasks: tasks, Total: p.Total, Page: p.Page, Limit: p.Limit}, nil
	}
}

func MakeTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		a, _ := authsvc.FromContext(ctx)
		req := request.(TaskRequest)

		t, err := s.Task(ctx, a, req.ID)
		return TaskResponse{Task: t, Err: err}, nil
	}
}

func MakeCreateTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		a, _ := authsvc.FromContext(ctx)
		req := request.(CreateTaskRequest)

		t, err := s.CreateTask(ctx, a, req.Fields)
		if errors.Is(err, tasksvc.ErrNoRepresentation) {
			return CreateTaskResponse{Empty: true}, nil
		}
		return CreateTaskResponse{Task: t, Err: err}, nil
	}
}

func MakeUpdateTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		a, _ := authsvc.FromContext(ctx)
		req := request.(UpdateTaskRequest)

		t, err := s.UpdateTask(ctx, a, req.ID, req.Fields)
		if errors.Is(err, tasksvc.ErrNoRepresentation) {
			return UpdateTaskResponse{Empty: true}, nil
		}
		return UpdateTaskResponse{Task: t, Err: err}, nil
	}
}

func MakeDeleteTaskEndpoint(s taskservice.Service) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		a, _ := authsvc.FromContext(ctx)
		req := request.(DeleteTaskRequest)

		err := s.DeleteTask(ctx, a, req.ID)
		return DeleteTaskResponse{Err: err}, nil
	}
}

var (
	_ endpoint.Failer = TasksResponse{}
	_ endpoint.Failer = TaskResponse{}
	_ endpoint.Failer = CreateTaskResponse{}
	_ endpoint.Failer = UpdateTaskResponse{}
	_ endpoint.Failer = DeleteTaskResponse{}
)

type TasksRequest struct {
	Query tasksvc.Query
}

type TasksResponse struct {
	Tasks []tasksvc.Task `json:"tasks"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Err   error          `json:"-"`
}

func (r TasksResponse) Failed() error { return r.Err }

type TaskRequest struct {
	ID tasksvc.ID
}

type TaskResponse struct {
	Task tasksvc.Task
	Err  error
}

func (r TaskResponse) Failed() error { return r.Err }

func (r TaskResponse) MarshalJSON() ([]byte, error) { return json.Marshal(r.Task) }

type CreateTaskRequest struct {
	Fields tasksvc.Fields
}

// CreateTaskResponse encodes as the bare task, or as an empty JSON array when
// the store acknowledged the write without returning the record.
type CreateTaskResponse struct {
	Task  tasksvc.Task
	Empty bool
	Err   error
}

func (r CreateTaskResponse) Failed() error { return r.Err }

func (r CreateTaskResponse) StatusCode() int { return http.StatusCreated }

func (r CreateTaskResponse) MarshalJSON() ([]byte, error) { return taskJSON(r.Task, r.Empty) }

type UpdateTaskRequest struct {
	ID     tasksvc.ID
	Fields tasksvc.Fields
}

type UpdateTaskResponse struct {
	Task  tasksvc.Task
	Empty bool
	Err   error
}

func (r UpdateTaskResponse) Failed() error { return r.Err }

func (r UpdateTaskResponse) MarshalJSON() ([]byte, error) { return taskJSON(r.Task, r.Empty) }

type DeleteTaskRequest struct {
	ID tasksvc.ID
}

type DeleteTaskResponse struct {
	Err error
}

func (r DeleteTaskResponse) Failed() error { return r.Err }

func (r DeleteTaskResponse) StatusCode() int { return http.StatusNoContent }

func taskJSON(t tasksvc.Task, empty bool) ([]byte, error) {
	if empty {
		return []byte("[]"), nil
	}
	return json.Marshal(t)
}
