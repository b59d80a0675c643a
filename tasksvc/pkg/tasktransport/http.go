package tasktransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/ichigozero/taskgate/authsvc/pkg/authtransport"
	"github.com/ichigozero/taskgate/tasksvc"
	"github.com/ichigozero/taskgate/tasksvc/pkg/taskendpoint"
	"github.com/ichigozero/taskgate/tasksvc/pkg/taskservice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPHandler serves the task routes plus /health and /metrics. When
// authenticate is nil the routes are open, as in the file-backed deployment.
func NewHTTPHandler(endpoints taskendpoint.Set, authenticate endpoint.Middleware, logger log.Logger) http.Handler {
	if authenticate != nil {
		endpoints = endpoints.Wrap(authenticate)
	}

	options := authtransport.ServerOptions(errorEncoder, logger)
	encode := authtransport.EncodeHTTPGenericResponse(errorEncoder)

	tasksHandler := httptransport.NewServer(
		endpoints.TasksEndpoint,
		decodeHTTPTasksRequest,
		encode,
		options...,
	)

	taskHandler := httptransport.NewServer(
		endpoints.TaskEndpoint,
		decodeHTTPTaskRequest,
		encode,
		options...,
	)

	createTaskHandler := httptransport.NewServer(
		endpoints.CreateTaskEndpoint,
		decodeHTTPCreateTaskRequest,
		encode,
		options...,
	)

	updateTaskHandler := httptransport.NewServer(
		endpoints.UpdateTaskEndpoint,
		decodeHTTPUpdateTaskRequest,
		encode,
		options...,
	)

	deleteTaskHandler := httptransport.NewServer(
		endpoints.DeleteTaskEndpoint,
		decodeHTTPDeleteTaskRequest,
		encode,
		options...,
	)

	r := mux.NewRouter()

	r.Methods("GET").Path("/tasks").Handler(tasksHandler)
	r.Methods("POST").Path("/tasks").Handler(createTaskHandler)
	r.Methods("GET").Path("/tasks/{task_id}").Handler(taskHandler)
	r.Methods("PUT", "PATCH").Path("/tasks/{task_id}").Handler(updateTaskHandler)
	r.Methods("DELETE").Path("/tasks/{task_id}").Handler(deleteTaskHandler)
	r.Methods("GET").Path("/health").HandlerFunc(health)
	r.Methods("GET").Path("/metrics").Handler(promhttp.Handler())

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func errorEncoder(ctx context.Context, err error, w http.ResponseWriter) {
	code, reason := err2code(err)

	var ve *tasksvc.ValidationError
	if errors.As(err, &ve) {
		err = errors.New(ve.Message)
	}
	authtransport.EncodeError(ctx, code, reason, err, w)
}

func err2code(err error) (int, string) {
	var ve *tasksvc.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, "validation_error"
	case errors.Is(err, tasksvc.ErrTaskNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, tasksvc.ErrStoreCorruption):
		return http.StatusInternalServerError, "store_corruption"
	}
	return authtransport.Err2code(err)
}

func decodeHTTPTasksRequest(_ context.Context, r *http.Request) (interface{}, error) {
	v := r.URL.Query()

	q := tasksvc.Query{
		Sort:  v.Get("sort"),
		Page:  taskservice.DefaultPage,
		Limit: taskservice.DefaultLimit,
	}
	if s, ok := v["completed"]; ok {
		completed := len(s) > 0 && s[0] == "true"
		q.Completed = &completed
	}

	var err error
	if q.Page, err = intParam(v.Get("page"), "page", q.Page); err != nil {
		return nil, err
	}
	if q.Limit, err = intParam(v.Get("limit"), "limit", q.Limit); err != nil {
		return nil, err
	}

	return taskendpoint.TasksRequest{Query: q}, nil
}

func intParam(s, name string, fallback int) (int, error) {
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, tasksvc.NewValidationError(name, name+" must be an integer")
	}
	return n, nil
}

func decodeHTTPTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := taskID(r)
	if err != nil {
		return nil, err
	}
	return taskendpoint.TaskRequest{ID: id}, nil
}

func decodeHTTPCreateTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	f, err := decodeFields(r)
	if err != nil {
		return nil, err
	}
	return taskendpoint.CreateTaskRequest{Fields: f}, nil
}

func decodeHTTPUpdateTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := taskID(r)
	if err != nil {
		return nil, err
	}
	f, err := decodeFields(r)
	if err != nil {
		return nil, err
	}
	return taskendpoint.UpdateTaskRequest{ID: id, Fields: f}, nil
}

func decodeHTTPDeleteTaskRequest(_ context.Context, r *http.Request) (interface{}, error) {
	id, err := taskID(r)
	if err != nil {
		return nil, err
	}
	return taskendpoint.DeleteTaskRequest{ID: id}, nil
}

func taskID(r *http.Request) (tasksvc.ID, error) {
	id, ok := mux.Vars(r)["task_id"]
	if !ok || id == "" {
		return "", ErrBadRouting
	}
	return tasksvc.ID(id), nil
}

// decodeFields reads a JSON object body. Unknown members are ignored.
func decodeFields(r *http.Request) (tasksvc.Fields, error) {
	var f tasksvc.Fields
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		return tasksvc.Fields{}, tasksvc.NewValidationError("body", "request body must be a JSON object with valid task fields")
	}
	return f, nil
}

// ErrBadRouting is returned when an expected path variable is missing.
// It always indicates programmer error.
var ErrBadRouting = errors.New("inconsistent mapping between route and handler (programmer error)")
