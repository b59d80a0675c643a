package taskservice

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/ichigozero/taskgate/authsvc"
	"github.com/ichigozero/taskgate/authsvc/pkg/authservice"
	"github.com/ichigozero/taskgate/tasksvc"
)

type Middleware func(Service) Service

func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next Service) Service {
		return loggingMiddleware{logger, next}
	}
}

type loggingMiddleware struct {
	logger log.Logger
	next   Service
}

func (mw loggingMiddleware) Tasks(ctx context.Context, a authsvc.Identity, q tasksvc.Query) (p tasksvc.Page, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Tasks",
			"user_id", a.Subject,
			"role", a.Role,
			"page", q.Page,
			"limit", q.Limit,
			"sort", q.Sort,
			"total", p.Total,
			"err", err,
		)
	}()
	return mw.next.Tasks(ctx, a, q)
}

func (mw loggingMiddleware) Task(ctx context.Context, a authsvc.Identity, id tasksvc.ID) (t tasksvc.Task, err error) {
	defer func() {
		mw.logger.Log(
			"method", "Task",
			"user_id", a.Subject,
			"task_id", id,
			"err", err,
		)
	}()
	return mw.next.Task(ctx, a, id)
}

func (mw loggingMiddleware) CreateTask(ctx context.Context, a authsvc.Identity, f tasksvc.Fields) (t tasksvc.Task, err error) {
	defer func() {
		mw.logger.Log(
			"method", "CreateTask",
			"user_id", a.Subject,
			"task_id", t.ID,
			"title", t.Title,
			"err", err,
		)
	}()
	return mw.next.CreateTask(ctx, a, f)
}

func (mw loggingMiddleware) UpdateTask(ctx context.Context, a authsvc.Identity, id tasksvc.ID, f tasksvc.Fields) (t tasksvc.Task, err error) {
	defer func() {
		mw.logger.Log(
			"method", "UpdateTask",
			"user_id", a.Subject,
			"task_id", id,
			"completed", t.Completed,
			"err", err,
		)
	}()
	return mw.next.UpdateTask(ctx, a, id, f)
}

func (mw loggingMiddleware) DeleteTask(ctx context.Context, a authsvc.Identity, id tasksvc.ID) (err error) {
	defer func() {
		mw.logger.Log(
			"method", "DeleteTask",
			"user_id", a.Subject,
			"task_id", id,
			"err", err,
		)
	}()
	return mw.next.DeleteTask(ctx, a, id)
}

func InstrumentingMiddleware(counter metrics.Counter, latency metrics.Histogram) Middleware {
	return func(next Service) Service {
		return instrumentingMiddleware{counter, latency, next}
	}
}

type instrumentingMiddleware struct {
	requestCount   metrics.Counter
	requestLatency metrics.Histogram
	next           Service
}

func (mw instrumentingMiddleware) observe(method string, begin time.Time, err error) {
	lvs := []string{"method", method, "success", boolString(err == nil)}
	mw.requestCount.With(lvs...).Add(1)
	mw.requestLatency.With(lvs...).Observe(time.Since(begin).Seconds())
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (mw instrumentingMiddleware) Tasks(ctx context.Context, a authsvc.Identity, q tasksvc.Query) (p tasksvc.Page, err error) {
	defer func(begin time.Time) { mw.observe("tasks", begin, err) }(time.Now())
	return mw.next.Tasks(ctx, a, q)
}

func (mw instrumentingMiddleware) Task(ctx context.Context, a authsvc.Identity, id tasksvc.ID) (t tasksvc.Task, err error) {
	defer func(begin time.Time) { mw.observe("task", begin, err) }(time.Now())
	return mw.next.Task(ctx, a, id)
}

func (mw instrumentingMiddleware) CreateTask(ctx context.Context, a authsvc.Identity, f tasksvc.Fields) (t tasksvc.Task, err error) {
	defer func(begin time.Time) { mw.observe("create_task", begin, err) }(time.Now())
	return mw.next.CreateTask(ctx, a, f)
}

func (mw instrumentingMiddleware) UpdateTask(ctx context.Context, a authsvc.Identity, id tasksvc.ID, f tasksvc.Fields) (t tasksvc.Task, err error) {
	defer func(begin time.Time) { mw.observe("update_task", begin, err) }(time.Now())
	return mw.next.UpdateTask(ctx, a, id, f)
}

func (mw instrumentingMiddleware) DeleteTask(ctx context.Context, a authsvc.Identity, id tasksvc.ID) (err error) {
	defer func(begin time.Time) { mw.observe("delete_task", begin, err) }(time.Now())
	return mw.next.DeleteTask(ctx, a, id)
}

// AuthorizingMiddleware enforces ownership. Lists are scoped to the caller
// unless they are an admin; single-record operations load the record first so
// a missing task is reported before an ownership failure.
func AuthorizingMiddleware(t tasksvc.TaskRepository) Middleware {
	return func(next Service) Service {
		return authorizingMiddleware{t, next}
	}
}

type authorizingMiddleware struct {
	tasks tasksvc.TaskRepository
	next  Service
}

func (mw authorizingMiddleware) Tasks(ctx context.Context, a authsvc.Identity, q tasksvc.Query) (tasksvc.Page, error) {
	if !a.Authenticated() {
		return tasksvc.Page{}, authsvc.ErrMissingCredential
	}
	if !a.IsAdmin() {
		q.OwnerID = a.Subject
	}
	return mw.next.Tasks(ctx, a, q)
}

func (mw authorizingMiddleware) Task(ctx context.Context, a authsvc.Identity, id tasksvc.ID) (tasksvc.Task, error) {
	if !a.Authenticated() {
		return tasksvc.Task{}, authsvc.ErrMissingCredential
	}
	t, err := mw.next.Task(ctx, a, id)
	if err != nil {
		return tasksvc.Task{}, err
	}
	if err := authservice.Authorize(a, authservice.OpRead, t.OwnerID); err != nil {
		return tasksvc.Task{}, err
	}
	return t, nil
}

func (mw authorizingMiddleware) CreateTask(ctx context.Context, a authsvc.Identity, f tasksvc.Fields) (tasksvc.Task, error) {
	if !a.Authenticated() {
		return tasksvc.Task{}, authsvc.ErrMissingCredential
	}
	return mw.next.CreateTask(ctx, a, f)
}

func (mw authorizingMiddleware) UpdateTask(ctx context.Context, a authsvc.Identity, id tasksvc.ID, f tasksvc.Fields) (tasksvc.Task, error) {
	if err := mw.authorize(ctx, a, authservice.OpUpdate, id); err != nil {
		return tasksvc.Task{}, err
	}
	return mw.next.UpdateTask(ctx, a, id, f)
}

func (mw authorizingMiddleware) DeleteTask(ctx context.Context, a authsvc.Identity, id tasksvc.ID) error {
	if err := mw.authorize(ctx, a, authservice.OpDelete, id); err != nil {
		return err
	}
	return mw.next.DeleteTask(ctx, a, id)
}

func (mw authorizingMiddleware) authorize(ctx context.Context, a authsvc.Identity, op authservice.Operation, id tasksvc.ID) error {
	if !a.Authenticated() {
		return authsvc.ErrMissingCredential
	}
	existing, err := mw.tasks.Find(ctx, id)
	if err != nil {
		return err
	}
	return authservice.Authorize(a, op, existing.OwnerID)
}
