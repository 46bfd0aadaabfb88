// Package tasks implements the process-wide FIFO task queue that
// serializes update, query, and destroy operations against an index. It
// generalizes the worker-pool pattern into named "lanes": by default one
// lane per index name (so two different indexes update and query
// concurrently) plus a single shared lane for destroy operations (so an
// index is never destroyed while an update or query against it is still
// in flight). Tasks submitted to the same lane run strictly in submission
// order; tasks in different lanes run concurrently with each other.
package tasks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Task is a unit of work submitted to a lane.
type Task func(ctx context.Context) error

type job struct {
	id   string
	task Task
	done chan error
}

type lane struct {
	ch chan job
}

// Queue runs one goroutine per lane, created on first use, draining a
// buffered channel of jobs in submission order.
type Queue struct {
	mu    sync.Mutex
	lanes map[string]*lane
	log   *logrus.Logger
	ctx   context.Context
}

// New returns a Queue whose worker goroutines run under ctx; canceling ctx
// stops lanes from accepting new work once their current task completes.
// A nil logger disables logging.
func New(ctx context.Context, logger *logrus.Logger) *Queue {
	return &Queue{
		lanes: make(map[string]*lane),
		log:   logger,
		ctx:   ctx,
	}
}

// DestroyLane is the single shared lane name used for destroy operations,
// so destroying any index serializes against destroying any other.
const DestroyLane = "_destroy"

func (q *Queue) laneFor(name string) *lane {
	q.mu.Lock()
	defer q.mu.Unlock()

	if l, ok := q.lanes[name]; ok {
		return l
	}

	l := &lane{ch: make(chan job, 64)}
	q.lanes[name] = l
	go q.run(name, l)
	return l
}

func (q *Queue) run(name string, l *lane) {
	for {
		select {
		case <-q.ctx.Done():
			return
		case j, ok := <-l.ch:
			if !ok {
				return
			}
			if q.log != nil {
				q.log.WithFields(logrus.Fields{"lane": name, "task": j.id}).Debug("task started")
			}
			err := j.task(q.ctx)
			if q.log != nil {
				entry := q.log.WithFields(logrus.Fields{"lane": name, "task": j.id})
				if err != nil {
					entry.WithError(err).Warn("task failed")
				} else {
					entry.Debug("task completed")
				}
			}
			j.done <- err
			close(j.done)
		}
	}
}

// Submit enqueues task onto the named lane and returns a channel that
// receives exactly one value: the task's error (or nil), once every task
// ahead of it in the same lane has finished. Submit never blocks on task
// execution; it only blocks if the lane's buffer is full.
func (q *Queue) Submit(lane string, task Task) <-chan error {
	done := make(chan error, 1)
	q.laneFor(lane).ch <- job{id: uuid.NewString(), task: task, done: done}
	return done
}

// Run submits task to lane and blocks until it completes, returning its
// error.
func (q *Queue) Run(lane string, task Task) error {
	return <-q.Submit(lane, task)
}


