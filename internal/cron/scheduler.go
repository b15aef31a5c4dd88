// Package cron implements the Cron Scheduler: an in-memory-only min-heap of
// one-shot and recurring jobs. Jobs are never persisted to disk and are lost
// on restart, by design — this is a convenience for timed nudges, not a
// durable job queue.
package cron

import (
	"container/heap"
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/crystaldolphin/crystaldolphin/internal/errs"
	"github.com/crystaldolphin/crystaldolphin/internal/schema"
)

// MinInterval is the smallest allowed recurring interval.
const MinInterval = 2 * time.Minute

// Kind distinguishes one-shot from recurring jobs.
type Kind int

const (
	FireAt Kind = iota
	Interval
)

// Job is one scheduled entry. Payload is the text used to synthesize an
// inbound message when the job fires.
type Job struct {
	ID       string
	Kind     Kind
	At       time.Time     // FireAt: the instant to fire
	Every    time.Duration // Interval: the recurrence period
	Payload  string
	NextFire time.Time
}

// OnFireFunc is invoked when a job fires, carrying its payload.
type OnFireFunc func(job Job)

// jobHeap is a min-heap of *Job ordered by NextFire.
type jobHeap []*Job

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].NextFire.Before(h[j].NextFire) }
func (h jobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x any)         { *h = append(*h, x.(*Job)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Scheduler drives an in-memory heap of jobs with a single timer goroutine.
// Entirely in-memory: no persistence, no recovery across restarts.
type Scheduler struct {
	onFire OnFireFunc

	mu      sync.Mutex
	heap    jobHeap
	byID    map[string]*Job
	wake    chan struct{}
}

// NewScheduler creates an empty Scheduler. onFire is invoked (in the driver
// goroutine) whenever a job's NextFire instant is reached.
func NewScheduler(onFire OnFireFunc) *Scheduler {
	return &Scheduler{
		onFire: onFire,
		byID:   make(map[string]*Job),
		wake:   make(chan struct{}, 1),
	}
}

// AddFireAt schedules a one-shot job at instant t.
func (s *Scheduler) AddFireAt(t time.Time, payload string) (string, error) {
	job := &Job{ID: newJobID(), Kind: FireAt, At: t, Payload: payload, NextFire: t}
	s.add(job)
	return job.ID, nil
}

// AddInterval schedules a recurring job firing every d, starting at now+d.
// d must be at least MinInterval.
func (s *Scheduler) AddInterval(d time.Duration, payload string) (string, error) {
	if d < MinInterval {
		return "", errs.New(errs.InvalidArguments, fmt.Sprintf("interval must be >= %s", MinInterval))
	}
	job := &Job{ID: newJobID(), Kind: Interval, Every: d, Payload: payload, NextFire: time.Now().Add(d)}
	s.add(job)
	return job.ID, nil
}

// AddCronExpr schedules a recurring job whose first fire instant is computed
// from a 5-field cron expression via robfig/cron, resolved once here. The
// expression itself is never stored; only the resulting period and next
// instant are kept, preserving the in-memory-only/no-expression-storage
// invariant.
func (s *Scheduler) AddCronExpr(expr string, payload string) (string, error) {
	parser := robfigcron.NewParser(robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return "", errs.Wrap(errs.InvalidArguments, "invalid cron expression", err)
	}
	now := time.Now()
	first := sched.Next(now)
	second := sched.Next(first)
	period := second.Sub(first)
	if period < MinInterval {
		return "", errs.New(errs.InvalidArguments, fmt.Sprintf("resolved interval %s is below the %s minimum", period, MinInterval))
	}
	job := &Job{ID: newJobID(), Kind: Interval, Every: period, Payload: payload, NextFire: first}
	s.add(job)
	return job.ID, nil
}

func (s *Scheduler) add(job *Job) {
	s.mu.Lock()
	heap.Push(&s.heap, job)
	s.byID[job.ID] = job
	s.mu.Unlock()
	s.nudge()
}

// Remove cancels a job by id. Returns true if it existed.
func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	for i, j := range s.heap {
		if j == job {
			heap.Remove(&s.heap, i)
			break
		}
	}
	return true
}

// Jobs returns a snapshot of all pending jobs.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.heap))
	for _, j := range s.heap {
		out = append(out, *j)
	}
	return out
}

// List implements schema.CronService.List.
func (s *Scheduler) List() []schema.CronJobSummary {
	jobs := s.Jobs()
	out := make([]schema.CronJobSummary, 0, len(jobs))
	for _, j := range jobs {
		kind := "fire_at"
		if j.Kind == Interval {
			kind = "interval"
		}
		out = append(out, schema.CronJobSummary{ID: j.ID, Kind: kind, Payload: j.Payload, Next: j.NextFire})
	}
	return out
}

func (s *Scheduler) nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives the scheduler until ctx is cancelled. Intended to be run in its
// own goroutine by the Gateway.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("cron: scheduler started")
	for {
		s.mu.Lock()
		var wait time.Duration
		if len(s.heap) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(s.heap[0].NextFire)
			if wait < 0 {
				wait = 0
			}
		}
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
			s.fireDue()
		}
	}
}

func (s *Scheduler) fireDue() {
	now := time.Now()
	for {
		s.mu.Lock()
		if len(s.heap) == 0 || s.heap[0].NextFire.After(now) {
			s.mu.Unlock()
			return
		}
		job := heap.Pop(&s.heap).(*Job)
		if job.Kind == Interval {
			job.NextFire = job.NextFire.Add(job.Every)
			heap.Push(&s.heap, job)
		} else {
			delete(s.byID, job.ID)
		}
		jobCopy := *job
		s.mu.Unlock()

		if s.onFire != nil {
			s.onFire(jobCopy)
		}
	}
}

func newJobID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
