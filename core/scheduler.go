package core

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Group names one recurring job. Go funcs are not comparable, so jobs
// are keyed by group: one recurring task per group.
type Group string

const GroupSampling Group = "sampling"

// JobScheduler runs one task per group on a recurring interval. Each
// group's task executes serially, never overlapping itself; the sampling
// single-active-pass invariant rests on this.
type JobScheduler interface {
	ScheduleRecurring(group Group, task func(), interval time.Duration) error
	CancelRecurring(group Group) error
}

type recurringJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// TickerScheduler drives each group with a dedicated goroutine and a
// time.Ticker. A tick that arrives while the task is still running is
// delivered after it finishes; ticks are never handled concurrently.
type TickerScheduler struct {
	jobs  map[Group]*recurringJob
	mutex sync.Mutex
}

func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{
		jobs: make(map[Group]*recurringJob),
	}
}

func (scheduler *TickerScheduler) ScheduleRecurring(
	group Group, task func(), interval time.Duration) error {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()

	if _, ok := scheduler.jobs[group]; ok {
		return errors.Errorf("group %q already scheduled", group)
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &recurringJob{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	scheduler.jobs[group] = job

	go func() {
		defer close(job.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				task()
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// CancelRecurring stops future runs and waits for an in-flight run to
// finish before returning.
func (scheduler *TickerScheduler) CancelRecurring(group Group) error {
	scheduler.mutex.Lock()
	job, ok := scheduler.jobs[group]
	if !ok {
		scheduler.mutex.Unlock()
		return errors.Errorf("group %q is not scheduled", group)
	}
	delete(scheduler.jobs, group)
	scheduler.mutex.Unlock()

	job.cancel()
	<-job.done
	return nil
}

// ManualScheduler records registrations and fires ticks on demand, for
// tests and orchestrators that own their own clock.
type ManualScheduler struct {
	tasks map[Group]func()
	mutex sync.Mutex
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{
		tasks: make(map[Group]func()),
	}
}

func (scheduler *ManualScheduler) ScheduleRecurring(
	group Group, task func(), interval time.Duration) error {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	if _, ok := scheduler.tasks[group]; ok {
		return errors.Errorf("group %q already scheduled", group)
	}
	scheduler.tasks[group] = task
	return nil
}

func (scheduler *ManualScheduler) CancelRecurring(group Group) error {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	if _, ok := scheduler.tasks[group]; !ok {
		return errors.Errorf("group %q is not scheduled", group)
	}
	delete(scheduler.tasks, group)
	return nil
}

// Tick runs the group's task once, synchronously. Returns false if the
// group is not scheduled.
func (scheduler *ManualScheduler) Tick(group Group) bool {
	scheduler.mutex.Lock()
	task, ok := scheduler.tasks[group]
	scheduler.mutex.Unlock()
	if !ok {
		return false
	}
	task()
	return true
}

func (scheduler *ManualScheduler) IsScheduled(group Group) bool {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	_, ok := scheduler.tasks[group]
	return ok
}
