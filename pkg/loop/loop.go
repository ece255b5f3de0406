// Package loop provides the serial executor every job coordinator runs on.
//
// All coordination state (jobs, prompts, queues) is mutated only from tasks
// posted to a Loop. Tasks run one at a time in post order, so messages for a
// job are handled in arrival order and callbacks may safely post follow-up
// work without re-entrancy.
package loop

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Task is a unit of work executed on the loop goroutine.
type Task func()

// Loop is a single-worker FIFO executor with an unbounded queue.
// Post never blocks, which lets tasks post further tasks.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	started bool
	stopped bool
	done    chan struct{}
}

// New creates a loop. Call Start before posting work that must run.
func New() *Loop {
	l := &Loop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Start launches the worker goroutine. It returns an error if the loop was
// already started or has been stopped.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return fmt.Errorf("event loop already started")
	}
	if l.stopped {
		return fmt.Errorf("event loop stopped")
	}
	l.started = true

	go l.run()
	go func() {
		<-ctx.Done()
		l.shutdown()
	}()

	log.Debug().Str("component", "loop").Msg("Event loop started")
	return nil
}

// Stop asks the worker to finish queued tasks and exit, then waits for it
// or for ctx to expire.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()

	l.shutdown()
	if !started {
		return nil
	}

	select {
	case <-l.done:
		log.Debug().Str("component", "loop").Msg("Event loop stopped")
		return nil
	case <-ctx.Done():
		log.Warn().Str("component", "loop").Msg("Event loop shutdown timed out")
		return ctx.Err()
	}
}

func (l *Loop) shutdown() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Post enqueues fn. Tasks posted after Stop are dropped.
func (l *Loop) Post(fn Task) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		log.Debug().Str("component", "loop").Msg("Dropping task posted after stop")
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.cond.Signal()
}

// Flush blocks until every task queued so far, and every task those tasks
// posted in turn, has run. It must not be called from the loop goroutine.
func (l *Loop) Flush(ctx context.Context) error {
	for {
		drained := make(chan bool, 1)
		l.Post(func() {
			l.mu.Lock()
			empty := len(l.queue) == 0
			l.mu.Unlock()
			drained <- empty
		})

		select {
		case empty := <-drained:
			if empty {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.exec(task)
	}
}

func (l *Loop) exec(task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("component", "loop").
				Interface("panic", r).
				Msg("Task panicked")
		}
	}()
	task()
}
