// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package listener keeps the per-job callback sets that independent call
// sites register to follow a job's outcome.
package listener

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/vulntor/fileops/pkg/job"
)

// releasedHistory bounds how many released job ids are remembered for
// dropping late frames.
const releasedHistory = 1024

// Listeners is one subscriber's set of callbacks. Nil callbacks are skipped.
type Listeners struct {
	OnProgress func(job.ProgressEvent)
	OnConflict func(job.ConflictEvent)
	OnComplete func(job.CompleteEvent)
	OnError    func(job.ErrorEvent)
	OnCancel   func(job.CancelEvent)
}

// Registry maps job ids to their subscribers.
//
// Notify is synchronous and invokes callbacks in subscription order. A
// terminal event releases the job id, so anything notified afterwards for
// that id is dropped.
type Registry struct {
	mu       sync.RWMutex
	nextID   uint64
	subs     map[string][]subscription
	released map[string]struct{}
	order    []string
}

type subscription struct {
	id        uint64
	listeners Listeners
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		subs:     make(map[string][]subscription),
		released: make(map[string]struct{}),
	}
}

// Subscribe registers l for jobID and returns a function that removes it.
// Subscribing to an already released job id is a no-op.
func (r *Registry) Subscribe(jobID string, l Listeners) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, gone := r.released[jobID]; gone {
		return func() {}
	}

	r.nextID++
	id := r.nextID
	r.subs[jobID] = append(r.subs[jobID], subscription{id: id, listeners: l})

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(jobID, id) })
	}
}

func (r *Registry) remove(jobID string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.subs[jobID]
	for i, s := range subs {
		if s.id == id {
			r.subs[jobID] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(r.subs[jobID]) == 0 {
		delete(r.subs, jobID)
	}
}

// Notify delivers ev to every subscriber of jobID in the matching category.
// A panicking callback is logged and does not stop delivery to the others.
func (r *Registry) Notify(jobID string, ev job.Event) {
	r.mu.RLock()
	if _, gone := r.released[jobID]; gone {
		r.mu.RUnlock()
		log.Debug().
			Str("component", "listener").
			Str("job_id", jobID).
			Msg("Dropping event for released job")
		return
	}
	subs := append([]subscription(nil), r.subs[jobID]...)
	r.mu.RUnlock()

	for _, s := range subs {
		Dispatch(jobID, s.listeners, ev)
	}

	if ev.Terminal() {
		r.Release(jobID)
	}
}

// Release drops every subscriber of jobID and marks it finished.
func (r *Registry) Release(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subs, jobID)
	if _, gone := r.released[jobID]; gone {
		return
	}
	r.released[jobID] = struct{}{}
	r.order = append(r.order, jobID)
	if len(r.order) > releasedHistory {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.released, oldest)
	}
}

// Count returns the number of live subscriptions for jobID.
func (r *Registry) Count(jobID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[jobID])
}

// Dispatch invokes the callback of l matching ev, recovering from panics.
func Dispatch(jobID string, l Listeners, ev job.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("component", "listener").
				Str("job_id", jobID).
				Interface("panic", rec).
				Msg("Job listener panicked")
		}
	}()

	switch e := ev.(type) {
	case job.ProgressEvent:
		if l.OnProgress != nil {
			l.OnProgress(e)
		}
	case job.ConflictEvent:
		if l.OnConflict != nil {
			l.OnConflict(e)
		}
	case job.CompleteEvent:
		if l.OnComplete != nil {
			l.OnComplete(e)
		}
	case job.ErrorEvent:
		if l.OnError != nil {
			l.OnError(e)
		}
	case job.CancelEvent:
		if l.OnCancel != nil {
			l.OnCancel(e)
		}
	}
}
