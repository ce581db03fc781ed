// Package jobqueue keeps the three ordered views over a printer's jobs.
//
// Every view is ordered by job id, newest first. The all view owns the jobs:
// removing a job from it is the real delete. The active and completed views
// only index into the same jobs and always partition the all view's members
// that have not been purged.
//
// Queues is not safe for concurrent use; the owning printer's lock guards it.
package jobqueue

import (
	"github.com/google/btree"
)

// Job is the handle the queues order. IDs are unique within one Queues.
type Job interface {
	ID() int
}

// Releaser is implemented by jobs that hold resources to drop when purged.
type Releaser interface {
	Release()
}

const degree = 8

// Queues holds the all, active and completed views.
type Queues[J Job] struct {
	all       *btree.BTreeG[J]
	active    *btree.BTreeG[J]
	completed *btree.BTreeG[J]
	byID      map[int]J
}

func newestFirst[J Job](a, b J) bool {
	return a.ID() > b.ID()
}

// New returns empty queues.
func New[J Job]() *Queues[J] {
	return &Queues[J]{
		all:       btree.NewG[J](degree, newestFirst[J]),
		active:    btree.NewG[J](degree, newestFirst[J]),
		completed: btree.NewG[J](degree, newestFirst[J]),
		byID:      map[int]J{},
	}
}

// Add inserts a job into the all view and into active or completed. It
// reports false when a job with the same id is already queued.
func (q *Queues[J]) Add(job J, completed bool) bool {
	if _, exists := q.byID[job.ID()]; exists {
		return false
	}
	q.byID[job.ID()] = job
	q.all.ReplaceOrInsert(job)
	if completed {
		q.completed.ReplaceOrInsert(job)
	} else {
		q.active.ReplaceOrInsert(job)
	}
	return true
}

// Complete moves a job from active to completed. It reports false when the
// job is not active.
func (q *Queues[J]) Complete(job J) bool {
	if _, ok := q.active.Delete(job); !ok {
		return false
	}
	q.completed.ReplaceOrInsert(job)
	return true
}

// Remove purges a job from every view and releases it.
func (q *Queues[J]) Remove(job J) bool {
	owned, ok := q.all.Delete(job)
	if !ok {
		return false
	}
	delete(q.byID, job.ID())
	q.active.Delete(job)
	q.completed.Delete(job)
	release(owned)
	return true
}

// Get looks a job up by id.
func (q *Queues[J]) Get(id int) (J, bool) {
	job, ok := q.byID[id]
	return job, ok
}

// IsActive reports whether the job is in the active view.
func (q *Queues[J]) IsActive(job J) bool {
	return q.active.Has(job)
}

func (q *Queues[J]) Len() int          { return q.all.Len() }
func (q *Queues[J]) LenActive() int    { return q.active.Len() }
func (q *Queues[J]) LenCompleted() int { return q.completed.Len() }

// All returns the all view, newest first.
func (q *Queues[J]) All() []J { return collect(q.all) }

// Active returns the active view, newest first.
func (q *Queues[J]) Active() []J { return collect(q.active) }

// Completed returns the completed view, newest first.
func (q *Queues[J]) Completed() []J { return collect(q.completed) }

// AscendAll visits the all view newest first until fn returns false.
func (q *Queues[J]) AscendAll(fn func(J) bool) { q.all.Ascend(fn) }

// AscendActive visits the active view newest first until fn returns false.
func (q *Queues[J]) AscendActive(fn func(J) bool) { q.active.Ascend(fn) }

// AscendCompleted visits the completed view newest first until fn returns false.
func (q *Queues[J]) AscendCompleted(fn func(J) bool) { q.completed.Ascend(fn) }

// Clear drops the index views first, then releases every owned job.
func (q *Queues[J]) Clear() {
	q.active.Clear(false)
	q.completed.Clear(false)
	q.all.Ascend(func(job J) bool {
		release(job)
		return true
	})
	q.all.Clear(false)
	q.byID = map[int]J{}
}

func collect[J Job](tree *btree.BTreeG[J]) []J {
	out := make([]J, 0, tree.Len())
	tree.Ascend(func(job J) bool {
		out = append(out, job)
		return true
	})
	return out
}

func release(job any) {
	if r, ok := job.(Releaser); ok {
		r.Release()
	}
}
