package graph

import (
	"errors"
	"sync"
)

// ErrBuildInProgress is returned when a collection already has a running
// build.
var ErrBuildInProgress = errors.New("a graph build is already running for this collection")

// BuildLocks serializes graph builds per collection. Two concurrent builds
// over the same collection would race on the visited set and the citation
// rows, so only one may hold the lock at a time.
type BuildLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewBuildLocks creates an empty lock registry.
func NewBuildLocks() *BuildLocks {
	return &BuildLocks{held: make(map[string]bool)}
}

// Acquire takes the build lock for a collection. It never blocks: if another
// build holds the lock, ErrBuildInProgress is returned. On success the
// returned release function must be called exactly once.
func (l *BuildLocks) Acquire(collectionID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[collectionID] {
		return nil, ErrBuildInProgress
	}
	l.held[collectionID] = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, collectionID)
			l.mu.Unlock()
		})
	}
	return release, nil
}
