package mcp

import "sync"

// fileLocks provides non-blocking per-path lock semantics so two split_file
// calls never write the same output file at once.
type fileLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// TryAcquire attempts to lock every path without blocking.
// Returns false, holding nothing, if any path is already locked.
func (l *fileLocks) TryAcquire(paths ...string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held == nil {
		l.held = make(map[string]struct{})
	}
	for _, p := range paths {
		if _, busy := l.held[p]; busy {
			return false
		}
	}
	for _, p := range paths {
		l.held[p] = struct{}{}
	}
	return true
}

// Release unlocks paths.
// Must only be called by the caller that successfully acquired them.
func (l *fileLocks) Release(paths ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range paths {
		delete(l.held, p)
	}
}
