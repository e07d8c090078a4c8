package migration

import "sync"

// activeRuns tracks orchestrators currently executing, keyed by blog.
// The HTTP surface uses it to deliver pause requests to a run that is
// executing inside a background task.
var activeRuns = struct {
	sync.RWMutex
	m map[string]*Orchestrator
}{m: make(map[string]*Orchestrator)}

func registerActive(blog string, o *Orchestrator) {
	activeRuns.Lock()
	defer activeRuns.Unlock()
	activeRuns.m[blog] = o
}

func unregisterActive(blog string) {
	activeRuns.Lock()
	defer activeRuns.Unlock()
	delete(activeRuns.m, blog)
}

// Active returns the in-flight orchestrator for a blog, if any.
func Active(blog string) (*Orchestrator, bool) {
	activeRuns.RLock()
	defer activeRuns.RUnlock()
	o, ok := activeRuns.m[blog]
	return o, ok
}
