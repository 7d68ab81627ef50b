// Package launch provides task launchers used to run cache maintenance
// (eviction passes) off the writer's goroutine.
//
// A launcher accepts a task and reports whether it was accepted. Tasks are
// fire-and-forget: there is no result, no cancellation, and a rejected task
// is simply dropped. Cache eviction tolerates drops because every write asks
// for another pass.
package launch

// Inline runs each task synchronously on the caller's goroutine.
// Useful for deterministic tests and for single-threaded tools.
type Inline struct{}

// Launch runs task before returning.
func (Inline) Launch(task func()) bool {
	task()
	return true
}

// Go starts one goroutine per task.
type Go struct{}

// Launch starts task on a new goroutine.
func (Go) Launch(task func()) bool {
	go task()
	return true
}
