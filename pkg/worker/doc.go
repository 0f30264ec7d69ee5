// Package worker runs pipeline tasks on a small fixed pool of goroutines.
//
// Submit never runs a task on the caller's goroutine and never waits for a
// free worker; the backlog grows instead. It returns a Handle the caller may
// wait on or ignore. Tasks must not submit to the pool they run on
// and then wait for the result.
package worker
