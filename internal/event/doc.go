// Package event provides a synchronous publish/subscribe bus and the events
// shipyard emits while a run progresses.
//
// The orchestrator publishes run and job lifecycle events and the CI client
// decorator publishes one event per CI call. Subscribers (the CLI progress
// printer, tests) observe the run without coupling to the orchestrator.
//
// # Dispatch
//
// Publish calls handlers on the publishing goroutine, specific handlers first
// and then wildcard handlers, each group in registration order. Job runners
// publish concurrently, so handlers must be safe for concurrent use. A
// panicking handler is recovered and reported; delivery to the remaining
// handlers continues.
//
// # Event types
//
//	run.started    RunStartedEvent
//	run.completed  RunCompletedEvent
//	job.started    JobStartedEvent
//	job.triggered  JobTriggeredEvent
//	job.resolved   JobResolvedEvent
//	job.completed  JobCompletedEvent
//	ci.call        CICallEvent
package event
