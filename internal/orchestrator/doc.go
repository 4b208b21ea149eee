// Package orchestrator runs batches of CI jobs.
//
// For every (descriptor, environment) pair a job runner triggers a build,
// resolves the queued trigger to a build number and polls the build until it
// finishes. The [Orchestrator] runs pairs on a bounded pool and collects one
// result per pair into a report ordered like the input.
//
// # Waiting
//
// The resolver and the poller are the only places a pair blocks. Both query
// immediately, then wait a fixed interval between queries. A wait ends early
// when the loop deadline passes or the run context is done.
// Transport failures are retried up to a configured number of consecutive
// attempts; any other failure ends the loop at once.
//
// # Cancellation
//
// Cancelling the run context makes in-flight loops stop at their next wait and
// record Unknown with a cancelled error kind. Pairs that have not started yet
// record the same without talking to the CI server. Results that completed
// before the cancellation are kept.
package orchestrator
