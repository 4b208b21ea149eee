// Package job defines the data model shared by every stage of a deployment run.
//
// A [Descriptor] names one CI job, its parameters and the environments it
// deploys to. Each (descriptor, environment) pair is triggered independently:
// the CI server answers a trigger with a [TriggerHandle], the handle resolves
// to a [BuildHandle], and polling the build yields a [BuildState]. The outcome
// of a pair is a [Result], and the ordered collection of results is a [Report].
//
// Descriptors are immutable once constructed with [NewDescriptor]; all
// accessors return copies so a descriptor can be shared across goroutines.
package job
