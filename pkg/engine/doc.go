// Package engine routes unified operations to provider adapters.
//
// Every call follows the same order: resolve the provider by name, validate
// identifiers and requests locally, check that the provider supports the
// operation, check the context, then call through the retry policy and
// record metrics. Failures before the last step never touch the network.
//
// Catalog reads are served from TTL caches and mutations drop the
// provider's cached entries. Generation runs a bounded tool loop when
// tool executors are configured; streamed generation can be run as a task
// whose events are delivered to listeners through a stream.Dispatcher.
package engine
