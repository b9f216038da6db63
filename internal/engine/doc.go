// Package engine provides the asynchronous job runner. It executes submitted
// work off the request path, updates the job record as the lifecycle
// advances, and relays log output in real time through the LogBroker.
package engine
