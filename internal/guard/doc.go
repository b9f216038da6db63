// Package guard implements the admission checks applied before a job is
// created: per-caller token-bucket rate limiting, API-key authentication
// with an optional use cap, a global/per-caller concurrency cap, and the
// provision budget cap. Each guard is an explicitly owned, lock-guarded
// state object injected into the HTTP layer, so every guard is testable in
// isolation and independently safe to apply in any order.
package guard
