// Package controller implements the asset cache lifecycle and request
// resolution policies. A Controller moves through install (precache the
// critical asset list into the new generation's general partition,
// all-or-nothing), activate (purge partitions from stale generations and
// cut over), and the active steady state in which every intercepted
// request is classified as media or general and resolved cache-first.
// The hosting HTTP wiring lives in internal/server; this package only
// consumes a cache.Store and an upstream.Fetcher, so its behavior is
// testable without a network or a Fiber app.
package controller
