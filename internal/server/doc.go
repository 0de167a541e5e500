// Package server hosts the Fiber HTTP service that adapts the hosting
// environment's events onto the cache controller: every intercepted
// request becomes an AssetRequest handed to the resolver, and the `/-/`
// admin prefix carries the out-of-band message channel plus diagnostics.
// The package keeps exports narrow and accepts explicit dependencies so
// tests can inject fake resolvers without touching storage or network.
package server
