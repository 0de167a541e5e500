// Package cache defines the partition-scoped store that persists cached
// asset responses. A partition is an independent named namespace
// (general-<gen>/media-<gen>); entries are immutable 200-response snapshots
// keyed by normalized request path. Two backends share one interface: a
// filesystem layout (body file + JSON metadata sidecar, temp file + rename
// for atomicity) and a LevelDB layout (gob-encoded envelopes under
// partition-prefixed keys). Lifecycle operations (enumerate partitions,
// drop a stale generation wholesale) live here so the controller's
// activation phase does not touch storage details.
package cache
