// Package configmgr implements the runtime configuration store: a versioned
// key/value map with per-key history, rollback, exact-key and glob watchers,
// an expiring read cache and optional encryption of individual values.
//
// All state is guarded by one mutex. Listeners and event publication run
// after it is released, on the goroutine that made the change.
package configmgr
