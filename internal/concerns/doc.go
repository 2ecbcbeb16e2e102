// Package concerns holds the cross-cutting concern managers of the runtime
// and the static registry mapping each concern to the manager that owns it.
//
// The managers are independent of one another except that several publish on
// a shared event.Bus. Managers groups one instance of each; Default returns a
// process-wide set and NewManagers builds isolated sets for tests and
// embedded runtimes.
package concerns
