// Package link keeps a logical always-connected channel to the simulator
// alive over a transport whose backend pods may move at any time.
//
// The Engine composes a heartbeat monitor, a circuit breaker, a reconnection
// scheduler, a connection state machine and a delta reconstructor. All of
// their state is owned by one serial task queue: transport callbacks, timer
// callbacks and public calls are posted to it and run one at a time, so none
// of the components take locks. Blocking work (dialing, token refresh) runs
// on its own goroutine and posts its outcome back.
//
// Consumers observe the engine through typed events (see domain.EventKind)
// and through the lock-free Status and Snapshot accessors.
package link
