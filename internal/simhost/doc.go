// Package simhost provides one in-memory implementation of
// fabrichost.Host, wiring together a set of fabric.Manager instances in
// a single process for tests and local demos. It is not a production
// host: CreateNode mints Managers directly instead of provisioning real
// isolated execution units, and InstallCode only records the supplied
// code bytes for inspection. Every Call is dispatched synchronously to
// the target Manager's corresponding method; BroadcastHeartbeat runs the
// per-node Heartbeat calls concurrently under an errgroup.
package simhost
