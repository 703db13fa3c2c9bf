// Package fabriclog wraps zap into the small, structured logging surface
// the rest of this module uses.
//
// # Overview
//
// The fabric logs structured fields (node_id, event kinds, error kinds)
// rather than formatted strings, so multi-node demo output can be
// filtered and told apart at a glance. Logger is a thin scoping wrapper:
// every line it emits carries the node_id field of the node that emitted
// it, stamped once at construction instead of at every call site.
//
// # Constructors
//
//   - New: production JSON output, for embedding in a real service
//   - NewDevelopment: console-friendly output, for the demo command
//   - NewNop: discards everything, for tests that don't inspect logs
//
// The wrapper deliberately exposes only Info/Warn/Error and Sync; the
// fabric has no use for leveled verbosity knobs beyond that, and call
// sites stay decoupled from the backing library's full surface.
package fabriclog
