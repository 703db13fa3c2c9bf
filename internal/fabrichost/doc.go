// Package fabrichost states the contract a host platform must satisfy
// for a fabric.Manager to run on it: asynchronous node creation, code
// installation, and inter-node request/response calls. This package
// defines the interface only; internal/simhost provides one in-memory
// implementation for tests and local demos, not a production host.
package fabrichost
