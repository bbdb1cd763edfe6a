// Package builder provides an API for declaring sequences and plugins and
// for talking to a running cadence host
//
// Sequences are assembled with an immutable fluent builder. A Plugin bundles
// handlers with the sequences they implement and exposes them as a module
// whose "register" export mounts everything on an executor. The Client
// publishes to topics and reads topic, sequence and readiness information
// over HTTP
package builder
