// Package api defines the data model shared by the router, the catalog
// loader and the registration coordinator: topic definitions and their
// routes, delivery policies and payload schemas, sequences with their
// movements and beats, catalog indexes, plugin manifests, and the Executor
// boundary through which routes are invoked and sequences are mounted
package api
