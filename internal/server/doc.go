// Package server implements the HTTP host adapter for the router
//
// This package provides REST endpoints for publishing to topics, topic and
// sequence introspection, health and readiness checks, and a WebSocket
// stream of delivered payloads per topic
package server
