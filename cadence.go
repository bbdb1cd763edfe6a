// Package cadence is the topic-routed event orchestration engine: a
// publish/subscribe router that dispatches named topics to mounted
// (target, operation) pairs, plus the catalog loader and registration
// coordinator that mount sequences into an executor exactly once
package cadence

const (
	Name    = "cadence"
	Version = "0.1.0"
)
