package api

import "time"

// ReadyInfo is the readiness metadata published once registration
// completes. Plugins lists the targets owning at least one mounted sequence;
// Discovered lists every target found, mounted or not
type ReadyInfo struct {
	CompletedAt time.Time    `json:"completedAt"`
	Plugins     []TargetID   `json:"plugins"`
	Discovered  []TargetID   `json:"discovered"`
	Sequences   []SequenceID `json:"sequences"`
}
