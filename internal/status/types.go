package status

import "time"

// PassPhase represents the phase of a reconciliation pass
type PassPhase string

const (
	// PassPhaseIdle means no pass has run yet
	PassPhaseIdle PassPhase = "Idle"

	// PassPhaseRunning means a pass is in progress
	PassPhaseRunning PassPhase = "Running"

	// PassPhaseComplete means the last pass completed successfully
	PassPhaseComplete PassPhase = "Complete"

	// PassPhaseFailed means the last pass failed
	PassPhaseFailed PassPhase = "Failed"
)

// Trigger identifies what started a pass
type Trigger string

const (
	// TriggerScheduled is a pass started by the coordinator ticker
	TriggerScheduled Trigger = "scheduled"

	// TriggerManual is a pass requested through the API or CLI
	TriggerManual Trigger = "manual"
)

// PassStatus represents the state of the most recent reconciliation pass
type PassStatus struct {
	// ID identifies the pass
	ID string `json:"id,omitempty"`

	// Phase represents the current phase
	Phase PassPhase `json:"phase"`

	// Trigger records what started the pass
	Trigger Trigger `json:"trigger,omitempty"`

	// Message provides additional information about the pass
	Message string `json:"message,omitempty"`

	// Reason is the failure reason of a failed pass
	Reason string `json:"reason,omitempty"`

	// StartedAt is when the pass started
	StartedAt *time.Time `json:"startedAt,omitempty"`

	// EndedAt is when the pass ended
	EndedAt *time.Time `json:"endedAt,omitempty"`

	// LastSuccessTime is the end time of the last successful pass
	LastSuccessTime *time.Time `json:"lastSuccessTime,omitempty"`

	// AttemptCount is the number of consecutive failed passes
	AttemptCount int `json:"attemptCount,omitempty"`

	// ManifestHash is the hash of the manifest read by the pass
	ManifestHash string `json:"manifestHash,omitempty"`

	// Descriptors is the number of manifest entries
	Descriptors int `json:"descriptors"`

	// Added is the number of locations handed to the sink
	Added int `json:"added"`

	// Unchanged is the number of entries needing no publication
	Unchanged int `json:"unchanged"`

	// Failed is the number of entries whose store update failed
	Failed int `json:"failed"`
}
