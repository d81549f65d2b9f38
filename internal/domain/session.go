package domain

import "time"

// EndReason records which path led a session into StateEnded.
type EndReason string

const (
	EndCompleted           EndReason = "completed"
	EndDeclined            EndReason = "declined"
	EndLeft                EndReason = "left"
	EndStopped             EndReason = "stopped"
	EndRetryExhausted      EndReason = "retry_exhausted"
	EndUpstreamUnavailable EndReason = "upstream_unavailable"
	EndInvalidContext      EndReason = "invalid_context"
)

// MedicationAdministrationRecord is one reported intake.
type MedicationAdministrationRecord struct {
	MedicationID string    `json:"medicationId"`
	Name         string    `json:"name"`
	Dose         string    `json:"dose"`
	Taken        bool      `json:"taken"`
	Deviation    string    `json:"deviation,omitempty"`
	ReportedAt   time.Time `json:"reportedAt"`
}

// SessionSummary is written once per ended session and never mutated after.
// Its identity is (PatientID, SessionID).
type SessionSummary struct {
	PatientID                string                           `json:"-"`
	SessionID                string                           `json:"sessionId"`
	StartedAt                time.Time                        `json:"startedAt"`
	CompletedAt              time.Time                        `json:"completedAt"`
	MedicationAdministration []MedicationAdministrationRecord `json:"medicationAdministration"`
	EducationTopic           string                           `json:"educationTopic,omitempty"`
	EndReason                EndReason                        `json:"endReason,omitempty"`
}
