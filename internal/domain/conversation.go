package domain

import "time"

// State is a conversational state of the adherence dialog.
type State string

const (
	StateAwaitingIdentifier             State = "AWAITING_IDENTIFIER"
	StateGreeted                        State = "GREETED"
	StateAwaitingMedicationSelection    State = "AWAITING_MEDICATION_SELECTION"
	StateAwaitingMedicationConfirmation State = "AWAITING_MEDICATION_CONFIRMATION"
	StateAwaitingMedicationChange       State = "AWAITING_MEDICATION_CHANGE"
	StateAwaitingMedicationDetail       State = "AWAITING_MEDICATION_DETAIL"
	StateConfirmed                      State = "CONFIRMED"
	StateAwaitingEducationOffer         State = "AWAITING_EDUCATION_OFFER"
	StateAwaitingEducationTopic         State = "AWAITING_EDUCATION_TOPIC"
	StateEnded                          State = "ENDED"
)

// Terminal reports whether no further turns are accepted in s.
func (s State) Terminal() bool {
	return s == StateEnded
}

// Answer keys are prefixes; the medication ID is appended.
const (
	AnswerConfirmed  = "confirmed:"
	AnswerChanged    = "changed:"
	AnswerDetail     = "detail:"
	AnswerReportedAt = "reportedAt:"
)

const (
	AnswerYes = "yes"
	AnswerNo  = "no"
)

// ConversationContext is the state carried between turns of one session.
// It is owned by a single in-flight turn and is never shared across sessions.
type ConversationContext struct {
	SessionID           string            `json:"sessionId"`
	StartedAt           time.Time         `json:"startedAt"`
	State               State             `json:"state"`
	PatientID           string            `json:"patientId,omitempty"`
	PendingMedicationID string            `json:"pendingMedicationId,omitempty"`
	Medications         []Medication      `json:"medications,omitempty"`
	Answers             map[string]string `json:"answers,omitempty"`
	RetryCounts         map[State]int     `json:"retryCounts,omitempty"`
	FallbackCount       int               `json:"fallbackCount,omitempty"`
	EducationTopic      string            `json:"educationTopic,omitempty"`
	EndReason           EndReason         `json:"endReason,omitempty"`
}

// NewConversationContext returns the context for a freshly started session.
func NewConversationContext(sessionID string, startedAt time.Time) ConversationContext {
	return ConversationContext{
		SessionID:   sessionID,
		StartedAt:   startedAt.UTC(),
		State:       StateAwaitingIdentifier,
		Answers:     map[string]string{},
		RetryCounts: map[State]int{},
	}
}

// Clone returns a deep copy so a turn never mutates its caller's value.
func (c ConversationContext) Clone() ConversationContext {
	out := c
	out.Answers = make(map[string]string, len(c.Answers))
	for k, v := range c.Answers {
		out.Answers[k] = v
	}
	out.RetryCounts = make(map[State]int, len(c.RetryCounts))
	for k, v := range c.RetryCounts {
		out.RetryCounts[k] = v
	}
	if c.Medications != nil {
		out.Medications = append([]Medication(nil), c.Medications...)
	}
	return out
}

// Medication returns the cached medication with the given ID.
func (c ConversationContext) Medication(id string) (Medication, bool) {
	for _, m := range c.Medications {
		if m.ID == id {
			return m, true
		}
	}
	return Medication{}, false
}

// MedicationUnderReview returns the medication the patient rejected in the
// recap and has not yet answered the change question for.
func (c ConversationContext) MedicationUnderReview() (Medication, bool) {
	for _, m := range c.Medications {
		if c.Answers[AnswerConfirmed+m.ID] == AnswerNo {
			if _, answered := c.Answers[AnswerChanged+m.ID]; !answered {
				return m, true
			}
		}
	}
	return Medication{}, false
}
