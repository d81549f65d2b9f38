package domain

// Patient is the directory record the dialog reads to authenticate a caller.
// Pairing codes resolve to at most one active patient.
type Patient struct {
	ID          string `json:"patient_id"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	PairingCode string `json:"pairing_code"`
	IsActive    bool   `json:"is_active"`
}

// Medication is an active medication on file for a patient.
type Medication struct {
	ID        string `json:"medication_id"`
	PatientID string `json:"patient_id,omitempty"`
	Name      string `json:"name"`
	Dose      string `json:"dose"`
}
