package authorization

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is owned by the payer side; the dashboard only ever submits pending.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// DateLayout is the wire format of DateOfService.
const DateLayout = "2006-01-02"

// Request is an insurance authorization request for one patient.
type Request struct {
	ID            string    `json:"id"`
	PatientID     string    `json:"patientId"`
	TreatmentType string    `json:"treatmentType"`
	InsurancePlan string    `json:"insurancePlan"`
	DateOfService string    `json:"dateOfService"`
	DiagnosisCode string    `json:"diagnosisCode"`
	DoctorNotes   string    `json:"doctorNotes"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// UnmarshalJSON accepts both "id" and "_id".
func (r *Request) UnmarshalJSON(data []byte) error {
	type alias Request
	aux := struct {
		*alias
		MongoID string `json:"_id"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = aux.MongoID
	}
	return nil
}

// Submission is the body of POST /authorization.
type Submission struct {
	PatientID     string `json:"patientId"`
	TreatmentType string `json:"treatmentType"`
	InsurancePlan string `json:"insurancePlan"`
	DateOfService string `json:"dateOfService"`
	DiagnosisCode string `json:"diagnosisCode"`
	DoctorNotes   string `json:"doctorNotes"`
	Status        Status `json:"status"`
}

// Form holds the fields the user fills in; the patient comes from the
// surface the form was opened on.
type Form struct {
	TreatmentType string
	InsurancePlan string
	DateOfService string
	DiagnosisCode string
	DoctorNotes   string
}

// Submission attaches the patient and the pending status.
func (f Form) Submission(patientID string) Submission {
	return Submission{
		PatientID:     patientID,
		TreatmentType: strings.TrimSpace(f.TreatmentType),
		InsurancePlan: strings.TrimSpace(f.InsurancePlan),
		DateOfService: strings.TrimSpace(f.DateOfService),
		DiagnosisCode: strings.TrimSpace(f.DiagnosisCode),
		DoctorNotes:   f.DoctorNotes,
		Status:        StatusPending,
	}
}

// Validate checks required fields and the date format. DoctorNotes is optional.
func (s Submission) Validate() error {
	var missing []string
	if s.PatientID == "" {
		missing = append(missing, "patientId")
	}
	if s.TreatmentType == "" {
		missing = append(missing, "treatmentType")
	}
	if s.InsurancePlan == "" {
		missing = append(missing, "insurancePlan")
	}
	if s.DateOfService == "" {
		missing = append(missing, "dateOfService")
	}
	if s.DiagnosisCode == "" {
		missing = append(missing, "diagnosisCode")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing, Reason: "required"}
	}
	if _, err := time.Parse(DateLayout, s.DateOfService); err != nil {
		return &ValidationError{Fields: []string{"dateOfService"}, Reason: "must be YYYY-MM-DD"}
	}
	if s.Status != "" && s.Status != StatusPending {
		return &ValidationError{Fields: []string{"status"}, Reason: "new requests must be pending"}
	}
	return nil
}

// ValidationError lists the submission fields that failed validation.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Fields, ", ") + ": " + e.Reason
}
