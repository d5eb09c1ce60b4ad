package patient

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Patient is the record listed on the dashboard and served by /patients.
type Patient struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Age            int       `db:"age" json:"age"`
	Condition      string    `db:"condition" json:"condition"`
	MedicalHistory []string  `db:"medical_history" json:"medicalHistory"`
	TreatmentPlan  string    `db:"treatment_plan" json:"treatmentPlan"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt,omitempty"`
}

// UnmarshalJSON accepts both "id" and the Mongo-style "_id" some backends emit.
func (p *Patient) UnmarshalJSON(data []byte) error {
	type alias Patient
	aux := struct {
		*alias
		MongoID string `json:"_id"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = aux.MongoID
	}
	return nil
}

// Draft is a patient that has not been assigned an id yet.
type Draft struct {
	Name           string   `json:"name"`
	Age            int      `json:"age"`
	Condition      string   `json:"condition"`
	MedicalHistory []string `json:"medicalHistory"`
	TreatmentPlan  string   `json:"treatmentPlan"`
}

// Validate checks the fields the add-patient form marks as required.
func (d Draft) Validate() error {
	var missing []string
	if strings.TrimSpace(d.Name) == "" {
		missing = append(missing, "name")
	}
	if d.Age < 0 {
		return &ValidationError{Fields: []string{"age"}, Reason: "must not be negative"}
	}
	if strings.TrimSpace(d.Condition) == "" {
		missing = append(missing, "condition")
	}
	if len(d.MedicalHistory) == 0 {
		missing = append(missing, "medicalHistory")
	}
	if strings.TrimSpace(d.TreatmentPlan) == "" {
		missing = append(missing, "treatmentPlan")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing, Reason: "required"}
	}
	return nil
}

// ValidationError lists the draft fields that failed validation.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Fields, ", ") + ": " + e.Reason
}

// ParseMedicalHistory splits the comma-separated history entered on the
// add-patient form. Blank entries are dropped.
func ParseMedicalHistory(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Form is the add-patient form as typed. Age and MedicalHistory are raw text.
type Form struct {
	Name           string
	Age            string
	Condition      string
	MedicalHistory string
	TreatmentPlan  string
}

// Draft converts the form and validates the result.
func (f Form) Draft() (Draft, error) {
	age, err := strconv.Atoi(strings.TrimSpace(f.Age))
	if err != nil {
		return Draft{}, &ValidationError{Fields: []string{"age"}, Reason: "must be a whole number"}
	}
	d := Draft{
		Name:           strings.TrimSpace(f.Name),
		Age:            age,
		Condition:      strings.TrimSpace(f.Condition),
		MedicalHistory: ParseMedicalHistory(f.MedicalHistory),
		TreatmentPlan:  strings.TrimSpace(f.TreatmentPlan),
	}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}
