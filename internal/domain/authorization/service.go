package authorization

import (
	"context"
	"errors"
)

// ErrUnknownPatient is returned when a submission names a patient that does not exist.
var ErrUnknownPatient = errors.New("unknown patient")

// PatientLookup is the part of the patient service the authorization flow needs.
type PatientLookup interface {
	Exists(ctx context.Context, id string) bool
}

type Service struct {
	requests Repository
	patients PatientLookup
}

func NewService(requests Repository, patients PatientLookup) *Service {
	return &Service{requests: requests, patients: patients}
}

// Submit stores a new request. The status is forced to pending whatever the
// caller sent.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Request, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if s.patients != nil && !s.patients.Exists(ctx, sub.PatientID) {
		return nil, ErrUnknownPatient
	}
	req := &Request{
		PatientID:     sub.PatientID,
		TreatmentType: sub.TreatmentType,
		InsurancePlan: sub.InsurancePlan,
		DateOfService: sub.DateOfService,
		DiagnosisCode: sub.DiagnosisCode,
		DoctorNotes:   sub.DoctorNotes,
		Status:        StatusPending,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Service) List(ctx context.Context) ([]*Request, error) {
	return s.requests.List(ctx)
}
