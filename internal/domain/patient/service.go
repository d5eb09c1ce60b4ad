package patient

import (
	"context"

	"github.com/ehr/dashboard/pkg/pagination"
)

type Service struct {
	patients Repository
}

func NewService(patients Repository) *Service {
	return &Service{patients: patients}
}

func (s *Service) CreatePatient(ctx context.Context, d Draft) (*Patient, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	p := &Patient{
		Name:           d.Name,
		Age:            d.Age,
		Condition:      d.Condition,
		MedicalHistory: d.MedicalHistory,
		TreatmentPlan:  d.TreatmentPlan,
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// ListPatients returns one page and the number of pages in the collection.
func (s *Service) ListPatients(ctx context.Context, pg pagination.Params) ([]*Patient, int, error) {
	items, total, err := s.patients.List(ctx, pg.Limit, pg.Offset())
	if err != nil {
		return nil, 0, err
	}
	return items, pagination.TotalPages(total, pg.Limit), nil
}

// Exists reports whether a patient with id is stored.
func (s *Service) Exists(ctx context.Context, id string) bool {
	_, err := s.patients.GetByID(ctx, id)
	return err == nil
}
