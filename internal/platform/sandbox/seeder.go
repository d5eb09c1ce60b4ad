// Package sandbox generates reproducible synthetic patients and
// authorization requests for demo and test instances of the API.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/dashboard/internal/domain/authorization"
	"github.com/ehr/dashboard/internal/domain/patient"
)

// SeedConfig controls the volume and shape of generated data.
type SeedConfig struct {
	PatientCount             int   `json:"patientCount"`
	AuthorizationsPerPatient int   `json:"authorizationsPerPatient"`
	Seed                     int64 `json:"seed"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		PatientCount:             25,
		AuthorizationsPerPatient: 1,
	}
}

// SeedResult summarises one Seed run.
type SeedResult struct {
	Patients       int           `json:"patients"`
	Authorizations int           `json:"authorizations"`
	Duration       time.Duration `json:"duration"`
}

type codeEntry struct {
	Code    string
	Display string
}

var (
	firstNames = []string{
		"James", "Robert", "John", "Michael", "David", "William", "Richard",
		"Joseph", "Thomas", "Christopher", "Charles", "Daniel", "Matthew",
		"Mary", "Patricia", "Jennifer", "Linda", "Barbara", "Elizabeth",
		"Susan", "Jessica", "Sarah", "Karen", "Lisa", "Nancy", "Betty",
		"Margaret", "Sandra", "Ashley", "Emily", "Anna", "Emma", "Helen",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia",
		"Miller", "Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez",
		"Gonzalez", "Wilson", "Anderson", "Thomas", "Taylor", "Moore",
		"Jackson", "Martin", "Lee", "Perez", "Thompson", "White", "Harris",
	}

	icd10Conditions = []codeEntry{
		{"E11.9", "Type 2 diabetes mellitus"},
		{"I10", "Essential hypertension"},
		{"J45.909", "Asthma"},
		{"E78.5", "Hyperlipidemia"},
		{"J06.9", "Upper respiratory infection"},
		{"M54.5", "Low back pain"},
		{"F32.9", "Major depressive disorder"},
		{"K21.0", "Gastro-esophageal reflux disease"},
		{"N39.0", "Urinary tract infection"},
		{"E03.9", "Hypothyroidism"},
		{"G43.909", "Migraine"},
		{"G47.00", "Insomnia"},
		{"J30.9", "Allergic rhinitis"},
		{"E55.9", "Vitamin D deficiency"},
	}

	histories = []string{
		"Appendectomy", "Tonsillectomy", "Childhood asthma", "Fractured wrist",
		"Seasonal allergies", "Smoker", "Family history of diabetes",
		"Penicillin allergy", "Hepatitis B vaccination", "Knee arthroscopy",
	}

	treatmentPlans = []string{
		"Lifestyle changes and follow-up in 3 months",
		"Medication review and monthly monitoring",
		"Physical therapy twice weekly",
		"Referral to specialist",
		"Inhaler as needed, annual spirometry",
		"Dietary counselling and lab work",
	}

	treatmentTypes = []string{
		"MRI", "CT scan", "Physical therapy", "Specialist consultation",
		"Outpatient surgery", "Sleep study", "Allergy testing",
	}

	insurancePlans = []string{
		"Blue Shield PPO", "Aetna HMO", "UnitedHealthcare Choice",
		"Cigna Open Access", "Medicare Part B", "Kaiser Permanente",
	}
)

// DataGenerator produces synthetic records from a seeded source, so the same
// seed always yields the same data.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) pickCode() codeEntry {
	return icd10Conditions[g.rng.Intn(len(icd10Conditions))]
}

// GeneratePatient returns a valid patient draft. Ages span every filter
// bucket.
func (g *DataGenerator) GeneratePatient() patient.Draft {
	n := 1 + g.rng.Intn(3)
	history := make([]string, 0, n)
	seen := map[string]bool{}
	for len(history) < n {
		h := g.pick(histories)
		if !seen[h] {
			seen[h] = true
			history = append(history, h)
		}
	}
	return patient.Draft{
		Name:           g.pick(firstNames) + " " + g.pick(lastNames),
		Age:            g.rng.Intn(96),
		Condition:      g.pickCode().Display,
		MedicalHistory: history,
		TreatmentPlan:  g.pick(treatmentPlans),
	}
}

// GenerateAuthorization returns a valid pending submission for patientID
// with a service date in the next 60 days.
func (g *DataGenerator) GenerateAuthorization(patientID string) authorization.Submission {
	code := g.pickCode()
	date := time.Now().UTC().AddDate(0, 0, 1+g.rng.Intn(60))
	return authorization.Submission{
		PatientID:     patientID,
		TreatmentType: g.pick(treatmentTypes),
		InsurancePlan: g.pick(insurancePlans),
		DateOfService: date.Format(authorization.DateLayout),
		DiagnosisCode: code.Code,
		DoctorNotes:   "Requested for " + code.Display,
		Status:        authorization.StatusPending,
	}
}

// Seeder writes generated records through the domain services, so seeded
// data passes the same validation as user input.
type Seeder struct {
	patients       *patient.Service
	authorizations *authorization.Service
	mu             sync.Mutex
}

func NewSeeder(patients *patient.Service, authorizations *authorization.Service) *Seeder {
	return &Seeder{patients: patients, authorizations: authorizations}
}

// Seed generates cfg.PatientCount patients, each with
// cfg.AuthorizationsPerPatient authorization requests.
func (s *Seeder) Seed(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	gen := NewDataGenerator(cfg.Seed)
	result := &SeedResult{}
	for i := 0; i < cfg.PatientCount; i++ {
		p, err := s.patients.CreatePatient(ctx, gen.GeneratePatient())
		if err != nil {
			return result, fmt.Errorf("seed patient %d: %w", i, err)
		}
		result.Patients++

		for j := 0; j < cfg.AuthorizationsPerPatient; j++ {
			if _, err := s.authorizations.Submit(ctx, gen.GenerateAuthorization(p.ID)); err != nil {
				return result, fmt.Errorf("seed authorization for %s: %w", p.ID, err)
			}
			result.Authorizations++
		}
	}
	result.Duration = time.Since(start)
	return result, nil
}

// SeedHandler exposes seeding over HTTP for demo instances.
type SeedHandler struct {
	seeder *Seeder
}

func NewSeedHandler(seeder *Seeder) *SeedHandler {
	return &SeedHandler{seeder: seeder}
}

// RegisterRoutes registers sandbox routes on the given Echo group.
func (h *SeedHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/sandbox/seed", h.handleSeed)
}

func (h *SeedHandler) handleSeed(c echo.Context) error {
	var cfg SeedConfig
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if cfg.PatientCount <= 0 {
		cfg.PatientCount = 10
	}
	if cfg.PatientCount > 1000 {
		return echo.NewHTTPError(http.StatusBadRequest, "patientCount must be at most 1000")
	}

	result, err := h.seeder.Seed(c.Request().Context(), cfg)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}
