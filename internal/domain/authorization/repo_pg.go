package authorization

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepoPG returns a Postgres backed Repository over authorization_request.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Create(ctx context.Context, req *Request) error {
	id := uuid.New()
	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		return fmt.Errorf("authorization create: patient id: %w", err)
	}
	dos, err := time.Parse(DateLayout, req.DateOfService)
	if err != nil {
		return fmt.Errorf("authorization create: date of service: %w", err)
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO authorization_request (
			id, patient_id, treatment_type, insurance_plan, date_of_service,
			diagnosis_code, doctor_notes, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, patientID, req.TreatmentType, req.InsurancePlan, dos,
		req.DiagnosisCode, req.DoctorNotes, string(req.Status), req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("authorization create: %w", err)
	}
	req.ID = id.String()
	return nil
}

func (r *repoPG) List(ctx context.Context) ([]*Request, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, patient_id, treatment_type, insurance_plan, date_of_service,
		       diagnosis_code, doctor_notes, status, created_at
		FROM authorization_request ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		var (
			req     Request
			id, pid uuid.UUID
			dos     time.Time
			status  string
		)
		if err := rows.Scan(&id, &pid, &req.TreatmentType, &req.InsurancePlan, &dos,
			&req.DiagnosisCode, &req.DoctorNotes, &status, &req.CreatedAt); err != nil {
			return nil, err
		}
		req.ID = id.String()
		req.PatientID = pid.String()
		req.DateOfService = dos.Format(DateLayout)
		req.Status = Status(status)
		out = append(out, &req)
	}
	return out, rows.Err()
}
