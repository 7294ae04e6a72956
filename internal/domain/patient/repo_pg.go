package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cohortdesk/cohortdesk/internal/domain/schema"
	"github.com/cohortdesk/cohortdesk/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const patientCols = `id, dataset_id, patient_key,
	date_of_service, location, mrn, first_name, last_name, reason_for_visit,
	points, percent, category, pca_confirmed, gleason_grade,
	age_group, race, family_history, genetic_mutation,
	raw, extra_fields, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.DatasetID, &p.PatientKey,
		&p.DateOfService, &p.Location, &p.MRN, &p.FirstName, &p.LastName, &p.ReasonForVisit,
		&p.Points, &p.Percent, &p.Category, &p.PCaConfirmed, &p.GleasonGrade,
		&p.AgeGroup, &p.Race, &p.FamilyHistory, &p.GeneticMutation,
		&p.Raw, &p.ExtraFields, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, dataset_id, patient_key,
			date_of_service, location, mrn, first_name, last_name, reason_for_visit,
			points, percent, category, pca_confirmed, gleason_grade,
			age_group, race, family_history, genetic_mutation,
			raw, extra_fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING created_at, updated_at`,
		p.ID, p.DatasetID, p.PatientKey,
		p.DateOfService, p.Location, p.MRN, p.FirstName, p.LastName, p.ReasonForVisit,
		p.Points, p.Percent, p.Category, p.PCaConfirmed, p.GleasonGrade,
		p.AgeGroup, p.Race, p.FamilyHistory, p.GeneticMutation,
		p.Raw, p.ExtraFields,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET
			patient_key = $2,
			date_of_service = $3, location = $4, mrn = $5, first_name = $6,
			last_name = $7, reason_for_visit = $8, points = $9, percent = $10,
			category = $11, pca_confirmed = $12, gleason_grade = $13,
			age_group = $14, race = $15, family_history = $16, genetic_mutation = $17,
			raw = $18, extra_fields = $19, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.PatientKey,
		p.DateOfService, p.Location, p.MRN, p.FirstName,
		p.LastName, p.ReasonForVisit, p.Points, p.Percent,
		p.Category, p.PCaConfirmed, p.GleasonGrade,
		p.AgeGroup, p.Race, p.FamilyHistory, p.GeneticMutation,
		p.Raw, p.ExtraFields,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("patient %s not found", p.ID)
	}
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *repoPG) GetByDatasetAndKey(ctx context.Context, datasetID uuid.UUID, key string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE dataset_id = $1 AND patient_key = $2`,
		datasetID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get patient by key: %w", err)
	}
	return p, nil
}

func (r *repoPG) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE mrn = $1 ORDER BY created_at LIMIT 1`, mrn))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get patient by mrn: %w", err)
	}
	return p, nil
}

func (r *repoPG) ListByDataset(ctx context.Context, datasetID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	return r.Search(ctx, datasetID, "", "", limit, offset)
}

func (r *repoPG) ListAllByDataset(ctx context.Context, datasetID uuid.UUID) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patients WHERE dataset_id = $1 ORDER BY created_at, id`,
		datasetID)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()
	return collectPatients(rows)
}

func (r *repoPG) ListAll(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patients ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()
	patients, err := collectPatients(rows)
	return patients, total, err
}

func (r *repoPG) Search(ctx context.Context, datasetID uuid.UUID, query, missingField string, limit, offset int) ([]*Patient, int, error) {
	where := `dataset_id = $1`
	args := []interface{}{datasetID}

	if query != "" {
		args = append(args, "%"+query+"%")
		where += fmt.Sprintf(` AND (mrn ILIKE $%d OR first_name ILIKE $%d OR last_name ILIKE $%d OR patient_key ILIKE $%d)`,
			len(args), len(args), len(args), len(args))
	}
	if missingField != "" {
		def, ok := schema.Lookup(missingField)
		if !ok {
			return nil, 0, fmt.Errorf("unknown field %q", missingField)
		}
		// Field names come from the fixed catalog, safe to interpolate.
		if def.Type == schema.TypeString {
			where += fmt.Sprintf(` AND (%s IS NULL OR %s = '')`, def.Field, def.Field)
		} else {
			where += fmt.Sprintf(` AND %s IS NULL`, def.Field)
		}
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patients WHERE `+where+
			fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()
	patients, err := collectPatients(rows)
	return patients, total, err
}

func (r *repoPG) CountByDataset(ctx context.Context, datasetID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patients WHERE dataset_id = $1`, datasetID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count patients: %w", err)
	}
	return n, nil
}

func collectPatients(rows pgx.Rows) ([]*Patient, error) {
	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
