package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

func (r *repoPG) Create(ctx context.Context, d *Dataset) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.ColumnMap == nil {
		d.ColumnMap = map[string]string{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO datasets (id, name, source_filename, stored_file_id, data_type, column_map)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		d.ID, d.Name, d.SourceFilename, d.StoredFileID, d.DataType, d.ColumnMap,
	).Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}
	return nil
}

func (r *repoPG) Update(ctx context.Context, d *Dataset) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE datasets
		SET name = $2, data_type = $3, column_map = $4
		WHERE id = $1`,
		d.ID, d.Name, d.DataType, d.ColumnMap,
	)
	if err != nil {
		return fmt.Errorf("update dataset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dataset %s not found", d.ID)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Dataset, error) {
	var d Dataset
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT d.id, d.name, d.source_filename, d.stored_file_id, d.data_type, d.column_map, d.created_at,
			(SELECT COUNT(*) FROM patients p WHERE p.dataset_id = d.id)
		FROM datasets d WHERE d.id = $1`, id,
	).Scan(&d.ID, &d.Name, &d.SourceFilename, &d.StoredFileID, &d.DataType, &d.ColumnMap, &d.CreatedAt, &d.PatientCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset: %w", err)
	}
	return &d, nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Dataset, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM datasets`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count datasets: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT d.id, d.name, d.source_filename, d.stored_file_id, d.data_type, d.column_map, d.created_at,
			(SELECT COUNT(*) FROM patients p WHERE p.dataset_id = d.id)
		FROM datasets d
		ORDER BY d.created_at DESC, d.id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var datasets []*Dataset
	for rows.Next() {
		var d Dataset
		if err := rows.Scan(&d.ID, &d.Name, &d.SourceFilename, &d.StoredFileID, &d.DataType, &d.ColumnMap, &d.CreatedAt, &d.PatientCount); err != nil {
			return nil, 0, fmt.Errorf("scan dataset: %w", err)
		}
		datasets = append(datasets, &d)
	}
	return datasets, total, rows.Err()
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM datasets WHERE id = $1`, id)
	return err
}

func (r *repoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM datasets WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("dataset exists: %w", err)
	}
	return exists, nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
