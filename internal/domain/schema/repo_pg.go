package schema

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

type customFieldRepoPG struct {
	pool *pgxpool.Pool
}

func NewCustomFieldRepo(pool *pgxpool.Pool) CustomFieldRepository {
	return &customFieldRepoPG{pool: pool}
}

func (r *customFieldRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *customFieldRepoPG) Create(ctx context.Context, f *CustomField) error {
	f.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO custom_fields (id, name, default_value)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		f.ID, f.Name, f.DefaultValue,
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert custom field: %w", err)
	}
	return nil
}

func (r *customFieldRepoPG) GetByName(ctx context.Context, name string) (*CustomField, error) {
	var f CustomField
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, default_value, created_at
		FROM custom_fields WHERE name = $1`, name,
	).Scan(&f.ID, &f.Name, &f.DefaultValue, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get custom field: %w", err)
	}
	return &f, nil
}

func (r *customFieldRepoPG) List(ctx context.Context) ([]*CustomField, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, name, default_value, created_at
		FROM custom_fields ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list custom fields: %w", err)
	}
	defer rows.Close()

	var fields []*CustomField
	for rows.Next() {
		var f CustomField
		if err := rows.Scan(&f.ID, &f.Name, &f.DefaultValue, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan custom field: %w", err)
		}
		fields = append(fields, &f)
	}
	return fields, rows.Err()
}

func (r *customFieldRepoPG) Delete(ctx context.Context, name string) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM custom_fields WHERE name = $1`, name)
	return err
}

func (r *customFieldRepoPG) ApplyDefault(ctx context.Context, name string, value *string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients
		SET extra_fields = COALESCE(extra_fields, '{}'::jsonb) || jsonb_build_object($1::text, $2::text),
		    updated_at = NOW()
		WHERE NOT (COALESCE(extra_fields, '{}'::jsonb) ? $1)`,
		name, value,
	)
	if err != nil {
		return 0, fmt.Errorf("apply default for %q: %w", name, err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *customFieldRepoPG) ClearFromPatients(ctx context.Context, name string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients
		SET extra_fields = extra_fields - $1, updated_at = NOW()
		WHERE extra_fields ? $1`,
		name,
	)
	if err != nil {
		return 0, fmt.Errorf("clear %q from patients: %w", name, err)
	}
	return int(tag.RowsAffected()), nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}
