package observation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) scan(row pgx.Row) (*Observation, error) {
	var o Observation
	err := row.Scan(&o.ID, &o.PatientID, &o.EffectiveDatetime, &o.Category, &o.Code, &o.CodeDisplay,
		&o.Status, &o.ValueQuantity, &o.ValueString, &o.Unit, &o.CreatedAt)
	return &o, err
}

// ReplaceForPatient deletes and bulk-copies inside one transaction.
func (r *repoPG) ReplaceForPatient(ctx context.Context, patientID uuid.UUID, obs []*Observation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM observations WHERE patient_id = $1`, patientID); err != nil {
		return fmt.Errorf("clear observations: %w", err)
	}

	prepareInsert(patientID, obs, time.Now().UTC())
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"observations"}, obsColumnNames,
		pgx.CopyFromSlice(len(obs), func(i int) ([]interface{}, error) {
			o := obs[i]
			return []interface{}{o.ID, o.PatientID, o.EffectiveDatetime, o.Category, o.Code, o.CodeDisplay,
				o.Status, o.ValueQuantity, o.ValueString, o.Unit, o.CreatedAt}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy observations: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter, limit, offset int) ([]*Observation, int, error) {
	where, args := pgDialect.where(patientID, f)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM observations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, args := pgDialect.page(args, limit, offset)
	rows, err := r.pool.Query(ctx, `SELECT `+obsCols+` FROM observations`+where+
		` ORDER BY effective_datetime, code`+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Observation
	for rows.Next() {
		o, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}

func (r *repoPG) CountByPatient(ctx context.Context, patientID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM observations WHERE patient_id = $1`, patientID).Scan(&n)
	return n, err
}
