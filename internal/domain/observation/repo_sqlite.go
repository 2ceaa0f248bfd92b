package observation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS observations (
    id                 TEXT PRIMARY KEY,
    patient_id         TEXT NOT NULL,
    effective_datetime TEXT NOT NULL,
    category           TEXT NOT NULL,
    code               TEXT NOT NULL,
    code_display       TEXT NOT NULL,
    status             TEXT NOT NULL DEFAULT 'final',
    value_quantity     REAL,
    value_string       TEXT NOT NULL DEFAULT '',
    unit               TEXT,
    created_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_patient_date ON observations (patient_id, effective_datetime);
CREATE INDEX IF NOT EXISTS idx_observations_patient_code ON observations (patient_id, code);
`

// storedTimeLayout sorts lexically in time order, so range filters work on TEXT.
const storedTimeLayout = "2006-01-02T15:04:05.000Z"

func formatStoredTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

// SQLiteRepo is the single-file Repository used when STORE_DRIVER=sqlite.
// Call EnsureSchema once before use.
type SQLiteRepo struct{ db *sql.DB }

func NewRepoSQLite(db *sql.DB) *SQLiteRepo {
	return &SQLiteRepo{db: db}
}

func (r *SQLiteRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create observations schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SQLiteRepo) scan(row rowScanner) (*Observation, error) {
	var (
		o                    Observation
		id, patientID        string
		effective, createdAt string
		quantity             sql.NullFloat64
		unit                 sql.NullString
	)
	if err := row.Scan(&id, &patientID, &effective, &o.Category, &o.Code, &o.CodeDisplay,
		&o.Status, &quantity, &o.ValueString, &unit, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if o.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("observation id %q: %w", id, err)
	}
	if o.PatientID, err = uuid.Parse(patientID); err != nil {
		return nil, fmt.Errorf("observation patient_id %q: %w", patientID, err)
	}
	if o.EffectiveDatetime, err = time.Parse(storedTimeLayout, effective); err != nil {
		return nil, fmt.Errorf("observation effective_datetime %q: %w", effective, err)
	}
	if o.CreatedAt, err = time.Parse(storedTimeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("observation created_at %q: %w", createdAt, err)
	}
	if quantity.Valid {
		v := quantity.Float64
		o.ValueQuantity = &v
	}
	if unit.Valid {
		u := unit.String
		o.Unit = &u
	}
	return &o, nil
}

func (r *SQLiteRepo) ReplaceForPatient(ctx context.Context, patientID uuid.UUID, obs []*Observation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM observations WHERE patient_id = ?`, patientID.String()); err != nil {
		return fmt.Errorf("clear observations: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO observations (`+obsCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	prepareInsert(patientID, obs, time.Now().UTC())
	for _, o := range obs {
		var unit interface{}
		if o.Unit != nil {
			unit = *o.Unit
		}
		var quantity interface{}
		if o.ValueQuantity != nil {
			quantity = *o.ValueQuantity
		}
		if _, err := stmt.ExecContext(ctx,
			o.ID.String(), o.PatientID.String(), formatStoredTime(o.EffectiveDatetime),
			o.Category, o.Code, o.CodeDisplay, o.Status, quantity, o.ValueString, unit,
			formatStoredTime(o.CreatedAt)); err != nil {
			return fmt.Errorf("insert observation %s: %w", o.Code, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepo) ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter, limit, offset int) ([]*Observation, int, error) {
	where, args := sqliteDialect.where(patientID, f)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM observations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, args := sqliteDialect.page(args, limit, offset)
	rows, err := r.db.QueryContext(ctx, `SELECT `+obsCols+` FROM observations`+where+
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

func (r *SQLiteRepo) CountByPatient(ctx context.Context, patientID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM observations WHERE patient_id = ?`, patientID.String()).Scan(&n)
	return n, err
}
