package observation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository persists observations. ReplaceForPatient must be atomic: readers
// see either the old set or the new one, never a partially cleared set.
type Repository interface {
	ReplaceForPatient(ctx context.Context, patientID uuid.UUID, obs []*Observation) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter, limit, offset int) ([]*Observation, int, error)
	CountByPatient(ctx context.Context, patientID uuid.UUID) (int, error)
}

const obsCols = `id, patient_id, effective_datetime, category, code, code_display,
	status, value_quantity, value_string, unit, created_at`

var obsColumnNames = []string{
	"id", "patient_id", "effective_datetime", "category", "code", "code_display",
	"status", "value_quantity", "value_string", "unit", "created_at",
}

// dialect adapts the shared query builder to one driver.
type dialect struct {
	placeholder func(n int) string
	timeArg     func(t time.Time) interface{}
	idArg       func(id uuid.UUID) interface{}
}

var pgDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	timeArg:     func(t time.Time) interface{} { return t },
	idArg:       func(id uuid.UUID) interface{} { return id },
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	timeArg:     func(t time.Time) interface{} { return formatStoredTime(t) },
	idArg:       func(id uuid.UUID) interface{} { return id.String() },
}

// where renders the patient and filter conditions.
func (d dialect) where(patientID uuid.UUID, f ListFilter) (string, []interface{}) {
	args := []interface{}{d.idArg(patientID)}
	conds := []string{"patient_id = " + d.placeholder(1)}
	add := func(col string, v interface{}) {
		args = append(args, v)
		conds = append(conds, col+d.placeholder(len(args)))
	}
	if f.Code != "" {
		add("code = ", f.Code)
	}
	if f.Category != "" {
		add("category = ", f.Category)
	}
	if f.From != nil {
		add("effective_datetime >= ", d.timeArg(*f.From))
	}
	if f.To != nil {
		add("effective_datetime <= ", d.timeArg(*f.To))
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// page appends LIMIT/OFFSET placeholders to args.
func (d dialect) page(args []interface{}, limit, offset int) (string, []interface{}) {
	args = append(args, limit, offset)
	return fmt.Sprintf(" LIMIT %s OFFSET %s", d.placeholder(len(args)-1), d.placeholder(len(args))), args
}

// prepareInsert assigns IDs and creation time in place.
func prepareInsert(patientID uuid.UUID, obs []*Observation, now time.Time) {
	for _, o := range obs {
		o.ID = uuid.New()
		o.PatientID = patientID
		o.CreatedAt = now
		if o.Status == "" {
			o.Status = StatusFinal
		}
	}
}
