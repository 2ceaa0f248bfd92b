package observation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncotracker/oncotracker/internal/platform/db"
)

func newSQLiteRepo(t *testing.T) *SQLiteRepo {
	t.Helper()
	ctx := context.Background()
	sqlDB, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "obs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	repo := NewRepoSQLite(sqlDB)
	require.NoError(t, repo.EnsureSchema(ctx))
	return repo
}

func sampleObs(code string, day int, v *float64) *Observation {
	return &Observation{
		EffectiveDatetime: time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Category:          CategoryTumorMarker,
		Code:              code,
		CodeDisplay:       code,
		ValueQuantity:     v,
		ValueString:       "x",
	}
}

func TestSQLiteRepo_ReplaceAndList(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	pid := uuid.New()
	three := 3.0
	unit := "U/mL"

	withUnit := sampleObs("CA125", 2, &three)
	withUnit.Unit = &unit
	require.NoError(t, repo.ReplaceForPatient(ctx, pid, []*Observation{
		sampleObs("CEA", 3, nil),
		withUnit,
	}))

	items, total, err := repo.ListByPatient(ctx, pid, ListFilter{}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	assert.Equal(t, "CA125", items[0].Code, "ordered by date")
	assert.Equal(t, pid, items[0].PatientID)
	require.NotNil(t, items[0].ValueQuantity)
	assert.Equal(t, 3.0, *items[0].ValueQuantity)
	require.NotNil(t, items[0].Unit)
	assert.Equal(t, "U/mL", *items[0].Unit)
	assert.Nil(t, items[1].ValueQuantity)
	assert.Nil(t, items[1].Unit)
	assert.Equal(t, StatusFinal, items[1].Status)
	assert.NotEqual(t, uuid.Nil, items[1].ID)
}

func TestSQLiteRepo_ReplaceIsTotal(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	pid, other := uuid.New(), uuid.New()

	require.NoError(t, repo.ReplaceForPatient(ctx, pid, []*Observation{sampleObs("CEA", 1, nil), sampleObs("AFP", 2, nil)}))
	require.NoError(t, repo.ReplaceForPatient(ctx, other, []*Observation{sampleObs("CEA", 1, nil)}))
	require.NoError(t, repo.ReplaceForPatient(ctx, pid, []*Observation{sampleObs("HE4", 5, nil)}))

	items, total, err := repo.ListByPatient(ctx, pid, ListFilter{}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "HE4", items[0].Code)

	n, err := repo.CountByPatient(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// An empty replace clears the patient.
	require.NoError(t, repo.ReplaceForPatient(ctx, pid, nil))
	n, err = repo.CountByPatient(ctx, pid)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteRepo_FiltersAndPaging(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	pid := uuid.New()

	var obs []*Observation
	for day := 1; day <= 5; day++ {
		obs = append(obs, sampleObs("CEA", day, nil))
	}
	lab := sampleObs("WBC", 3, nil)
	lab.Category = CategoryLaboratory
	obs = append(obs, lab)
	require.NoError(t, repo.ReplaceForPatient(ctx, pid, obs))

	_, total, err := repo.ListByPatient(ctx, pid, ListFilter{Code: "CEA"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	_, total, err = repo.ListByPatient(ctx, pid, ListFilter{Category: CategoryLaboratory}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	items, total, err := repo.ListByPatient(ctx, pid, ListFilter{Code: "CEA", From: &from, To: &to}, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, 3, items[0].EffectiveDatetime.Day())
}
