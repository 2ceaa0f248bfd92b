package observation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/oncotracker/oncotracker/internal/platform/metric"
	"github.com/oncotracker/oncotracker/internal/platform/sheet"
)

var ErrInvalidFilter = errors.New("invalid observation filter")

var validCategories = map[string]bool{
	CategoryTumorMarker: true,
	CategoryLaboratory:  true,
}

type Service struct {
	repo Repository
	dict *metric.Dictionary
}

func NewService(repo Repository, dict *metric.Dictionary) *Service {
	return &Service{repo: repo, dict: dict}
}

// ReplaceFromMatrix extracts m and swaps it in as the patient's full
// observation set. It returns how many observations were stored.
func (s *Service) ReplaceFromMatrix(ctx context.Context, patientID uuid.UUID, m sheet.Matrix) (int, error) {
	if patientID == uuid.Nil {
		return 0, fmt.Errorf("patient id is required")
	}
	obs := Extract(m, patientID, s.dict)
	if err := s.repo.ReplaceForPatient(ctx, patientID, obs); err != nil {
		return 0, err
	}
	return len(obs), nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, f ListFilter, limit, offset int) ([]*Observation, int, error) {
	if f.Category != "" && !validCategories[f.Category] {
		return nil, 0, fmt.Errorf("%w: unknown category %q", ErrInvalidFilter, f.Category)
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, 0, fmt.Errorf("%w: to %s is before from %s", ErrInvalidFilter, f.To.Format("2006-01-02"), f.From.Format("2006-01-02"))
	}
	if f.Code != "" {
		f.Code = s.dict.CanonicalCode(f.Code)
	}
	return s.repo.ListByPatient(ctx, patientID, f, limit, offset)
}

func (s *Service) CountByPatient(ctx context.Context, patientID uuid.UUID) (int, error) {
	return s.repo.CountByPatient(ctx, patientID)
}
