package timeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/oncotracker/oncotracker/internal/platform/metric"
	"github.com/oncotracker/oncotracker/internal/platform/sheet"
)

// DatasetLoader returns a patient's stored canonical dataset.
type DatasetLoader interface {
	LoadDataset(ctx context.Context, patientID uuid.UUID) (sheet.Matrix, error)
}

type Service struct {
	loader DatasetLoader
	dict   *metric.Dictionary
}

func NewService(loader DatasetLoader, dict *metric.Dictionary) *Service {
	return &Service{loader: loader, dict: dict}
}

func (s *Service) ForPatient(ctx context.Context, patientID uuid.UUID) (*Timeline, error) {
	m, err := s.loader.LoadDataset(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return Build(m, s.dict), nil
}
