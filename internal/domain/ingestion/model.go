package ingestion

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/oncotracker/oncotracker/internal/platform/canonical"
	"github.com/oncotracker/oncotracker/internal/platform/mapping"
)

var (
	// ErrNoCanonicalData means neither detection nor a mapping produced a
	// canonical sheet. Nothing was written.
	ErrNoCanonicalData = errors.New("no canonical data could be produced")

	// ErrObservationsOutOfSync means the dataset file was stored but the
	// observation replace failed. Reconcile rebuilds observations from the file.
	ErrObservationsOutOfSync = errors.New("dataset stored but observations are out of sync")

	// ErrInvalidUpload covers unreadable files and malformed requests.
	ErrInvalidUpload = errors.New("invalid upload")

	ErrOracleUnavailable = errors.New("column analysis is not configured")
	ErrDatasetExists     = errors.New("patient already has a dataset")
)

// Source records how the canonical sheet was obtained.
type Source string

const (
	SourceCanonical Source = "canonical"
	SourceManual    Source = "manual"
	SourceOracle    Source = "oracle"
	SourceTemplate  Source = "template"
)

// Upload is one file to ingest for a patient.
type Upload struct {
	FileName    string
	Content     []byte
	PatientName string
	// Mapping, when set, skips detection and the oracle.
	Mapping *mapping.Manual
	// AssumeCanonical treats the file as canonical even if detection disagrees.
	AssumeCanonical bool
}

type IngestResult struct {
	PatientID    uuid.UUID         `json:"patient_id"`
	Key          string            `json:"key"`
	Source       Source            `json:"source"`
	Rows         int               `json:"rows"`
	Observations int               `json:"observations"`
	Detection    *canonical.Report `json:"detection,omitempty"`
	Mapping      *mapping.Manual   `json:"mapping,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
}

// AnalyzeResult is the parse-and-map preview of an upload.
type AnalyzeResult struct {
	HeaderRow  int                     `json:"header_row"`
	Headers    []string                `json:"headers"`
	SampleRows [][]string              `json:"sample_rows"`
	Detection  canonical.Report        `json:"detection"`
	Analysis   *mapping.AnalysisResult `json:"analysis,omitempty"`
	Mapping    *mapping.Manual         `json:"mapping,omitempty"`
}

// Options tune the oracle call.
type Options struct {
	AnalysisTimeout time.Duration
	AnalysisRetries int
	SampleRows      int
}
