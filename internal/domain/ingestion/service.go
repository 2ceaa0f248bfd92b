package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/oncotracker/oncotracker/internal/platform/blobstore"
	"github.com/oncotracker/oncotracker/internal/platform/canonical"
	"github.com/oncotracker/oncotracker/internal/platform/mapping"
	"github.com/oncotracker/oncotracker/internal/platform/metric"
	"github.com/oncotracker/oncotracker/internal/platform/sheet"
)

const sheetName = "Sheet1"

// ObservationWriter swaps a patient's observation set for the extraction of m.
type ObservationWriter interface {
	ReplaceFromMatrix(ctx context.Context, patientID uuid.UUID, m sheet.Matrix) (int, error)
}

type Service struct {
	blobs        blobstore.BlobStore
	observations ObservationWriter
	analyzer     mapping.Analyzer
	dict         *metric.Dictionary
	transformer  *canonical.Transformer
	opts         Options
	logger       zerolog.Logger
}

// NewService wires the pipeline. analyzer may be nil, which disables the
// oracle path.
func NewService(blobs blobstore.BlobStore, observations ObservationWriter, analyzer mapping.Analyzer,
	dict *metric.Dictionary, opts Options, logger zerolog.Logger) *Service {
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = 60 * time.Second
	}
	if opts.AnalysisRetries < 0 {
		opts.AnalysisRetries = 0
	}
	if opts.SampleRows < 1 {
		opts.SampleRows = 3
	}
	return &Service{
		blobs:        blobs,
		observations: observations,
		analyzer:     analyzer,
		dict:         dict,
		transformer:  canonical.NewTransformer(dict),
		opts:         opts,
		logger:       logger.With().Str("component", "ingestion").Logger(),
	}
}

// DatasetKey names a patient's canonical workbook in the blob store.
func DatasetKey(patientID uuid.UUID) string {
	return patientID.String() + ".xlsx"
}

// Analyze decodes an upload, locates its header and reports whether it is
// already canonical. Non-canonical files are sent to the oracle when one is
// configured.
func (s *Service) Analyze(ctx context.Context, fileName string, content []byte) (*AnalyzeResult, error) {
	m, err := sheet.Decode(fileName, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUpload, err)
	}
	report := canonical.DetectMatrix(m)
	req := s.analysisRequest(m, report.HeaderRow)
	out := &AnalyzeResult{
		HeaderRow:  report.HeaderRow,
		Headers:    req.Headers,
		SampleRows: req.SampleRows,
		Detection:  report,
	}
	if report.Canonical || s.analyzer == nil {
		return out, nil
	}

	res, err := s.analyze(ctx, req)
	if err != nil {
		return nil, err
	}
	out.Analysis = res
	if cm, err := mapping.FromAnalysis(res, s.dict); err == nil {
		man := cm.Manual()
		out.Mapping = &man
	} else {
		s.logger.Warn().Err(err).Msg("analysis did not yield a usable mapping")
	}
	return out, nil
}

func (s *Service) analysisRequest(m sheet.Matrix, headerRow int) mapping.AnalysisRequest {
	req := mapping.AnalysisRequest{
		HeaderRow: headerRow,
		Headers:   m.Row(headerRow).Strings(),
	}
	for i := headerRow + 1; i < len(m) && len(req.SampleRows) < s.opts.SampleRows; i++ {
		if m[i].IsBlank() {
			continue
		}
		req.SampleRows = append(req.SampleRows, m[i].Strings())
	}
	return req
}

// analyze calls the oracle with a per-attempt timeout and bounded retries.
// A cancelled parent context stops immediately and nothing is applied.
func (s *Service) analyze(ctx context.Context, req mapping.AnalysisRequest) (*mapping.AnalysisResult, error) {
	if s.analyzer == nil {
		return nil, ErrOracleUnavailable
	}
	var lastErr error
	for attempt := 0; attempt <= s.opts.AnalysisRetries; attempt++ {
		actx, cancel := context.WithTimeout(ctx, s.opts.AnalysisTimeout)
		start := time.Now()
		res, err := s.analyzer.Analyze(actx, req)
		cancel()
		if err == nil {
			s.logger.Info().Int("attempt", attempt+1).Dur("elapsed", time.Since(start)).
				Int("metrics", len(res.MetricMappings)).Msg("column analysis complete")
			return pinHeaderRow(res, req.HeaderRow), nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", mapping.ErrAnalysisFailed, ctx.Err())
		}
		lastErr = err
		s.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("column analysis attempt failed")
	}
	if errors.Is(lastErr, mapping.ErrAnalysisFailed) {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: %w", mapping.ErrAnalysisFailed, lastErr)
}

// Ingest converts an upload to canonical form and stores it for the patient.
func (s *Service) Ingest(ctx context.Context, patientID uuid.UUID, up Upload) (*IngestResult, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient id is required", ErrInvalidUpload)
	}
	m, err := sheet.Decode(up.FileName, up.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUpload, err)
	}
	return s.ingestMatrix(ctx, patientID, m, up)
}

// SaveRows stores edited rows (JSON array of arrays or objects) as the
// patient's dataset.
func (s *Service) SaveRows(ctx context.Context, patientID uuid.UUID, rows []byte, patientName string) (*IngestResult, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient id is required", ErrInvalidUpload)
	}
	m, err := sheet.FromJSON(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUpload, err)
	}
	return s.ingestMatrix(ctx, patientID, m, Upload{PatientName: patientName})
}

func (s *Service) ingestMatrix(ctx context.Context, patientID uuid.UUID, m sheet.Matrix, up Upload) (*IngestResult, error) {
	log := s.logger.With().Str("patient_id", patientID.String()).Logger()

	res := &IngestResult{PatientID: patientID, Key: DatasetKey(patientID)}
	cm, err := s.toCanonical(ctx, m, up, res)
	if err != nil {
		log.Warn().Err(err).Str("source", string(res.Source)).Msg("ingestion aborted")
		return nil, err
	}
	res.Rows = len(cm) - canonical.DataStartRow
	log.Info().Str("source", string(res.Source)).Int("rows", res.Rows).
		Int("warnings", len(res.Warnings)).Msg("canonical dataset ready")

	n, err := s.persist(ctx, patientID, cm)
	res.Observations = n
	if err != nil {
		log.Error().Err(err).Msg("persist dataset")
		if errors.Is(err, ErrObservationsOutOfSync) {
			return res, err
		}
		return nil, err
	}
	log.Info().Int("observations", n).Msg("dataset stored")
	return res, nil
}

// toCanonical picks the conversion path: explicit mapping, detected canonical
// layout, then the oracle.
// pinHeaderRow keeps the locally located header row when the oracle reports
// a different one. The data start is dropped if it no longer follows the header.
func pinHeaderRow(res *mapping.AnalysisResult, headerRow int) *mapping.AnalysisResult {
	if res.Analysis.DetectedHeaderRow == headerRow {
		return res
	}
	out := *res
	out.Warnings = append(append([]string(nil), res.Warnings...), fmt.Sprintf(
		"analysis reported header row %d; using detected header row %d", res.Analysis.DetectedHeaderRow, headerRow))
	out.Analysis.DetectedHeaderRow = headerRow
	if out.Analysis.DetectedDataStartRow <= headerRow {
		out.Analysis.DetectedDataStartRow = 0
	}
	return &out
}

func (s *Service) toCanonical(ctx context.Context, m sheet.Matrix, up Upload, res *IngestResult) (sheet.Matrix, error) {
	if up.Mapping != nil {
		res.Source = SourceManual
		res.Mapping = up.Mapping
		cm, err := mapping.New(*up.Mapping, s.dict)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidUpload, err)
		}
		return s.transform(m, cm, up.PatientName, res)
	}

	report := canonical.DetectMatrix(m)
	res.Detection = &report
	s.logger.Debug().Bool("canonical", report.Canonical).Int("header_row", report.HeaderRow).
		Int("fixed_matches", report.FixedMatches).Int("canonical_metrics", report.CanonicalMetrics).
		Strs("invalid_labels", report.InvalidLabels).Bool("units_marker", report.UnitsMarker).
		Msg("format detection")

	if report.Canonical || up.AssumeCanonical {
		res.Source = SourceCanonical
		return alignCanonical(m, report.HeaderRow)
	}

	if s.analyzer == nil {
		return nil, fmt.Errorf("%w: file is not canonical and no mapping was supplied", ErrNoCanonicalData)
	}
	res.Source = SourceOracle
	analysis, err := s.analyze(ctx, s.analysisRequest(m, report.HeaderRow))
	if err != nil {
		return nil, err
	}
	cm, err := mapping.FromAnalysis(analysis, s.dict)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoCanonicalData, err)
	}
	man := cm.Manual()
	res.Mapping = &man
	res.Warnings = append(res.Warnings, analysis.Warnings...)
	return s.transform(m, cm, up.PatientName, res)
}

func (s *Service) transform(m sheet.Matrix, cm *mapping.ColumnMapping, patientName string, res *IngestResult) (sheet.Matrix, error) {
	tr := s.transformer.Transform(m, cm, patientName)
	res.Warnings = append(res.Warnings, tr.Warnings...)
	if !tr.Success {
		return nil, fmt.Errorf("%w: %w", ErrNoCanonicalData, tr.Error())
	}
	return tr.Data, nil
}

// alignCanonical drops leading rows so the header sits at canonical.HeaderRow.
func alignCanonical(m sheet.Matrix, headerRow int) (sheet.Matrix, error) {
	if headerRow > canonical.HeaderRow && headerRow < len(m) {
		m = m[headerRow-canonical.HeaderRow:]
	}
	if len(m) <= canonical.HeaderRow {
		return nil, fmt.Errorf("%w: sheet has no header block", ErrNoCanonicalData)
	}
	return m, nil
}

// persist writes the workbook first; the file is authoritative. Observation
// replace failures leave the file in place and report ErrObservationsOutOfSync.
func (s *Service) persist(ctx context.Context, patientID uuid.UUID, m sheet.Matrix) (int, error) {
	content, err := sheet.WriteXLSX(m, sheetName)
	if err != nil {
		return 0, fmt.Errorf("serialize dataset: %w", err)
	}
	if _, err := s.blobs.Put(ctx, DatasetKey(patientID), content); err != nil {
		return 0, fmt.Errorf("store dataset: %w", err)
	}
	n, err := s.observations.ReplaceFromMatrix(ctx, patientID, m)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrObservationsOutOfSync, err)
	}
	return n, nil
}

// CreateTemplate stores an empty canonical workbook for a patient that has no
// dataset yet.
func (s *Service) CreateTemplate(ctx context.Context, patientID uuid.UUID, patientName string) (*IngestResult, error) {
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient id is required", ErrInvalidUpload)
	}
	_, err := s.blobs.Stat(ctx, DatasetKey(patientID))
	if err == nil {
		return nil, ErrDatasetExists
	}
	if !errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, err
	}

	m := canonical.Template(patientName, s.dict)
	res := &IngestResult{PatientID: patientID, Key: DatasetKey(patientID), Source: SourceTemplate}
	n, err := s.persist(ctx, patientID, m)
	res.Observations = n
	if errors.Is(err, ErrObservationsOutOfSync) {
		return res, err
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// LoadDataset reads the stored canonical workbook.
func (s *Service) LoadDataset(ctx context.Context, patientID uuid.UUID) (sheet.Matrix, error) {
	content, err := s.Download(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return sheet.ReadXLSX(content)
}

func (s *Service) Download(ctx context.Context, patientID uuid.UUID) ([]byte, error) {
	content, _, err := s.blobs.Get(ctx, DatasetKey(patientID))
	if err != nil {
		return nil, fmt.Errorf("load dataset for %s: %w", patientID, err)
	}
	return content, nil
}

// Reconcile rebuilds a patient's observations from the stored workbook.
func (s *Service) Reconcile(ctx context.Context, patientID uuid.UUID) (int, error) {
	m, err := s.LoadDataset(ctx, patientID)
	if err != nil {
		return 0, err
	}
	n, err := s.observations.ReplaceFromMatrix(ctx, patientID, m)
	if err != nil {
		return 0, fmt.Errorf("reconcile observations: %w", err)
	}
	s.logger.Info().Str("patient_id", patientID.String()).Int("observations", n).Msg("observations reconciled")
	return n, nil
}
