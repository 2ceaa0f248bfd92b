package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/oncotracker/oncotracker/internal/platform/metric"
)

var ErrAnalysisFailed = errors.New("column analysis failed")

const analyzerInstruction = `You classify the columns of oncology monitoring spreadsheets.
Each sheet has one date column, optional treatment columns (phase, cycle, previous cycle,
scheme, event, scheme detail) and any number of measurement columns.
Map measurement columns to the canonical metric names provided. When a column is a
measurement with no canonical match, keep its own name and set isCustomMetric to true.
Answer with a single JSON object and nothing else.`

const responseShape = `{
  "thought_process": string,
  "analysis": {"detectedHeaderRow": int, "detectedDataStartRow": int, "totalColumns": int,
               "dataQuality": "good" | "acceptable" | "poor"},
  "dateColumn": {"sourceIndex": int, "sourceName": string, "confidence": number, "reasoning": string},
  "fixedColumnMappings": {
    "phase" | "cycle" | "prevCycle" | "scheme" | "event" | "schemeDetail":
      {"sourceIndex": int, "sourceName": string, "confidence": number}
  },
  "metricMappings": {
    "<source header>": {"sourceIndex": int, "canonicalName": string, "category": string,
                        "confidence": number, "reasoning": string, "isCustomMetric": bool}
  },
  "unmappedColumns": [{"index": int, "name": string, "reason": string}],
  "warnings": [string],
  "transformationNotes": string
}`

// generateFunc sends one prompt and returns the model's text answer.
type generateFunc func(ctx context.Context, system, prompt string) (string, error)

// GenAIAnalyzer asks a Gemini model to classify columns. It makes exactly one
// call per Analyze; timeouts and retries belong to the caller.
type GenAIAnalyzer struct {
	generate generateFunc
	dict     *metric.Dictionary
}

func NewGenAIAnalyzer(ctx context.Context, apiKey, model string, dict *metric.Dictionary) (*GenAIAnalyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create GenAI client: %w", err)
	}

	temperature := float32(0.1)
	generate := func(ctx context.Context, system, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, model,
			[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
			&genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
				Temperature:       &temperature,
				ResponseMIMEType:  "application/json",
			},
		)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}

	return &GenAIAnalyzer{generate: generate, dict: dict}, nil
}

func (a *GenAIAnalyzer) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	text, err := a.generate(ctx, analyzerInstruction, buildPrompt(req, a.dict))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	res, err := parseAnalysis(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	return res, nil
}

func buildPrompt(req AnalysisRequest, dict *metric.Dictionary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Header row index: %d\n\nColumns:\n", req.HeaderRow)
	for i, h := range req.Headers {
		fmt.Fprintf(&b, "  [%d] %s\n", i, h)
	}
	b.WriteString("\nSample rows:\n")
	for _, row := range req.SampleRows {
		b.WriteString("  ")
		b.WriteString(strings.Join(row, " | "))
		b.WriteString("\n")
	}
	b.WriteString("\nCanonical metrics (code: names):\n")
	for _, def := range dict.Definitions() {
		names := []string{def.Header}
		for _, n := range append([]string{def.English, def.Chinese}, def.Aliases...) {
			if n != "" && n != def.Header {
				names = append(names, n)
			}
		}
		fmt.Fprintf(&b, "  %s: %s\n", def.Code, strings.Join(names, ", "))
	}
	b.WriteString("\nRespond with JSON shaped as:\n")
	b.WriteString(responseShape)
	return b.String()
}

// parseAnalysis tolerates a fenced code block around the JSON.
func parseAnalysis(text string) (*AnalysisResult, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	if text == "" {
		return nil, errors.New("empty response")
	}
	var res AnalysisResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &res, nil
}
