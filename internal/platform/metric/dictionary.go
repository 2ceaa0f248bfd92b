// Package metric is the dictionary of clinical metrics the engine recognizes.
// Lookups are exact after trimming surrounding whitespace: no case folding and
// no full-width/half-width folding.
package metric

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type Category string

const (
	CategoryMolecular  Category = "MOLECULAR"
	CategoryLaboratory Category = "LABORATORY"
	CategoryOther      Category = "OTHER"
)

var validCategories = map[Category]bool{
	CategoryMolecular:  true,
	CategoryLaboratory: true,
	CategoryOther:      true,
}

type Definition struct {
	Code      string   `yaml:"code" json:"code"`
	Header    string   `yaml:"header" json:"header"`
	English   string   `yaml:"english" json:"english"`
	Chinese   string   `yaml:"chinese" json:"chinese"`
	Aliases   []string `yaml:"aliases" json:"aliases,omitempty"`
	Category  Category `yaml:"category" json:"category"`
	Unit      string   `yaml:"unit" json:"unit,omitempty"`
	Threshold string   `yaml:"threshold" json:"threshold,omitempty"`
}

// Display is the preferred human label: Chinese name, else English, else header.
func (d *Definition) Display() string {
	switch {
	case d.Chinese != "":
		return d.Chinese
	case d.English != "":
		return d.English
	default:
		return d.Header
	}
}

// UnitHint is the text placed in a canonical units row above this metric,
// e.g. "ng/mL <5".
func (d *Definition) UnitHint() string {
	return strings.TrimSpace(d.Unit + " " + d.Threshold)
}

// Dictionary is immutable after construction and safe for concurrent reads.
type Dictionary struct {
	defs     []*Definition
	byName   map[string]*Definition
	byCode   map[string]*Definition
	template []string
}

type dictionaryFile struct {
	Metrics  []*Definition `yaml:"metrics"`
	Template []string      `yaml:"template"`
}

//go:embed metrics.yaml
var builtin []byte

var (
	defaultOnce sync.Once
	defaultDict *Dictionary
)

// Default returns the embedded dictionary, parsed once per process.
func Default() *Dictionary {
	defaultOnce.Do(func() {
		d, err := Parse(builtin)
		if err != nil {
			panic(fmt.Sprintf("embedded metric dictionary: %v", err))
		}
		defaultDict = d
	})
	return defaultDict
}

// Load reads a dictionary from path, or returns the embedded one when path is
// empty.
func Load(path string) (*Dictionary, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metric dictionary: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Dictionary, error) {
	var f dictionaryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse metric dictionary: %w", err)
	}
	if len(f.Metrics) == 0 {
		return nil, fmt.Errorf("metric dictionary has no metrics")
	}

	d := &Dictionary{
		byName: make(map[string]*Definition),
		byCode: make(map[string]*Definition),
	}
	for i, def := range f.Metrics {
		def.Code = strings.TrimSpace(def.Code)
		def.Header = strings.TrimSpace(def.Header)
		if def.Code == "" || def.Header == "" {
			return nil, fmt.Errorf("metric %d: code and header are required", i)
		}
		if !validCategories[def.Category] {
			return nil, fmt.Errorf("metric %s: invalid category %q", def.Code, def.Category)
		}
		if _, dup := d.byCode[def.Code]; dup {
			return nil, fmt.Errorf("metric %s: duplicate code", def.Code)
		}
		d.byCode[def.Code] = def
		d.defs = append(d.defs, def)

		names := append([]string{def.Code, def.Header, def.English, def.Chinese}, def.Aliases...)
		for _, n := range names {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			if other, taken := d.byName[n]; taken && other != def {
				return nil, fmt.Errorf("metric name %q used by both %s and %s", n, other.Code, def.Code)
			}
			d.byName[n] = def
		}
	}

	for _, code := range f.Template {
		if _, ok := d.byCode[code]; !ok {
			return nil, fmt.Errorf("template metric %q is not defined", code)
		}
		d.template = append(d.template, code)
	}
	return d, nil
}

// Lookup finds the definition for a raw column label.
func (d *Dictionary) Lookup(raw string) (*Definition, bool) {
	def, ok := d.byName[strings.TrimSpace(raw)]
	return def, ok
}

// ByCode finds a definition by its canonical code.
func (d *Dictionary) ByCode(code string) (*Definition, bool) {
	def, ok := d.byCode[code]
	return def, ok
}

// CanonicalCode never fails: unknown labels come back trimmed.
func (d *Dictionary) CanonicalCode(raw string) string {
	if def, ok := d.Lookup(raw); ok {
		return def.Code
	}
	return strings.TrimSpace(raw)
}

func (d *Dictionary) IsKnown(raw string) bool {
	_, ok := d.Lookup(raw)
	return ok
}

// Definitions returns every definition in file order.
func (d *Dictionary) Definitions() []*Definition {
	return append([]*Definition(nil), d.defs...)
}

// Names lists every accepted label, sorted. Used to brief the column analyzer.
func (d *Dictionary) Names() []string {
	out := make([]string, 0, len(d.byName))
	for n := range d.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// TemplateMetrics lists the definitions used for new canonical templates.
func (d *Dictionary) TemplateMetrics() []*Definition {
	out := make([]*Definition, 0, len(d.template))
	for _, code := range d.template {
		out = append(out, d.byCode[code])
	}
	return out
}
