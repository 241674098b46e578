package model

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// PeriodType classifies an XBRL context.
type PeriodType string

const (
	PeriodInstant  PeriodType = "instant"
	PeriodDuration PeriodType = "duration"
	PeriodUnknown  PeriodType = "unknown"
)

// ValueKind discriminates the Value sum type.
type ValueKind int

const (
	ValueMissing ValueKind = iota
	ValueNumeric
	ValueText
)

// Value is a reported observation: numeric, textual, or absent.
type Value struct {
	Kind    ValueKind
	Numeric float64
	Text    string
}

// NumericValue builds a numeric Value.
func NumericValue(v float64) Value { return Value{Kind: ValueNumeric, Numeric: v} }

// TextValue builds a textual Value.
func TextValue(s string) Value { return Value{Kind: ValueText, Text: s} }

// IsNumeric reports whether the value carries a number.
func (v Value) IsNumeric() bool { return v.Kind == ValueNumeric }

// Fact is a single XBRL observation extracted from an instance document.
type Fact struct {
	ID              int64             `json:"id,omitempty"`
	AccessionNumber string            `json:"accession_number"`
	Namespace       string            `json:"namespace"`
	ConceptName     string            `json:"concept_name"`
	QualifiedName   string            `json:"qualified_name"`
	Value           Value             `json:"-"`
	Unit            string            `json:"unit,omitempty"`
	Decimals        string            `json:"decimals,omitempty"`
	PeriodType      PeriodType        `json:"period_type"`
	PeriodStart     *time.Time        `json:"period_start,omitempty"`
	PeriodEnd       *time.Time        `json:"period_end,omitempty"`
	Dimensions      map[string]string `json:"dimensions,omitempty"`
	IsCustom        bool              `json:"is_custom"`

	// Hierarchy/label enrichment from the linkbases, when parsed.
	Section       string `json:"section,omitempty"`
	ParentConcept string `json:"parent_concept,omitempty"`
	Depth         int    `json:"depth,omitempty"`
	Label         string `json:"label,omitempty"`
}

// DimensionsJSON renders the dimensions map as canonical JSON with sorted
// keys, so the same hypercube slice always serializes identically. Returns
// the empty string for a fact with no dimensions, which the store treats as
// NULL in the dedup key.
func (f Fact) DimensionsJSON() string {
	if len(f.Dimensions) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f.Dimensions))
	for k := range f.Dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(f.Dimensions[k])
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.String()
}

// ConceptCategory caches per-concept hierarchy and label metadata derived
// from presentation and label linkbases.
type ConceptCategory struct {
	ConceptName   string `json:"concept_name"`
	Section       string `json:"section,omitempty"`
	ParentConcept string `json:"parent_concept,omitempty"`
	Depth         int    `json:"depth"`
	Label         string `json:"label,omitempty"`
	DataType      string `json:"data_type,omitempty"`
}
