// Package model defines the domain types shared across the pipeline.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Company is a filer on the public roster, keyed by its zero-padded CIK.
type Company struct {
	CIK            string `json:"cik" yaml:"cik"`
	Ticker         string `json:"ticker,omitempty" yaml:"ticker"`
	Name           string `json:"name" yaml:"name"`
	SIC            string `json:"sic,omitempty" yaml:"sic"`
	SICDescription string `json:"sic_description,omitempty" yaml:"sic_description"`
	StateOfInc     string `json:"state_of_incorporation,omitempty" yaml:"state_of_incorporation"`
	FiscalYearEnd  string `json:"fiscal_year_end,omitempty" yaml:"fiscal_year_end"`
	EIN            string `json:"ein,omitempty" yaml:"ein"`
}

// PadCIK normalizes a CIK to the canonical 10-digit zero-padded form.
// Accepts either a bare integer string or an already-padded value.
func PadCIK(cik string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(cik), "0")
	if trimmed == "" {
		trimmed = "0"
	}
	return fmt.Sprintf("%010s", trimmed)
}

// CIKNumber returns the CIK as an integer, as used in archive document URLs.
func CIKNumber(cik string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimLeft(strings.TrimSpace(cik), "0"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("model: invalid cik %q: %w", cik, err)
	}
	return n, nil
}
