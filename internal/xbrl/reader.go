package xbrl

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/model"
)

// ParseResult is the outcome of parsing one filing's XBRL documents.
type ParseResult struct {
	AccessionNumber string
	Success         bool
	Facts           []model.Fact
	PeriodEnd       *time.Time
	ParseTimeMs     int64
	Error           string
}

// ParseFiling parses the XBRL instance in a filing directory. With allFacts,
// every fact is returned with linkbase enrichment; otherwise only facts from
// standard namespaces survive and linkbases are skipped. Failures are
// reported in the result rather than returned, so one bad filing never stops
// a batch.
func ParseFiling(dir, accession string, allFacts bool) *ParseResult {
	start := time.Now()
	res := &ParseResult{AccessionNumber: accession}
	log := zap.L().With(zap.String("accession", accession))

	instancePath, err := FindInstanceDocument(dir)
	if err != nil {
		res.Error = err.Error()
		res.ParseTimeMs = time.Since(start).Milliseconds()
		return res
	}

	facts, err := ParseInstance(instancePath, accession)
	if err != nil {
		res.Error = err.Error()
		res.ParseTimeMs = time.Since(start).Milliseconds()
		return res
	}

	if !allFacts {
		kept := facts[:0]
		for _, f := range facts {
			if !f.IsCustom {
				kept = append(kept, f)
			}
		}
		facts = kept
	} else if pre, lab := LinkbasePaths(dir); pre != "" || lab != "" {
		var info map[string]*ConceptInfo
		var labels map[string]string
		if pre != "" {
			if info, err = ParsePresentationLinkbase(pre); err != nil {
				log.Warn("presentation linkbase parse failed", zap.Error(err))
				info = nil
			}
		}
		if lab != "" {
			if labels, err = ParseLabelLinkbase(lab); err != nil {
				log.Warn("label linkbase parse failed", zap.Error(err))
				labels = nil
			}
		}
		EnrichFacts(facts, info, labels)
	}

	res.Facts = facts
	res.PeriodEnd = FilingPeriodEnd(facts)
	res.Success = true
	res.ParseTimeMs = time.Since(start).Milliseconds()

	log.Debug("filing parsed",
		zap.Int("facts", len(facts)),
		zap.Int64("ms", res.ParseTimeMs))
	return res
}

// FilingPeriodEnd determines the filing's fiscal period end. The
// dei:DocumentPeriodEndDate fact is authoritative; when absent, the most
// common fact period_end is used.
func FilingPeriodEnd(facts []model.Fact) *time.Time {
	for _, f := range facts {
		if f.QualifiedName != "dei:DocumentPeriodEndDate" {
			continue
		}
		if f.Value.Kind == model.ValueText {
			if d, err := time.Parse("2006-01-02", f.Value.Text); err == nil {
				return &d
			}
		}
	}

	counts := map[time.Time]int{}
	for _, f := range facts {
		if f.PeriodEnd != nil {
			counts[*f.PeriodEnd]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	dates := make([]time.Time, 0, len(counts))
	for d := range counts {
		dates = append(dates, d)
	}
	// Ties break toward the later date.
	sort.Slice(dates, func(i, j int) bool {
		if counts[dates[i]] != counts[dates[j]] {
			return counts[dates[i]] > counts[dates[j]]
		}
		return dates[i].After(dates[j])
	})
	return &dates[0]
}
