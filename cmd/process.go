package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/model"
	"github.com/sells-group/finloom/internal/sections"
	"github.com/sells-group/finloom/internal/store"
	"github.com/sells-group/finloom/internal/xbrl"
)

var (
	processKind     string
	processAllFacts bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Extract XBRL facts and narrative sections from downloaded filings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if processKind == "xbrl" || processKind == "all" {
			if err := processXBRL(ctx, s); err != nil {
				return err
			}
		}
		if processKind == "sections" || processKind == "all" {
			if err := processSections(ctx, s); err != nil {
				return err
			}
		}
		return nil
	},
}

func processXBRL(ctx context.Context, s *store.Store) error {
	pending, err := s.Filings.Unprocessed(ctx, store.ProcessingXBRL)
	if err != nil {
		return err
	}
	zap.L().Info("xbrl extraction starting", zap.Int("filings", len(pending)))

	for i := range pending {
		f := &pending[i]
		started := time.Now()

		res := xbrl.ParseFiling(f.LocalPath, f.AccessionNumber, processAllFacts)
		if !res.Success {
			zap.L().Warn("xbrl parse failed",
				zap.String("accession", f.AccessionNumber), zap.String("error", res.Error))
			logStage(ctx, s, "xbrl", "failed", f.CIK, f.AccessionNumber, time.Since(started), res.Error)
			continue
		}

		inserted, dupes, err := s.Facts.BatchInsert(ctx, res.Facts)
		if err != nil {
			return err
		}

		update := store.StatusUpdate{XBRLProcessed: boolPtr(true)}
		if res.PeriodEnd != nil {
			pe := res.PeriodEnd.Format("2006-01-02")
			update.PeriodOfReport = &pe
		}
		if err := s.Filings.UpdateStatus(ctx, f.AccessionNumber, update); err != nil {
			return err
		}

		zap.L().Info("xbrl extracted",
			zap.String("accession", f.AccessionNumber),
			zap.Int("facts", inserted),
			zap.Int("duplicates", dupes))
		logStage(ctx, s, "xbrl", "completed", f.CIK, f.AccessionNumber, time.Since(started), "")
	}
	return nil
}

func processSections(ctx context.Context, s *store.Store) error {
	pending, err := s.Filings.Unprocessed(ctx, store.ProcessingSections)
	if err != nil {
		return err
	}
	zap.L().Info("section extraction starting", zap.Int("filings", len(pending)))

	extractor := sections.NewExtractor(cfg.Sections)
	for i := range pending {
		f := &pending[i]
		started := time.Now()

		html, err := readPrimaryDocument(f)
		if err != nil {
			zap.L().Warn("primary document unreadable",
				zap.String("accession", f.AccessionNumber), zap.Error(err))
			logStage(ctx, s, "sections", "failed", f.CIK, f.AccessionNumber, time.Since(started), err.Error())
			continue
		}

		company, err := s.Companies.Get(ctx, f.CIK)
		if err != nil {
			return err
		}

		result, err := extractor.ExtractFullMarkdown(html, company.Ticker, f.AccessionNumber)
		if err != nil {
			zap.L().Warn("section extraction failed",
				zap.String("accession", f.AccessionNumber), zap.Error(err))
			logStage(ctx, s, "sections", "failed", f.CIK, f.AccessionNumber, time.Since(started), err.Error())
			continue
		}

		for _, sec := range result.Sections {
			if err := s.Sections.Upsert(ctx, sec); err != nil {
				return err
			}
		}
		if err := s.Filings.UpdateStatus(ctx, f.AccessionNumber, store.StatusUpdate{
			SectionsProcessed: boolPtr(true),
			FullMarkdown:      &result.FullMarkdown,
		}); err != nil {
			return err
		}

		zap.L().Info("sections extracted",
			zap.String("accession", f.AccessionNumber),
			zap.Int("sections", len(result.Sections)),
			zap.Float64("quality", result.ExtractionQuality))
		logStage(ctx, s, "sections", "completed", f.CIK, f.AccessionNumber, time.Since(started), "")
	}
	return nil
}

func readPrimaryDocument(f *model.Filing) (string, error) {
	if f.LocalPath == "" || f.PrimaryDocument == "" {
		return "", eris.Errorf("filing %s has no local primary document", f.AccessionNumber)
	}
	data, err := os.ReadFile(filepath.Join(f.LocalPath, f.PrimaryDocument))
	if err != nil {
		return "", eris.Wrapf(err, "read primary document for %s", f.AccessionNumber)
	}
	return string(data), nil
}

func boolPtr(b bool) *bool { return &b }

func init() {
	processCmd.Flags().StringVar(&processKind, "kind", "all", "which stage to run: xbrl, sections, or all")
	processCmd.Flags().BoolVar(&processAllFacts, "all-facts", false, "keep facts for every concept, not just the curated set")
	rootCmd.AddCommand(processCmd)
}
