package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/download"
	"github.com/sells-group/finloom/internal/model"
	"github.com/sells-group/finloom/internal/store"
)

var (
	ingestTicker string
	ingestForm   string
	ingestResume bool
	ingestPoll   bool
	ingestStart  int
	ingestEnd    int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Download annual report filings for the roster",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		companies, err := loadRoster()
		if err != nil {
			return err
		}

		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		d, err := newDownloader()
		if err != nil {
			return err
		}

		startYear, endYear := ingestStart, ingestEnd
		if startYear == 0 {
			startYear = cfg.Archive.StartYear
		}
		if endYear == 0 {
			endYear = cfg.Archive.EndYear
		}
		resume := ingestResume
		if ingestPoll {
			// A poll re-reads submissions for the current year only;
			// checkpoints skip everything already on disk.
			startYear = time.Now().UTC().Year()
			endYear = startYear
			resume = true
		}

		for _, c := range companies {
			if ingestTicker != "" && c.Ticker != ingestTicker {
				continue
			}
			if err := s.Companies.Upsert(ctx, c); err != nil {
				return err
			}

			started := time.Now()
			result, err := d.DownloadCompanyFilings(ctx, c.CIK, ingestForm, startYear, endYear, resume)
			if err != nil {
				zap.L().Error("company download failed",
					zap.String("ticker", c.Ticker), zap.Error(err))
				logStage(ctx, s, "download", "failed", c.CIK, "", time.Since(started), err.Error())
				continue
			}

			if err := recordFilings(ctx, s, c, result); err != nil {
				return err
			}
			logStage(ctx, s, "download", "completed", c.CIK, "", time.Since(started), "")
		}
		return nil
	},
}

// recordFilings upserts filing rows from the download results and the
// metadata written alongside each document set.
func recordFilings(ctx context.Context, s *store.Store, c model.Company, result *download.CompanyResult) error {
	for _, fr := range result.Results {
		if fr.Err != nil {
			continue
		}
		meta, err := download.ReadMetadata(fr.LocalPath)
		if err != nil {
			zap.L().Warn("unreadable filing metadata",
				zap.String("accession", fr.AccessionNumber), zap.Error(err))
			continue
		}

		filingDate, err := time.Parse("2006-01-02", meta.FilingDate)
		if err != nil {
			filingDate = time.Now().UTC()
		}
		f := model.Filing{
			AccessionNumber: meta.AccessionNumber,
			CIK:             c.CIK,
			FormType:        meta.FormType,
			FilingDate:      filingDate,
			PrimaryDocument: meta.PrimaryDocument,
			PrimaryDocDesc:  meta.PrimaryDocDesc,
			IsXBRL:          meta.IsXBRL,
			IsInlineXBRL:    meta.IsInlineXBRL,
			LocalPath:       fr.LocalPath,
			DownloadStatus:  model.DownloadCompleted,
		}
		if meta.AcceptanceDatetime != "" {
			if t, err := time.Parse(time.RFC3339, meta.AcceptanceDatetime); err == nil {
				f.AcceptanceDatetime = &t
			}
		}
		if err := s.Filings.Upsert(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// runID ties every log entry of one invocation together.
var runID = uuid.NewString()

func logStage(ctx context.Context, s *store.Store, stage, status, cik, accession string, d time.Duration, msg string) {
	err := s.Analytics.LogProcessing(ctx, store.LogEntry{
		Stage:           stage,
		Status:          status,
		CIK:             cik,
		AccessionNumber: accession,
		Duration:        d,
		Message:         msg,
		ContextJSON:     fmt.Sprintf(`{"run_id":%q}`, runID),
	})
	if err != nil {
		zap.L().Warn("processing log write failed", zap.Error(err))
	}
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTicker, "ticker", "", "limit to one roster ticker")
	ingestCmd.Flags().StringVar(&ingestForm, "form", "10-K", "form type to download")
	ingestCmd.Flags().BoolVar(&ingestResume, "resume", true, "resume from per-company checkpoints")
	ingestCmd.Flags().BoolVar(&ingestPoll, "poll", false, "fetch only current-year filings missing from the checkpoint")
	ingestCmd.Flags().IntVar(&ingestStart, "start-year", 0, "first filing year (default from config)")
	ingestCmd.Flags().IntVar(&ingestEnd, "end-year", 0, "last filing year (default from config)")
	rootCmd.AddCommand(ingestCmd)
}
