// Package download fetches filtered filing document sets from the archive,
// with per-company checkpoints for crash-safe resumption.
package download

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/edgar"
	"github.com/sells-group/finloom/internal/model"
)

// Downloader drives per-company filing downloads.
type Downloader struct {
	client        *edgar.Client
	rawRoot       string
	checkpointDir string
}

// NewDownloader creates a downloader rooted at rawRoot with checkpoints in
// checkpointDir.
func NewDownloader(client *edgar.Client, rawRoot, checkpointDir string) *Downloader {
	return &Downloader{client: client, rawRoot: rawRoot, checkpointDir: checkpointDir}
}

// FilingResult reports the outcome of one filing download.
type FilingResult struct {
	AccessionNumber string
	LocalPath       string
	Bytes           int64
	Duration        time.Duration
	Documents       int
	Err             error
}

// CompanyResult aggregates a company's download run.
type CompanyResult struct {
	CIK     string
	Results []FilingResult
	Skipped int
}

// FilingDir returns the local directory for a filing:
// {root}/{year}/{cik_padded}/{accession_without_dashes}/.
func (d *Downloader) FilingDir(cik string, filingDate time.Time, accession string) string {
	return filepath.Join(d.rawRoot,
		filingDate.Format("2006"),
		model.PadCIK(cik),
		model.AccessionNoDashes(accession))
}

// DownloadCompanyFilings fetches every matching filing for one company.
// With resume, filings recorded as completed in the checkpoint are skipped
// without issuing any document requests; the checkpoint is persisted after
// each filing.
func (d *Downloader) DownloadCompanyFilings(ctx context.Context, cik, formType string, startYear, endYear int, resume bool) (*CompanyResult, error) {
	cik = model.PadCIK(cik)
	log := zap.L().With(zap.String("cik", cik), zap.String("form", formType))

	cp := &Checkpoint{CIK: cik}
	if resume {
		loaded, err := LoadCheckpoint(d.checkpointDir, cik)
		if err != nil {
			return nil, err
		}
		cp = loaded
	}

	start := time.Date(startYear, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(endYear, 12, 31, 23, 59, 59, 0, time.UTC)
	filings, err := d.client.GetCompanyFilings(ctx, cik, formType, &start, &end)
	if err != nil {
		return nil, eris.Wrapf(err, "download: list filings for %s", cik)
	}

	result := &CompanyResult{CIK: cik}
	for _, f := range filings {
		if cp.Completed(f.AccessionNumber) {
			result.Skipped++
			continue
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		fr := d.downloadFiling(ctx, cik, f)
		result.Results = append(result.Results, fr)

		cp.LastAccession = f.AccessionNumber
		if fr.Err != nil {
			log.Warn("filing download failed",
				zap.String("accession", f.AccessionNumber), zap.Error(fr.Err))
			cp.FailedFilings = append(cp.FailedFilings, f.AccessionNumber)
		} else {
			cp.CompletedFilings = append(cp.CompletedFilings, f.AccessionNumber)
		}

		if err := SaveCheckpoint(d.checkpointDir, cp); err != nil {
			return result, err
		}
	}

	log.Info("company download complete",
		zap.Int("downloaded", len(result.Results)),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// downloadFiling materializes one filing directory: metadata.json plus the
// filtered document set.
func (d *Downloader) downloadFiling(ctx context.Context, cik string, f edgar.FilingDescriptor) FilingResult {
	start := time.Now()
	fr := FilingResult{AccessionNumber: f.AccessionNumber}

	dir := d.FilingDir(cik, f.FilingDate, f.AccessionNumber)
	fr.LocalPath = dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fr.Err = eris.Wrapf(err, "download: create %s", dir)
		return fr
	}

	docs, err := d.client.GetFilingDocuments(ctx, cik, f.AccessionNumber)
	if err != nil {
		fr.Err = err
		return fr
	}

	var kept []model.FilingDocument
	for _, doc := range docs {
		if KeepFile(doc.Name, f.PrimaryDocument) {
			kept = append(kept, doc)
		}
	}

	if err := d.writeMetadata(dir, cik, f, kept); err != nil {
		fr.Err = err
		return fr
	}

	for _, doc := range kept {
		url, err := d.client.DocumentURL(cik, f.AccessionNumber, doc.Name)
		if err != nil {
			fr.Err = err
			return fr
		}
		n, err := d.client.DownloadDocument(ctx, url, filepath.Join(dir, doc.Name))
		if err != nil {
			fr.Err = err
			return fr
		}
		fr.Bytes += n
		fr.Documents++
	}

	if err := VerifyFiling(dir, f.IsXBRL || f.IsInlineXBRL); err != nil {
		fr.Err = err
		return fr
	}

	fr.Duration = time.Since(start)
	return fr
}

func (d *Downloader) writeMetadata(dir, cik string, f edgar.FilingDescriptor, docs []model.FilingDocument) error {
	meta := model.FilingMetadata{
		AccessionNumber:   f.AccessionNumber,
		CIK:               cik,
		FormType:          f.FormType,
		FilingDate:        f.FilingDate.Format("2006-01-02"),
		PrimaryDocument:   f.PrimaryDocument,
		PrimaryDocDesc:    f.PrimaryDocDesc,
		IsXBRL:            f.IsXBRL,
		IsInlineXBRL:      f.IsInlineXBRL,
		Documents:         docs,
		DownloadTimestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if f.AcceptanceDatetime != nil {
		meta.AcceptanceDatetime = f.AcceptanceDatetime.UTC().Format(time.RFC3339)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return eris.Wrap(err, "download: marshal metadata")
	}
	return eris.Wrap(
		os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644),
		"download: write metadata")
}

// VerifyFiling checks the completion rule: metadata.json present, at least
// one HTML document, and (for XBRL filings) at least one XML file.
func VerifyFiling(dir string, expectXBRL bool) error {
	if _, err := os.Stat(filepath.Join(dir, "metadata.json")); err != nil {
		return eris.Wrapf(err, "download: missing metadata in %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return eris.Wrapf(err, "download: read %s", dir)
	}

	var hasHTML, hasXML bool
	for _, e := range entries {
		lower := strings.ToLower(e.Name())
		if strings.HasSuffix(lower, ".htm") || strings.HasSuffix(lower, ".html") {
			hasHTML = true
		}
		if strings.HasSuffix(lower, ".xml") {
			hasXML = true
		}
	}

	if !hasHTML {
		return eris.Errorf("download: no HTML document in %s", dir)
	}
	if expectXBRL && !hasXML {
		return eris.Errorf("download: XBRL filing has no XML in %s", dir)
	}
	return nil
}

// ReadMetadata loads a filing's metadata.json.
func ReadMetadata(dir string) (*model.FilingMetadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return nil, eris.Wrapf(err, "download: read metadata in %s", dir)
	}
	var meta model.FilingMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, eris.Wrapf(err, "download: parse metadata in %s", dir)
	}
	return &meta, nil
}
