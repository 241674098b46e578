package download

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/finloom/internal/edgar"
	"github.com/sells-group/finloom/internal/ratelimit"
)

func TestKeepFile(t *testing.T) {
	primary := "aapl-20230930.htm"

	tests := []struct {
		name string
		keep bool
	}{
		{"aapl-20230930.htm", true},  // primary document
		{"AAPL-20230930.HTM", true},  // case-insensitive primary match
		{"aapl-20230930_cal.xml", true},
		{"aapl-20230930_def.xml", true},
		{"aapl-20230930_lab.xml", true},
		{"aapl-20230930_pre.xml", true},
		{"aapl-20230930.xsd", true},
		{"aapl-20230930.xml", true},       // instance candidate
		{"r12.htm", false},                // per-report view
		{"ex-21.htm", false},              // exhibit
		{"exhibit991.htm", false},
		{"FilingSummary.xml", false},
		{"Financial_Report.xlsx", false},
		{"defref.xml", false},
		{"logo.jpg", false},
		{"chart.png", false},
		{"icon.ico", false},
		{"workbook.xlsx", false},
		{"other.htm", false}, // non-primary html
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.keep, KeepFile(tt.name, primary))
		})
	}
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cp := &Checkpoint{
		CIK:              "0000320193",
		CompletedFilings: []string{"0000320193-23-000106"},
		FailedFilings:    []string{},
	}
	require.NoError(t, SaveCheckpoint(dir, cp))

	loaded, err := LoadCheckpoint(dir, "320193")
	require.NoError(t, err)
	assert.Equal(t, cp.CompletedFilings, loaded.CompletedFilings)
	assert.True(t, loaded.Completed("0000320193-23-000106"))
	assert.False(t, loaded.Completed("0000320193-24-000123"))
	assert.NotEmpty(t, loaded.Timestamp)
}

func TestLoadCheckpoint_MissingIsEmpty(t *testing.T) {
	cp, err := LoadCheckpoint(t.TempDir(), "320193")
	require.NoError(t, err)
	assert.Empty(t, cp.CompletedFilings)
}

// archiveFixture simulates the submissions endpoint, per-filing index.json,
// and raw document URLs for a company with three 10-K filings.
type archiveFixture struct {
	indexFetches atomic.Int32
	docFetches   atomic.Int32
	docsByAcc    map[string][]string
}

func newArchiveFixture() *archiveFixture {
	return &archiveFixture{
		docsByAcc: map[string][]string{
			"0000320193-22-000108": {"aapl-20220924.htm", "aapl-20220924.xml", "ex-21.htm"},
			"0000320193-23-000106": {"aapl-20230930.htm", "aapl-20230930.xml", "r5.htm"},
			"0000320193-24-000123": {"aapl-20240928.htm", "aapl-20240928.xml", "Financial_Report.xlsx"},
		},
	}
}

func (a *archiveFixture) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/submissions/"):
			a.indexFetches.Add(1)
			fmt.Fprint(w, `{
				"cik": "320193", "name": "Apple Inc.", "tickers": ["AAPL"],
				"filings": {"recent": {
					"accessionNumber": ["0000320193-24-000123","0000320193-23-000106","0000320193-22-000108"],
					"form": ["10-K","10-K","10-K"],
					"filingDate": ["2024-11-01","2023-11-03","2022-10-28"],
					"reportDate": ["2024-09-28","2023-09-30","2022-09-24"],
					"acceptanceDateTime": ["2024-11-01T18:01:14.000Z","2023-11-03T18:04:28.000Z","2022-10-28T18:03:52.000Z"],
					"primaryDocument": ["aapl-20240928.htm","aapl-20230930.htm","aapl-20220924.htm"],
					"primaryDocDescription": ["10-K","10-K","10-K"],
					"isXBRL": [1,1,1], "isInlineXBRL": [1,1,1]
				}, "files": []}}`)
		case strings.HasSuffix(r.URL.Path, "/index.json"):
			parts := strings.Split(r.URL.Path, "/")
			accNoDash := parts[len(parts)-2]
			for acc, names := range a.docsByAcc {
				if strings.ReplaceAll(acc, "-", "") == accNoDash {
					items := make([]map[string]string, 0, len(names))
					for _, n := range names {
						items = append(items, map[string]string{"name": n, "size": "100"})
					}
					_ = json.NewEncoder(w).Encode(map[string]any{
						"directory": map[string]any{"item": items},
					})
					return
				}
			}
			http.NotFound(w, r)
		default:
			a.docFetches.Add(1)
			fmt.Fprint(w, "<html>content</html>")
		}
	})
}

func newTestDownloader(t *testing.T, fx *archiveFixture) (*Downloader, string) {
	t.Helper()
	srv := httptest.NewServer(fx.handler())
	t.Cleanup(srv.Close)

	client, err := edgar.NewClient(edgar.Options{
		UserAgent: "finloom-test", BaseURL: srv.URL, DataBaseURL: srv.URL,
	}, ratelimit.NewGovernor(1000, 1000, 1))
	require.NoError(t, err)

	root := t.TempDir()
	return NewDownloader(client, filepath.Join(root, "raw"), filepath.Join(root, "ckpt")), root
}

func TestDownloadCompanyFilings_Full(t *testing.T) {
	fx := newArchiveFixture()
	d, _ := newTestDownloader(t, fx)

	res, err := d.DownloadCompanyFilings(context.Background(), "320193", "10-K", 2022, 2024, false)
	require.NoError(t, err)
	require.Len(t, res.Results, 3)
	for _, fr := range res.Results {
		assert.NoError(t, fr.Err)
		assert.Equal(t, 2, fr.Documents) // exhibits/views/spreadsheets filtered out
		assert.Greater(t, fr.Bytes, int64(0))

		meta, err := ReadMetadata(fr.LocalPath)
		require.NoError(t, err)
		assert.Equal(t, fr.AccessionNumber, meta.AccessionNumber)
		assert.Len(t, meta.Documents, 2)
	}
}

func TestDownloadCompanyFilings_Resume(t *testing.T) {
	fx := newArchiveFixture()
	d, _ := newTestDownloader(t, fx)

	// Pre-seed checkpoint: two of three filings already completed.
	require.NoError(t, SaveCheckpoint(d.checkpointDir, &Checkpoint{
		CIK: "0000320193",
		CompletedFilings: []string{
			"0000320193-22-000108",
			"0000320193-23-000106",
		},
	}))

	res, err := d.DownloadCompanyFilings(context.Background(), "320193", "10-K", 2022, 2024, true)
	require.NoError(t, err)

	// Exactly one submissions index fetch, one filing downloaded.
	assert.Equal(t, int32(1), fx.indexFetches.Load())
	require.Len(t, res.Results, 1)
	assert.Equal(t, "0000320193-24-000123", res.Results[0].AccessionNumber)
	assert.Equal(t, 2, res.Skipped)
	// Only the remaining filing's kept documents were fetched.
	assert.Equal(t, int32(2), fx.docFetches.Load())

	cp, err := LoadCheckpoint(d.checkpointDir, "320193")
	require.NoError(t, err)
	assert.True(t, cp.Completed("0000320193-24-000123"))
	assert.Len(t, cp.CompletedFilings, 3)
}

func TestVerifyFiling(t *testing.T) {
	dir := t.TempDir()

	// Missing metadata.
	assert.Error(t, VerifyFiling(dir, false))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), []byte("{}"), 0o644))
	assert.Error(t, VerifyFiling(dir, false)) // no HTML yet

	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.htm"), []byte("x"), 0o644))
	assert.NoError(t, VerifyFiling(dir, false))
	assert.Error(t, VerifyFiling(dir, true)) // XBRL expected but no XML

	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.xml"), []byte("x"), 0o644))
	assert.NoError(t, VerifyFiling(dir, true))
}
