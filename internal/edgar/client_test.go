package edgar

import (
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/finloom/internal/ratelimit"
)

const sampleSubmissions = `{
  "cik": "320193",
  "name": "Apple Inc.",
  "tickers": ["AAPL"],
  "sic": "3571",
  "sicDescription": "Electronic Computers",
  "stateOfIncorporation": "CA",
  "fiscalYearEnd": "0927",
  "ein": "942404110",
  "filings": {
    "recent": {
      "accessionNumber": ["0000320193-24-000123", "0000320193-23-000106", "0000320193-23-000077"],
      "form": ["10-K", "10-K", "10-Q"],
      "filingDate": ["2024-11-01", "2023-11-03", "2023-08-04"],
      "reportDate": ["2024-09-28", "2023-09-30", "2023-07-01"],
      "acceptanceDateTime": ["2024-11-01T18:01:14.000Z", "2023-11-03T18:04:28.000Z", "2023-08-04T18:04:43.000Z"],
      "primaryDocument": ["aapl-20240928.htm", "aapl-20230930.htm", "aapl-20230701.htm"],
      "primaryDocDescription": ["10-K", "10-K", "10-Q"],
      "isXBRL": [1, 1, 1],
      "isInlineXBRL": [1, 1, 1]
    },
    "files": []
  }
}`

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{
		UserAgent:   "finloom-test admin@example.com",
		BaseURL:     srv.URL,
		DataBaseURL: srv.URL,
		MaxRetries:  3,
	}, ratelimit.NewGovernor(100, 100, 1))
	require.NoError(t, err)
	return c, srv
}

func TestNewClient_RequiresUserAgent(t *testing.T) {
	_, err := NewClient(Options{}, ratelimit.NewGovernor(1, 1, 1))
	assert.Error(t, err)
}

func TestGetSubmissions(t *testing.T) {
	var gotUA atomic.Value
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		assert.Equal(t, "/submissions/CIK0000320193.json", r.URL.Path)
		w.Write([]byte(sampleSubmissions))
	}))

	subs, err := c.GetSubmissions(context.Background(), "320193")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", subs.Name)
	assert.Equal(t, []string{"AAPL"}, subs.Tickers)
	assert.Equal(t, 3, subs.Filings.Recent.Len())
	assert.Equal(t, "finloom-test admin@example.com", gotUA.Load())
}

func TestGetSubmissions_GzipResponse(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.Header.Get("Accept-Encoding"), "gzip")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, err := gz.Write([]byte(sampleSubmissions))
		require.NoError(t, err)
		require.NoError(t, gz.Close())
	}))

	subs, err := c.GetSubmissions(context.Background(), "320193")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", subs.Name)
	assert.Equal(t, 3, subs.Filings.Recent.Len())
}

func TestGetCompanyFilings_FiltersAndSorts(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleSubmissions))
	}))

	filings, err := c.GetCompanyFilings(context.Background(), "320193", "10-K", nil, nil)
	require.NoError(t, err)
	require.Len(t, filings, 2)
	// Descending by filing date.
	assert.Equal(t, "0000320193-24-000123", filings[0].AccessionNumber)
	assert.Equal(t, "0000320193-23-000106", filings[1].AccessionNumber)
	assert.True(t, filings[0].IsInlineXBRL)
	require.NotNil(t, filings[0].ReportDate)
	assert.Equal(t, 2024, filings[0].ReportDate.Year())
}

func TestGetCompanyFilings_DateRange(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleSubmissions))
	}))

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	filings, err := c.GetCompanyFilings(context.Background(), "320193", "10-K", &start, &end)
	require.NoError(t, err)
	require.Len(t, filings, 1)
	assert.Equal(t, "0000320193-23-000106", filings[0].AccessionNumber)
}

func TestGetFilingDocuments(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Archives/edgar/data/320193/000032019323000106/index.json", r.URL.Path)
		w.Write([]byte(`{"directory":{"name":"/Archives/edgar/data/320193/000032019323000106",
			"item":[{"name":"aapl-20230930.htm","type":"text.gif","size":"1024","last-modified":"2023-11-03 18:04:28"},
			        {"name":"aapl-20230930_lab.xml","type":"text.gif","size":"2048","last-modified":"2023-11-03 18:04:28"}]}}`))
	}))

	docs, err := c.GetFilingDocuments(context.Background(), "0000320193", "0000320193-23-000106")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "aapl-20230930.htm", docs[0].Name)
	assert.Equal(t, int64(1024), docs[0].Size)
}

func TestGetJSON_RetriesOn500(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(sampleSubmissions))
	}))

	_, err := c.GetSubmissions(context.Background(), "320193")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSON_404IsAPIError(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such cik", http.StatusNotFound)
	}))

	_, err := c.GetSubmissions(context.Background(), "999999")
	require.Error(t, err)
	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	// Non-transient: no retries.
	assert.Equal(t, int32(1), calls.Load())
}

func Test429_DrivesGovernorBackoff(t *testing.T) {
	gov := ratelimit.NewGovernor(8, 16, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewClient(Options{
		UserAgent: "finloom-test", BaseURL: srv.URL, DataBaseURL: srv.URL, MaxRetries: 2,
	}, gov)
	require.NoError(t, err)

	_, err = c.GetSubmissions(context.Background(), "320193")
	require.Error(t, err)
	assert.Less(t, gov.Rate(), 8.0)
}

func TestDownloadDocument(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>10-K</html>"))
	}))

	dir := t.TempDir()
	path := filepath.Join(dir, "2023", "0000320193", "doc.htm")
	url, err := c.DocumentURL("0000320193", "0000320193-23-000106", "doc.htm")
	require.NoError(t, err)

	n, err := c.DownloadDocument(context.Background(), url, path)
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html>10-K</html>", string(data))
}

func TestDownloadDocument_GzipResponse(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, err := gz.Write([]byte("<html>10-K</html>"))
		require.NoError(t, err)
		require.NoError(t, gz.Close())
	}))

	path := filepath.Join(t.TempDir(), "doc.htm")
	url, err := c.DocumentURL("0000320193", "0000320193-23-000106", "doc.htm")
	require.NoError(t, err)

	n, err := c.DownloadDocument(context.Background(), url, path)
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html>10-K</html>", string(data))
}
