// Package edgar is a typed client for the filing archive's submissions
// endpoint and raw document URLs. Every request passes through the rate
// governor and retries transient failures with exponential backoff.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finloom/internal/model"
	"github.com/sells-group/finloom/internal/ratelimit"
	"github.com/sells-group/finloom/internal/resilience"
)

// Options configures the archive client.
type Options struct {
	// UserAgent is mandatory; the archive rejects anonymous clients.
	UserAgent string
	// Timeout applies to JSON endpoints. Default 30s.
	Timeout time.Duration
	// FileTimeout applies to raw document streams. Default 60s.
	FileTimeout time.Duration
	// MaxRetries bounds attempts per request. Default 3.
	MaxRetries int
	// BaseURL / DataBaseURL override archive hosts (tests).
	BaseURL     string
	DataBaseURL string
}

// Client fetches submissions, filing indexes, and raw documents.
type Client struct {
	opts     Options
	governor *ratelimit.Governor
	http     *http.Client
	fileHTTP *http.Client
}

// NewClient creates an archive client. The governor gates every request.
func NewClient(opts Options, governor *ratelimit.Governor) (*Client, error) {
	if opts.UserAgent == "" {
		return nil, eris.New("edgar: user agent is required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.FileTimeout == 0 {
		opts.FileTimeout = 60 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.sec.gov"
	}
	if opts.DataBaseURL == "" {
		opts.DataBaseURL = "https://data.sec.gov"
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		opts:     opts,
		governor: governor,
		http:     &http.Client{Timeout: opts.Timeout, Transport: transport},
		fileHTTP: &http.Client{Timeout: opts.FileTimeout, Transport: transport},
	}, nil
}

// GetSubmissions returns company metadata and the recent-filings index for a CIK.
func (c *Client) GetSubmissions(ctx context.Context, cik string) (*Submissions, error) {
	cik = model.PadCIK(cik)
	url := fmt.Sprintf("%s/submissions/CIK%s.json", c.opts.DataBaseURL, cik)

	var subs Submissions
	if err := c.getJSON(ctx, url, &subs); err != nil {
		return nil, err
	}
	return &subs, nil
}

// GetCompanyFilings flattens the submissions index (merging every
// older-filings shard) into filing descriptors, filtered by form type and
// date range and sorted by filing date descending.
func (c *Client) GetCompanyFilings(ctx context.Context, cik, formType string, startDate, endDate *time.Time) ([]FilingDescriptor, error) {
	subs, err := c.GetSubmissions(ctx, cik)
	if err != nil {
		return nil, err
	}

	indexes := []FilingIndex{subs.Filings.Recent}
	for _, shard := range subs.Filings.Files {
		url := fmt.Sprintf("%s/submissions/%s", c.opts.DataBaseURL, shard.Name)
		var idx FilingIndex
		if err := c.getJSON(ctx, url, &idx); err != nil {
			return nil, eris.Wrapf(err, "edgar: fetch shard %s", shard.Name)
		}
		indexes = append(indexes, idx)
	}

	var out []FilingDescriptor
	for _, idx := range indexes {
		out = append(out, flattenIndex(idx, formType, startDate, endDate)...)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].FilingDate.After(out[j].FilingDate)
	})
	return out, nil
}

// GetFilingDocuments returns the directory listing for a filing.
func (c *Client) GetFilingDocuments(ctx context.Context, cik, accession string) ([]model.FilingDocument, error) {
	cikNum, err := model.CIKNumber(cik)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/Archives/edgar/data/%d/%s/index.json",
		c.opts.BaseURL, cikNum, model.AccessionNoDashes(accession))

	var listing DirectoryListing
	if err := c.getJSON(ctx, url, &listing); err != nil {
		return nil, err
	}

	docs := make([]model.FilingDocument, 0, len(listing.Directory.Items))
	for _, item := range listing.Directory.Items {
		var size int64
		fmt.Sscanf(item.Size, "%d", &size)
		docs = append(docs, model.FilingDocument{
			Name:         item.Name,
			Type:         item.Type,
			Size:         size,
			LastModified: item.LastModified,
		})
	}
	return docs, nil
}

// DocumentURL builds the raw URL for a document inside a filing.
func (c *Client) DocumentURL(cik, accession, name string) (string, error) {
	cikNum, err := model.CIKNumber(cik)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/Archives/edgar/data/%d/%s/%s",
		c.opts.BaseURL, cikNum, model.AccessionNoDashes(accession), name), nil
}

// DownloadDocument streams a raw filing document to path. Returns bytes written.
func (c *Client) DownloadDocument(ctx context.Context, url, path string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, eris.Wrapf(err, "edgar: create dir for %s", path)
	}

	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = c.opts.MaxRetries
	cfg.OnRetry = func(attempt int, err error) {
		zap.L().Warn("document download retry",
			zap.String("url", url), zap.Int("attempt", attempt), zap.Error(err))
	}

	n, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (int64, error) {
		resp, err := c.do(ctx, c.fileHTTP, url)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		f, err := os.Create(path)
		if err != nil {
			return 0, eris.Wrapf(err, "edgar: create %s", path)
		}
		n, err := io.Copy(f, resp.Body)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
			return 0, resilience.NewTransientError(eris.Wrapf(err, "edgar: write %s", path), 0)
		}
		return n, nil
	})
	if err != nil {
		return 0, &DownloadError{URL: url, Err: err}
	}
	return n, nil
}

// getJSON fetches a JSON endpoint with retries and decodes into out.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = c.opts.MaxRetries
	cfg.OnRetry = func(attempt int, err error) {
		zap.L().Warn("archive request retry",
			zap.String("url", url), zap.Int("attempt", attempt), zap.Error(err))
	}

	body, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		resp, err := c.do(ctx, c.http, url)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "edgar: decode %s", url)
	}
	return nil
}

// do issues one governed GET and classifies the response. 429 feeds the
// governor's back-off; success feeds its recovery.
func (c *Client) do(ctx context.Context, hc *http.Client, url string) (*http.Response, error) {
	if err := c.governor.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "edgar: governor wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "edgar: create request")
	}
	// Accept-Encoding is left to the transport so it transparently
	// decompresses gzip responses.
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := hc.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := resilience.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		c.governor.ReportRateLimit(retryAfter)
		_ = resp.Body.Close()
		return nil, &resilience.TransientError{
			Err:        &RateLimitError{URL: url, RetryAfter: retryAfter},
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
		}
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		_ = resp.Body.Close()
		return nil, resilience.NewTransientError(
			eris.Errorf("edgar: http %d from %s", resp.StatusCode, url), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, &APIError{URL: url, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	c.governor.ReportSuccess()
	return resp, nil
}

func flattenIndex(idx FilingIndex, formType string, startDate, endDate *time.Time) []FilingDescriptor {
	var out []FilingDescriptor
	for i := 0; i < idx.Len(); i++ {
		form := at(idx.Form, i)
		if formType != "" && form != formType {
			continue
		}

		filingDate, err := time.Parse("2006-01-02", at(idx.FilingDate, i))
		if err != nil {
			continue
		}
		if startDate != nil && filingDate.Before(*startDate) {
			continue
		}
		if endDate != nil && filingDate.After(*endDate) {
			continue
		}

		fd := FilingDescriptor{
			AccessionNumber: at(idx.AccessionNumber, i),
			FormType:        form,
			FilingDate:      filingDate,
			PrimaryDocument: at(idx.PrimaryDocument, i),
			PrimaryDocDesc:  at(idx.PrimaryDocDesc, i),
			IsXBRL:          atInt(idx.IsXBRL, i) == 1,
			IsInlineXBRL:    atInt(idx.IsInlineXBRL, i) == 1,
		}
		if rd, err := time.Parse("2006-01-02", at(idx.ReportDate, i)); err == nil {
			fd.ReportDate = &rd
		}
		if ad, err := time.Parse(time.RFC3339, at(idx.AcceptanceDateTime, i)); err == nil {
			fd.AcceptanceDatetime = &ad
		}
		out = append(out, fd)
	}
	return out
}

// at reads a parallel-array slot, tolerating ragged arrays in the payload.
func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

func atInt(s []int, i int) int {
	if i < len(s) {
		return s[i]
	}
	return 0
}
