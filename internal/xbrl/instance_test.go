package xbrl

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/finloom/internal/model"
)

const sampleInstance = `<?xml version="1.0" encoding="UTF-8"?>
<xbrli:xbrl xmlns:xbrli="http://www.xbrl.org/2003/instance"
            xmlns:xbrldi="http://xbrl.org/2006/xbrldi"
            xmlns:us-gaap="http://fasb.org/us-gaap"
            xmlns:dei="http://xbrl.sec.gov/dei"
            xmlns:aapl="http://apple.com/20230930">
  <xbrli:context id="FY2023">
    <xbrli:entity><xbrli:identifier scheme="http://www.sec.gov/CIK">0000320193</xbrli:identifier></xbrli:entity>
    <xbrli:period>
      <xbrli:startDate>2022-09-25</xbrli:startDate>
      <xbrli:endDate>2023-09-30</xbrli:endDate>
    </xbrli:period>
  </xbrli:context>
  <xbrli:context id="AsOf2023">
    <xbrli:entity><xbrli:identifier scheme="http://www.sec.gov/CIK">0000320193</xbrli:identifier></xbrli:entity>
    <xbrli:period><xbrli:instant>2023-09-30</xbrli:instant></xbrli:period>
  </xbrli:context>
  <xbrli:context id="FY2023_Products">
    <xbrli:entity>
      <xbrli:identifier scheme="http://www.sec.gov/CIK">0000320193</xbrli:identifier>
      <xbrli:segment>
        <xbrldi:explicitMember dimension="srt:ProductOrServiceAxis">us-gaap:ProductMember</xbrldi:explicitMember>
      </xbrli:segment>
    </xbrli:entity>
    <xbrli:period>
      <xbrli:startDate>2022-09-25</xbrli:startDate>
      <xbrli:endDate>2023-09-30</xbrli:endDate>
    </xbrli:period>
  </xbrli:context>
  <xbrli:unit id="usd"><xbrli:measure>iso4217:USD</xbrli:measure></xbrli:unit>
  <dei:DocumentPeriodEndDate contextRef="FY2023">2023-09-30</dei:DocumentPeriodEndDate>
  <us-gaap:Revenues contextRef="FY2023" unitRef="usd" decimals="-6">383285000000</us-gaap:Revenues>
  <us-gaap:Revenues contextRef="FY2023_Products" unitRef="usd" decimals="-6">298085000000</us-gaap:Revenues>
  <us-gaap:Assets contextRef="AsOf2023" unitRef="usd" decimals="-6">352583000000</us-gaap:Assets>
  <aapl:CustomThing contextRef="FY2023">some narrative</aapl:CustomThing>
</xbrli:xbrl>`

func writeInstance(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "aapl-20230930.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleInstance), 0o644))
	return path
}

func TestIsInstanceDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeInstance(t, dir)
	assert.True(t, IsInstanceDocument(path))

	other := filepath.Join(dir, "plain.xml")
	require.NoError(t, os.WriteFile(other, []byte(`<?xml version="1.0"?><root/>`), 0o644))
	assert.False(t, IsInstanceDocument(other))
}

func TestIsLinkbase(t *testing.T) {
	assert.True(t, IsLinkbase("aapl-20230930_pre.xml"))
	assert.True(t, IsLinkbase("AAPL-20230930_LAB.XML"))
	assert.False(t, IsLinkbase("aapl-20230930.xml"))
}

func TestFindInstanceDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aapl-20230930_pre.xml"), []byte("<linkbase/>"), 0o644))
	want := writeInstance(t, dir)

	got, err := FindInstanceDocument(dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFindInstanceDocument_NotFound(t *testing.T) {
	_, err := FindInstanceDocument(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No XBRL instance document found")
}

func TestParseInstance(t *testing.T) {
	path := writeInstance(t, t.TempDir())
	facts, err := ParseInstance(path, "0000320193-23-000106")
	require.NoError(t, err)
	require.Len(t, facts, 5)

	byName := map[string][]model.Fact{}
	for _, f := range facts {
		byName[f.QualifiedName] = append(byName[f.QualifiedName], f)
	}

	revs := byName["us-gaap:Revenues"]
	require.Len(t, revs, 2)
	for _, rev := range revs {
		assert.Equal(t, "us-gaap", rev.Namespace)
		assert.True(t, rev.Value.IsNumeric())
		assert.Equal(t, "USD", rev.Unit)
		assert.Equal(t, "-6", rev.Decimals)
		assert.Equal(t, model.PeriodDuration, rev.PeriodType)
		require.NotNil(t, rev.PeriodEnd)
		assert.Equal(t, "2023-09-30", rev.PeriodEnd.Format("2006-01-02"))
		assert.False(t, rev.IsCustom)
	}

	// Dimensioned and undimensioned revenues are distinct facts.
	var dims []string
	for _, rev := range revs {
		dims = append(dims, rev.DimensionsJSON())
	}
	assert.Contains(t, dims, "")
	assert.Contains(t, dims, `{"srt:ProductOrServiceAxis":"us-gaap:ProductMember"}`)

	assets := byName["us-gaap:Assets"]
	require.Len(t, assets, 1)
	assert.Equal(t, model.PeriodInstant, assets[0].PeriodType)
	assert.Equal(t, 352583000000.0, assets[0].Value.Numeric)

	custom := byName["CustomThing"]
	require.Len(t, custom, 1)
	assert.True(t, custom[0].IsCustom)
	assert.Equal(t, "", custom[0].Namespace)
	assert.Equal(t, model.ValueText, custom[0].Value.Kind)
	assert.Equal(t, "some narrative", custom[0].Value.Text)

	ped := byName["dei:DocumentPeriodEndDate"]
	require.Len(t, ped, 1)
	assert.Equal(t, "dei", ped[0].Namespace)
}

// Filings declare the standard taxonomies with a year segment; those facts
// are standard, not extensions.
func TestParseInstance_YearVersionedNamespaces(t *testing.T) {
	const doc = `<?xml version="1.0" encoding="UTF-8"?>
<xbrli:xbrl xmlns:xbrli="http://www.xbrl.org/2003/instance"
            xmlns:us-gaap="http://fasb.org/us-gaap/2024"
            xmlns:dei="http://xbrl.sec.gov/dei/2024"
            xmlns:aapl="http://apple.com/20240928">
  <xbrli:context id="AsOf2024">
    <xbrli:entity><xbrli:identifier scheme="http://www.sec.gov/CIK">0000320193</xbrli:identifier></xbrli:entity>
    <xbrli:period><xbrli:instant>2024-09-28</xbrli:instant></xbrli:period>
  </xbrli:context>
  <xbrli:unit id="usd"><xbrli:measure>iso4217:USD</xbrli:measure></xbrli:unit>
  <dei:DocumentPeriodEndDate contextRef="AsOf2024">2024-09-28</dei:DocumentPeriodEndDate>
  <us-gaap:Assets contextRef="AsOf2024" unitRef="usd" decimals="-6">364980000000</us-gaap:Assets>
  <aapl:CustomThing contextRef="AsOf2024">narrative</aapl:CustomThing>
</xbrli:xbrl>`
	dir := t.TempDir()
	path := filepath.Join(dir, "aapl-20240928.xml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	facts, err := ParseInstance(path, "0000320193-24-000123")
	require.NoError(t, err)

	byName := map[string]model.Fact{}
	for _, f := range facts {
		byName[f.QualifiedName] = f
	}

	assets, ok := byName["us-gaap:Assets"]
	require.True(t, ok)
	assert.Equal(t, "us-gaap", assets.Namespace)
	assert.False(t, assets.IsCustom)

	ped, ok := byName["dei:DocumentPeriodEndDate"]
	require.True(t, ok)
	assert.Equal(t, "dei", ped.Namespace)
	assert.False(t, ped.IsCustom)

	custom, ok := byName["CustomThing"]
	require.True(t, ok)
	assert.True(t, custom.IsCustom)

	// Standard-only parsing keeps the versioned-namespace facts.
	res := ParseFiling(dir, "0000320193-24-000123", false)
	require.True(t, res.Success, res.Error)
	assert.Len(t, res.Facts, 2)
	require.NotNil(t, res.PeriodEnd)
	assert.Equal(t, "2024-09-28", res.PeriodEnd.Format("2006-01-02"))
}

func TestStandardPrefix(t *testing.T) {
	assert.Equal(t, "us-gaap", standardPrefix("http://fasb.org/us-gaap"))
	assert.Equal(t, "us-gaap", standardPrefix("http://fasb.org/us-gaap/2024"))
	assert.Equal(t, "dei", standardPrefix("http://xbrl.sec.gov/dei/2023"))
	assert.Equal(t, "srt", standardPrefix("http://fasb.org/srt/2024"))
	// Prefix matching stops at the path segment.
	assert.Equal(t, "", standardPrefix("http://fasb.org/us-gaap-custom"))
	assert.Equal(t, "", standardPrefix("http://apple.com/20240928"))
}
