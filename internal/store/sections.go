package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/finloom/internal/model"
)

// SectionRepo persists extracted filing sections.
type SectionRepo struct {
	db *sql.DB
}

// Upsert replaces a section keyed by (accession_number, section_type).
func (r *SectionRepo) Upsert(ctx context.Context, s model.Section) error {
	crossRefs, err := json.Marshal(s.CrossReferences)
	if err != nil {
		return eris.Wrap(err, "store: marshal cross references")
	}
	headings, err := json.Marshal(s.HeadingHierarchy)
	if err != nil {
		return eris.Wrap(err, "store: marshal headings")
	}
	issues, err := json.Marshal(s.Issues)
	if err != nil {
		return eris.Wrap(err, "store: marshal issues")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sections (accession_number, section_type,
			title, content_text, content_html, content_markdown,
			word_count, char_count, paragraph_count, confidence, part,
			table_count, list_count, footnote_count,
			cross_references, heading_hierarchy, quality_score, issues)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.AccessionNumber, string(s.SectionType), s.Title, s.ContentText,
		nullable(s.ContentHTML), nullable(s.ContentMarkdown),
		s.WordCount, s.CharCount, s.ParagraphCount, s.Confidence, s.Part,
		s.TableCount, s.ListCount, s.FootnoteCount,
		string(crossRefs), string(headings), s.QualityScore, string(issues))
	return eris.Wrapf(err, "store: upsert section %s/%s", s.AccessionNumber, s.SectionType)
}

// ByFiling lists a filing's sections in item order.
func (r *SectionRepo) ByFiling(ctx context.Context, accession string) ([]model.Section, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT accession_number, section_type, title, content_text,
			content_html, content_markdown, word_count, char_count,
			paragraph_count, confidence, part, table_count, list_count,
			footnote_count, cross_references, heading_hierarchy,
			quality_score, issues
		FROM sections WHERE accession_number = ?
		ORDER BY section_type`, accession)
	if err != nil {
		return nil, eris.Wrapf(err, "store: sections for %s", accession)
	}
	defer rows.Close()

	var sections []model.Section
	for rows.Next() {
		var s model.Section
		var contentHTML, contentMD, crossRefs, headings, issues sql.NullString
		err := rows.Scan(&s.AccessionNumber, &s.SectionType, &s.Title,
			&s.ContentText, &contentHTML, &contentMD, &s.WordCount,
			&s.CharCount, &s.ParagraphCount, &s.Confidence, &s.Part,
			&s.TableCount, &s.ListCount, &s.FootnoteCount,
			&crossRefs, &headings, &s.QualityScore, &issues)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan section")
		}
		s.ContentHTML = contentHTML.String
		s.ContentMarkdown = contentMD.String
		if crossRefs.Valid {
			_ = json.Unmarshal([]byte(crossRefs.String), &s.CrossReferences)
		}
		if headings.Valid {
			_ = json.Unmarshal([]byte(headings.String), &s.HeadingHierarchy)
		}
		if issues.Valid {
			_ = json.Unmarshal([]byte(issues.String), &s.Issues)
		}
		sections = append(sections, s)
	}
	return sections, eris.Wrap(rows.Err(), "store: sections iterate")
}

// Get fetches one section; nil when absent.
func (r *SectionRepo) Get(ctx context.Context, accession string, sectionType model.SectionType) (*model.Section, error) {
	sections, err := r.ByFiling(ctx, accession)
	if err != nil {
		return nil, err
	}
	for i := range sections {
		if sections[i].SectionType == sectionType {
			return &sections[i], nil
		}
	}
	return nil, nil
}
