package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"github.com/sells-group/finloom/internal/model"
)

// ConceptRepo caches concept hierarchy and label metadata.
type ConceptRepo struct {
	db *sql.DB
}

// Upsert stores one concept category; prior non-null fields survive.
func (r *ConceptRepo) Upsert(ctx context.Context, c model.ConceptCategory) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO concept_categories (concept_name, section, parent_concept, depth, label, data_type)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(concept_name) DO UPDATE SET
			section        = COALESCE(excluded.section, concept_categories.section),
			parent_concept = COALESCE(excluded.parent_concept, concept_categories.parent_concept),
			depth          = excluded.depth,
			label          = COALESCE(excluded.label, concept_categories.label),
			data_type      = COALESCE(excluded.data_type, concept_categories.data_type)`,
		c.ConceptName, nullable(c.Section), nullable(c.ParentConcept),
		c.Depth, nullable(c.Label), nullable(c.DataType))
	return eris.Wrapf(err, "store: upsert concept %s", c.ConceptName)
}

// Get fetches one concept category; nil when absent.
func (r *ConceptRepo) Get(ctx context.Context, conceptName string) (*model.ConceptCategory, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT concept_name, section, parent_concept, depth, label, data_type
		FROM concept_categories WHERE concept_name = ?`, conceptName)

	c, err := scanConcept(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get concept %s", conceptName)
	}
	return c, nil
}

// BySection lists concepts within one statement section, by depth then name.
func (r *ConceptRepo) BySection(ctx context.Context, section string) ([]model.ConceptCategory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT concept_name, section, parent_concept, depth, label, data_type
		FROM concept_categories WHERE section = ?
		ORDER BY depth, concept_name`, section)
	if err != nil {
		return nil, eris.Wrapf(err, "store: concepts in %s", section)
	}
	defer rows.Close()

	var concepts []model.ConceptCategory
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan concept")
		}
		concepts = append(concepts, *c)
	}
	return concepts, eris.Wrap(rows.Err(), "store: concepts iterate")
}

// Sections lists the distinct statement sections present in the cache.
func (r *ConceptRepo) Sections(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT section FROM concept_categories
		WHERE section IS NOT NULL ORDER BY section`)
	if err != nil {
		return nil, eris.Wrap(err, "store: concept sections")
	}
	defer rows.Close()

	var sections []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, eris.Wrap(err, "store: scan section")
		}
		sections = append(sections, s)
	}
	return sections, eris.Wrap(rows.Err(), "store: sections iterate")
}

func scanConcept(row scannable) (*model.ConceptCategory, error) {
	var c model.ConceptCategory
	var section, parent, label, dataType sql.NullString
	if err := row.Scan(&c.ConceptName, &section, &parent, &c.Depth, &label, &dataType); err != nil {
		return nil, err
	}
	c.Section = section.String
	c.ParentConcept = parent.String
	c.Label = label.String
	c.DataType = dataType.String
	return &c, nil
}
