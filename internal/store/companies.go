package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"github.com/sells-group/finloom/internal/model"
)

// CompanyRepo persists company master records.
type CompanyRepo struct {
	db *sql.DB
}

// Upsert inserts or updates a company. Existing non-null fields survive a
// sparse update via COALESCE.
func (r *CompanyRepo) Upsert(ctx context.Context, c model.Company) error {
	cik := model.PadCIK(c.CIK)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO companies (cik, ticker, name, sic, sic_description,
			state_of_incorporation, fiscal_year_end, ein, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(cik) DO UPDATE SET
			ticker                 = excluded.ticker,
			name                   = excluded.name,
			sic                    = COALESCE(excluded.sic, companies.sic),
			sic_description        = COALESCE(excluded.sic_description, companies.sic_description),
			state_of_incorporation = COALESCE(excluded.state_of_incorporation, companies.state_of_incorporation),
			fiscal_year_end        = COALESCE(excluded.fiscal_year_end, companies.fiscal_year_end),
			ein                    = COALESCE(excluded.ein, companies.ein),
			updated_at             = datetime('now')`,
		cik, c.Ticker, c.Name, nullable(c.SIC), nullable(c.SICDescription),
		nullable(c.StateOfInc), nullable(c.FiscalYearEnd), nullable(c.EIN))
	return eris.Wrapf(err, "store: upsert company %s", cik)
}

// Get fetches one company by CIK; nil when absent.
func (r *CompanyRepo) Get(ctx context.Context, cik string) (*model.Company, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT cik, ticker, name, sic, sic_description,
			state_of_incorporation, fiscal_year_end, ein
		FROM companies WHERE cik = ?`, model.PadCIK(cik))

	c, err := scanCompany(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get company %s", cik)
	}
	return c, nil
}

// GetByTicker fetches one company by ticker; nil when absent.
func (r *CompanyRepo) GetByTicker(ctx context.Context, ticker string) (*model.Company, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT cik, ticker, name, sic, sic_description,
			state_of_incorporation, fiscal_year_end, ein
		FROM companies WHERE ticker = ?`, ticker)

	c, err := scanCompany(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get company by ticker %s", ticker)
	}
	return c, nil
}

// ListAll returns every company ordered by ticker.
func (r *CompanyRepo) ListAll(ctx context.Context) ([]model.Company, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cik, ticker, name, sic, sic_description,
			state_of_incorporation, fiscal_year_end, ein
		FROM companies ORDER BY ticker`)
	if err != nil {
		return nil, eris.Wrap(err, "store: list companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan company")
		}
		companies = append(companies, *c)
	}
	return companies, eris.Wrap(rows.Err(), "store: list companies iterate")
}

func scanCompany(row scannable) (*model.Company, error) {
	var c model.Company
	var sic, sicDesc, state, fye, ein sql.NullString
	if err := row.Scan(&c.CIK, &c.Ticker, &c.Name, &sic, &sicDesc, &state, &fye, &ein); err != nil {
		return nil, err
	}
	c.SIC = sic.String
	c.SICDescription = sicDesc.String
	c.StateOfInc = state.String
	c.FiscalYearEnd = fye.String
	c.EIN = ein.String
	return &c, nil
}
