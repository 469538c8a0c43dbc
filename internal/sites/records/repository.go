// Package records is the remote, account-scoped copy of every site.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/primebarber/site-backend/internal/sites/domain"
)

const (
	defaultIndustry    = "Barbershop"
	defaultBrandColour = "#f4a100"
)

// ErrNotApplied means the row exists but belongs to another user or already
// holds a newer copy; it was left as is.
var ErrNotApplied = errors.New("site record not updated")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

type row struct {
	ID               string         `db:"id"`
	UserID           string         `db:"user_id"`
	CompanyName      string         `db:"company_name"`
	ServiceArea      string         `db:"service_area"`
	Phone            string         `db:"phone"`
	SiteData         []byte         `db:"site_data"`
	LastSaved        int64          `db:"last_saved"`
	DeployedURL      sql.NullString `db:"deployed_url"`
	DeploymentStatus string         `db:"deployment_status"`
	CustomDomain     sql.NullString `db:"custom_domain"`
	DomainOrderID    sql.NullString `db:"domain_order_id"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

const upsertQuery = `
INSERT INTO sites (
	id, user_id, company_name, industry, service_area, phone, brand_colour,
	site_data, last_saved, deployed_url, deployment_status, custom_domain, domain_order_id, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
ON CONFLICT (id) DO UPDATE SET
	user_id = EXCLUDED.user_id,
	company_name = EXCLUDED.company_name,
	service_area = EXCLUDED.service_area,
	phone = EXCLUDED.phone,
	site_data = EXCLUDED.site_data,
	last_saved = EXCLUDED.last_saved,
	deployed_url = EXCLUDED.deployed_url,
	deployment_status = EXCLUDED.deployment_status,
	custom_domain = EXCLUDED.custom_domain,
	domain_order_id = EXCLUDED.domain_order_id,
	updated_at = now()
WHERE sites.user_id = EXCLUDED.user_id AND sites.last_saved <= EXCLUDED.last_saved`

// Upsert writes the whole record. Inline image payloads never leave the
// device, so they are blanked before the write. An existing row is only
// replaced by its owner and never by an older stamp; otherwise ErrNotApplied.
func (r *Repository) Upsert(ctx context.Context, site domain.SiteInstance, userID string) error {
	if userID == "" {
		return domain.ErrUserRequired
	}
	if site.ID == "" {
		return domain.ErrInvalidSiteID
	}

	data, err := json.Marshal(site.Data.WithoutInlineImages())
	if err != nil {
		return fmt.Errorf("failed to marshal site data: %w", err)
	}

	status := site.DeploymentStatus
	if !status.Valid() {
		status = domain.StatusDraft
	}

	res, err := r.db.ExecContext(ctx, upsertQuery,
		site.ID,
		userID,
		site.FormInputs.ShopName,
		defaultIndustry,
		site.FormInputs.Area,
		site.FormInputs.Phone,
		defaultBrandColour,
		data,
		site.LastSaved,
		nullString(site.DeployedURL),
		string(status),
		nullString(site.CustomDomain),
		nullString(site.DomainOrderID),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert site %s: %w", site.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to upsert site %s: %w", site.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotApplied, site.ID)
	}
	return nil
}

const listQuery = `
SELECT id, user_id, company_name, service_area, phone, site_data, last_saved,
	deployed_url, deployment_status, custom_domain, domain_order_id, updated_at
FROM sites
WHERE user_id = $1
ORDER BY updated_at DESC`

// ListByUser returns the user's sites, most recently updated first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.SiteInstance, error) {
	if userID == "" {
		return nil, domain.ErrUserRequired
	}

	var rows []row
	if err := r.db.SelectContext(ctx, &rows, listQuery, userID); err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}

	out := make([]domain.SiteInstance, 0, len(rows))
	for _, rw := range rows {
		s, err := rw.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (rw row) toDomain() (domain.SiteInstance, error) {
	var data domain.WebsiteData
	if len(rw.SiteData) > 0 {
		if err := json.Unmarshal(rw.SiteData, &data); err != nil {
			return domain.SiteInstance{}, fmt.Errorf("failed to unmarshal site_data for %s: %w", rw.ID, err)
		}
	}

	lastSaved := rw.LastSaved
	if lastSaved == 0 {
		// rows written before last_saved existed
		lastSaved = rw.UpdatedAt.UnixMilli()
	}

	return domain.SiteInstance{
		ID:   rw.ID,
		Data: data,
		FormInputs: domain.ShopInputs{
			ShopName: rw.CompanyName,
			Area:     rw.ServiceArea,
			Phone:    rw.Phone,
		},
		LastSaved:        lastSaved,
		DeployedURL:      ptr(rw.DeployedURL),
		DeploymentStatus: domain.DeploymentStatus(rw.DeploymentStatus),
		CustomDomain:     ptr(rw.CustomDomain),
		DomainOrderID:    ptr(rw.DomainOrderID),
	}, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func ptr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
