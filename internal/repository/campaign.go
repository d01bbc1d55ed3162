package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/cameroon-mark/internal/domain/campaign"
	"github.com/xenking/cameroon-mark/internal/domain/discount"
)

const (
	campaignColumns = `id, seller_id, name, description, campaign_type, start_date, end_date,
		is_active, created_at, updated_at`

	insertCampaignSQL = `INSERT INTO campaigns (` + campaignColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	getCampaignSQL = `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	listCampaignsSQL = `SELECT ` + campaignColumns + ` FROM campaigns
		WHERE seller_id = $1 AND (NOT $2 OR is_active)
		ORDER BY created_at DESC, id`
)

var (
	_ campaign.Repository = (*CampaignRepository)(nil)
	_ discount.Campaigns  = (*CampaignRepository)(nil)
)

// CampaignRepository implements campaign.Repository backed by PostgreSQL.
type CampaignRepository struct {
	db *DB
}

// NewCampaignRepository returns a CampaignRepository on db.
func NewCampaignRepository(db *DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts c.
func (r *CampaignRepository) Create(ctx context.Context, c *campaign.Campaign) error {
	_, err := r.db.conn(ctx).Exec(ctx, insertCampaignSQL,
		c.ID, c.SellerID, c.Name, c.Description, string(c.Type), c.StartsAt, c.EndsAt,
		c.Active, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting campaign %s: %w", c.ID, err)
	}
	return nil
}

// Get returns a campaign by id.
func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getCampaignSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting campaign %s: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCampaign)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, campaign.ErrNotFound
		}
		return nil, fmt.Errorf("getting campaign %s: %w", id, err)
	}
	return &c, nil
}

// ListBySeller returns the seller's campaigns, newest first. activeOnly
// filters on the active flag; the caller checks the window.
func (r *CampaignRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID, activeOnly bool) ([]campaign.Campaign, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listCampaignsSQL, sellerID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("listing campaigns: %w", err)
	}
	return pgx.CollectRows(rows, scanCampaign)
}

// Window returns the owner and dates codes of the campaign must fit into.
func (r *CampaignRepository) Window(ctx context.Context, id uuid.UUID) (discount.CampaignWindow, error) {
	c, err := r.Get(ctx, id)
	if err != nil {
		return discount.CampaignWindow{}, err
	}
	return discount.CampaignWindow{SellerID: c.SellerID, StartsAt: c.StartsAt, EndsAt: c.EndsAt}, nil
}

func scanCampaign(row pgx.CollectableRow) (campaign.Campaign, error) {
	var (
		c   campaign.Campaign
		typ string
	)
	err := row.Scan(
		&c.ID, &c.SellerID, &c.Name, &c.Description, &typ, &c.StartsAt, &c.EndsAt,
		&c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	c.Type = campaign.Type(typ)
	return c, err
}
