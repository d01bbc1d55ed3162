// Command discount-import bulk-loads a seller's discount codes from
// gzip-compressed text files.
//
// Each line holds CODE[,TYPE[,VALUE[,USAGE_LIMIT]]]. Blank lines and lines
// starting with '#' are skipped. Missing columns take the flag defaults.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/cameroon-mark/internal/domain/auth"
	"github.com/xenking/cameroon-mark/internal/domain/discount"
	"github.com/xenking/cameroon-mark/internal/repository"
)

type options struct {
	databaseURL  string
	sellerID     string
	campaignID   string
	dataDir      string
	defaultKind  string
	defaultValue string
	buyQuantity  int
	getQuantity  int
	validFor     time.Duration
	concurrency  int
	dryRun       bool
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.sellerID, "seller-id", "", "seller owning the imported codes")
	flag.StringVar(&opts.campaignID, "campaign-id", "", "attach codes to this campaign and use its dates")
	flag.StringVar(&opts.dataDir, "data-dir", "", "import every *.gz file in this directory")
	flag.StringVar(&opts.defaultKind, "default-type", string(discount.KindPercentage), "discount type for lines without one")
	flag.StringVar(&opts.defaultValue, "default-value", "10", "discount value for lines without one")
	flag.IntVar(&opts.buyQuantity, "buy-quantity", 2, "buy quantity of buy_x_get_y codes")
	flag.IntVar(&opts.getQuantity, "get-quantity", 1, "get quantity of buy_x_get_y codes")
	flag.DurationVar(&opts.validFor, "valid-for", 30*24*time.Hour, "validity of codes without a campaign")
	flag.IntVar(&opts.concurrency, "concurrency", 8, "concurrent inserts")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "parse and deduplicate without writing")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	files := flag.Args()
	if opts.dataDir != "" {
		matches, err := filepath.Glob(filepath.Join(opts.dataDir, "*.gz"))
		if err != nil {
			lg.Fatal("Bad data dir", zap.Error(err))
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		lg.Fatal("No input files: pass .gz files or --data-dir")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	stats, err := run(ctx, lg, opts, files)
	if err != nil {
		lg.Fatal("Discount import failed", zap.Error(err))
	}
	lg.Info("Discount import completed", stats.fields()...)
}

func run(ctx context.Context, lg *zap.Logger, opts options, files []string) (Stats, error) {
	sellerID, err := uuid.Parse(opts.sellerID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "parse seller id")
	}
	value, err := decimal.NewFromString(opts.defaultValue)
	if err != nil {
		return Stats{}, errors.Wrap(err, "parse default value")
	}

	pool, err := repository.NewPool(ctx, opts.databaseURL, int32(max(opts.concurrency, 1)+1))
	if err != nil {
		return Stats{}, errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	db := repository.NewDB(pool)
	var (
		users     = repository.NewUserRepository(db)
		codes     = repository.NewDiscountRepository(db)
		campaigns = repository.NewCampaignRepository(db)
	)

	seller, err := users.GetByID(ctx, sellerID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "load seller")
	}
	if seller.Role != auth.Seller {
		return Stats{}, errors.Errorf("user %s is %s, not an approved seller", seller.ID, seller.Role)
	}

	now := time.Now().UTC()
	template := discount.Draft{
		SellerID:    sellerID,
		Kind:        discount.Kind(opts.defaultKind),
		Value:       value,
		BuyQuantity: opts.buyQuantity,
		GetQuantity: opts.getQuantity,
		StartsAt:    now,
		EndsAt:      now.Add(opts.validFor),
		Active:      true,
	}
	if opts.campaignID != "" {
		id, err := uuid.Parse(opts.campaignID)
		if err != nil {
			return Stats{}, errors.Wrap(err, "parse campaign id")
		}
		w, err := campaigns.Window(ctx, id)
		if err != nil {
			return Stats{}, errors.Wrap(err, "load campaign")
		}
		template.CampaignID = &id
		template.StartsAt, template.EndsAt = w.StartsAt, w.EndsAt
	}

	var creator Creator = discount.NewService(codes, campaigns, auth.NewAuthorizer())
	if opts.dryRun {
		creator = dryRun{}
	}

	imp := NewImporter(creator, codes, seller.Principal(), template, opts.concurrency, lg)
	if err := imp.Preload(ctx); err != nil {
		return Stats{}, err
	}
	return imp.Import(ctx, files)
}

// dryRun accepts every draft without storing it.
type dryRun struct{}

func (dryRun) Create(_ context.Context, _ auth.Principal, d discount.Draft) (*discount.Code, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &discount.Code{Code: discount.NormalizeCode(d.Code)}, nil
}
