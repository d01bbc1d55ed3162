package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/cameroon-mark/internal/domain/auth"
	"github.com/xenking/cameroon-mark/internal/domain/discount"
	"github.com/xenking/cameroon-mark/internal/domain/product"
	"github.com/xenking/cameroon-mark/internal/domain/user"
	"github.com/xenking/cameroon-mark/internal/repository"
)

// Seeded ids derive from stable names so reruns find the same rows.
var namespace = uuid.MustParse("8f4b0a52-3c1e-4f6d-9a7b-2e5c8d1f0a93")

func seedID(kind, name string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(kind+":"+name))
}

type seedUser struct {
	email    string
	name     string
	location string
	role     auth.Role
}

var users = []seedUser{
	{email: "admin@cameroon-mark.test", name: "Marketplace Admin", location: "Yaounde", role: auth.Admin},
	{email: "seller@cameroon-mark.test", name: "Penja Spice House", location: "Douala", role: auth.Seller},
	{email: "artisan@cameroon-mark.test", name: "Foumban Crafts", location: "Foumban", role: auth.Seller},
	{email: "buyer@cameroon-mark.test", name: "Ama Buyer", location: "Buea", role: auth.Customer},
	{email: "applicant@cameroon-mark.test", name: "Limbe Fish Co", location: "Limbe", role: auth.PendingSeller},
}

type catalogEntry struct {
	slug     string
	seller   string
	category string
	title    string
	price    decimal.Decimal
	stock    int
	imageURL string
}

func main() {
	var (
		databaseURL  string
		catalogFile  string
		password     string
		bcryptCost   int
		validForDays int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&password, "password", "", "password for every seeded account (or MARKET_SEED_PASSWORD env)")
	flag.IntVar(&bcryptCost, "bcrypt-cost", bcrypt.DefaultCost, "bcrypt cost factor")
	flag.IntVar(&validForDays, "codes-valid-days", 90, "validity of seeded discount codes")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if password == "" {
		password = os.Getenv("MARKET_SEED_PASSWORD")
	}
	if len(password) < 8 {
		lg.Fatal("Seed password of at least 8 characters is required: set --password or MARKET_SEED_PASSWORD")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	s := seeder{lg: lg, now: time.Now().UTC()}
	if err := s.run(ctx, databaseURL, catalogFile, password, bcryptCost, validForDays); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

type seeder struct {
	lg  *zap.Logger
	now time.Time
}

func (s seeder) run(ctx context.Context, databaseURL, catalogFile, password string, cost, validForDays int) error {
	s.lg.Info("Connecting to database")
	pool, err := repository.NewPool(ctx, databaseURL, 2)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	s.lg.Info("Running migrations")
	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	db := repository.NewDB(pool)

	if err := s.seedUsers(ctx, repository.NewUserRepository(db), password, cost); err != nil {
		return errors.Wrap(err, "seed users")
	}
	catalog, err := readCatalog(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog")
	}
	if err := s.seedProducts(ctx, repository.NewProductRepository(db), catalog); err != nil {
		return errors.Wrap(err, "seed products")
	}
	validUntil := s.now.AddDate(0, 0, validForDays)
	if err := s.seedCodes(ctx, repository.NewDiscountRepository(db), validUntil); err != nil {
		return errors.Wrap(err, "seed discount codes")
	}
	return nil
}

func (s seeder) seedUsers(ctx context.Context, repo *repository.UserRepository, password string, cost int) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	for _, su := range users {
		u := &user.User{
			ID:           seedID("user", su.email),
			Email:        su.email,
			PasswordHash: hash,
			Name:         su.name,
			Location:     su.location,
			Role:         su.role,
			CreatedAt:    s.now,
			UpdatedAt:    s.now,
		}
		switch err := repo.Create(ctx, u); {
		case errors.Is(err, user.ErrEmailTaken):
			s.lg.Info("User exists", zap.String("email", su.email))
		case err != nil:
			return errors.Wrapf(err, "create %s", su.email)
		default:
			s.lg.Info("Created user", zap.String("email", su.email), zap.String("role", su.role.String()))
		}
	}
	return nil
}

func readCatalog(path string) ([]catalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []catalogEntry
	d := jx.DecodeBytes(data)
	if err := d.Arr(func(d *jx.Decoder) error {
		var e catalogEntry
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "slug":
				e.slug, err = d.Str()
			case "seller":
				e.seller, err = d.Str()
			case "category":
				e.category, err = d.Str()
			case "title":
				e.title, err = d.Str()
			case "price":
				var raw string
				if raw, err = d.Str(); err == nil {
					e.price, err = decimal.NewFromString(raw)
				}
			case "stock":
				e.stock, err = d.Int()
			case "image_url":
				e.imageURL, err = d.Str()
			default:
				err = d.Skip()
			}
			return errors.Wrap(err, key)
		}); err != nil {
			return errors.Wrapf(err, "entry %d", len(entries))
		}
		entries = append(entries, e)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	return entries, nil
}

func (s seeder) seedProducts(ctx context.Context, repo *repository.ProductRepository, catalog []catalogEntry) error {
	s.lg.Info("Upserting products", zap.Int("count", len(catalog)))
	for _, e := range catalog {
		p := &product.Product{
			ID:         seedID("product", e.slug),
			SellerID:   seedID("user", e.seller),
			CategoryID: seedID("category", e.category),
			Title:      e.title,
			Price:      e.price,
			Stock:      e.stock,
			ImageURL:   e.imageURL,
			CreatedAt:  s.now,
			UpdatedAt:  s.now,
		}
		if err := repo.CreateIfAbsent(ctx, p); err != nil {
			return err
		}
		s.lg.Info("Product ready", zap.String("slug", e.slug), zap.Stringer("id", p.ID))
	}
	return nil
}

func (s seeder) seedCodes(ctx context.Context, repo *repository.DiscountRepository, validUntil time.Time) error {
	limit := 100
	codes := []discount.Code{
		{
			SellerID:    seedID("user", "seller@cameroon-mark.test"),
			Code:        "SAVE10",
			Kind:        discount.KindPercentage,
			Value:       decimal.NewFromInt(10),
			Description: "10% off the spice house",
			UsageLimit:  &limit,
		},
		{
			SellerID:    seedID("user", "seller@cameroon-mark.test"),
			Code:        "SHIPFREE",
			Kind:        discount.KindFreeShipping,
			Description: "Free delivery on orders from 10000 XAF",
			MinPurchase: decimal.NewNullDecimal(decimal.NewFromInt(10000)),
		},
		{
			SellerID:    seedID("user", "artisan@cameroon-mark.test"),
			Code:        "CRAFT3FOR2",
			Kind:        discount.KindBuyXGetY,
			Value:       decimal.NewFromInt(100),
			BuyQuantity: 2,
			GetQuantity: 1,
			Description: "Buy two crafts, the cheapest third is free",
			CategoryIDs: []uuid.UUID{seedID("category", "crafts")},
		},
	}
	for i := range codes {
		c := &codes[i]
		c.ID = seedID("code", c.SellerID.String()+"/"+c.Code)
		c.StartsAt = s.now
		c.EndsAt = validUntil
		c.Active = true
		c.CreatedAt = s.now
		c.UpdatedAt = s.now
		switch err := repo.Create(ctx, c); {
		case errors.Is(err, discount.ErrCodeExists):
			s.lg.Info("Discount code exists", zap.String("code", c.Code))
		case err != nil:
			return errors.Wrapf(err, "create %s", c.Code)
		default:
			s.lg.Info("Created discount code", zap.String("code", c.Code), zap.String("kind", string(c.Kind)))
		}
	}
	return nil
}
