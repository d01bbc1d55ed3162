package main

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
	"github.com/xenking/cameroon-mark/internal/domain/auth"
	"github.com/xenking/cameroon-mark/internal/domain/discount"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000
)

// Creator stores a validated code.
type Creator interface {
	Create(ctx context.Context, p auth.Principal, d discount.Draft) (*discount.Code, error)
}

// Store answers lookups about codes already stored for a seller.
type Store interface {
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]discount.Code, error)
	Exists(ctx context.Context, sellerID uuid.UUID, code string) (bool, error)
}

// Stats counts import outcomes.
type Stats struct {
	Read       int64
	Invalid    int64
	Duplicates int64
	Created    int64
}

func (s Stats) fields() []zap.Field {
	return []zap.Field{
		zap.Int64("read", s.Read),
		zap.Int64("invalid", s.Invalid),
		zap.Int64("duplicates", s.Duplicates),
		zap.Int64("created", s.Created),
	}
}

// Importer streams code files into a Creator. Codes already stored or seen
// earlier in the run are skipped.
type Importer struct {
	creator   Creator
	store     Store
	principal auth.Principal
	template  discount.Draft
	sem       *semaphore.Weighted
	lg        *zap.Logger

	mu   sync.Mutex
	seen *bloom.BloomFilter

	read, invalid, duplicates, created atomic.Int64
}

func NewImporter(creator Creator, store Store, p auth.Principal, template discount.Draft, concurrency int, lg *zap.Logger) *Importer {
	return &Importer{
		creator:   creator,
		store:     store,
		principal: p,
		template:  template,
		sem:       semaphore.NewWeighted(int64(max(concurrency, 1))),
		lg:        lg,
		seen:      bloom.NewWithEstimates(bloomCapacity, bloomFPR),
	}
}

// Preload marks the seller's stored codes as seen.
func (i *Importer) Preload(ctx context.Context) error {
	existing, err := i.store.ListBySeller(ctx, i.template.SellerID)
	if err != nil {
		return errors.Wrap(err, "list existing codes")
	}
	i.mu.Lock()
	for _, c := range existing {
		i.seen.AddString(c.Code)
	}
	i.mu.Unlock()
	i.lg.Info("Preloaded existing codes", zap.Int("count", len(existing)))
	return nil
}

// Import reads every file concurrently and stores each new code.
func (i *Importer) Import(ctx context.Context, files []string) (Stats, error) {
	g, ctx := errgroup.WithContext(ctx)
	for _, path := range files {
		g.Go(func() error {
			return streamGzFile(ctx, path, func(line string) error {
				return i.handle(ctx, g, path, line)
			})
		})
	}
	err := g.Wait()
	return i.stats(), err
}

func (i *Importer) stats() Stats {
	return Stats{
		Read:       i.read.Load(),
		Invalid:    i.invalid.Load(),
		Duplicates: i.duplicates.Load(),
		Created:    i.created.Load(),
	}
}

func (i *Importer) handle(ctx context.Context, g *errgroup.Group, path, line string) error {
	d, ok, err := parseRecord(line, i.template)
	if !ok {
		return nil
	}
	if n := i.read.Add(1); n%progressEvery == 0 {
		i.lg.Info("Import progress", i.stats().fields()...)
	}
	if err != nil {
		i.invalid.Add(1)
		i.lg.Warn("Skipping malformed line", zap.String("file", path), zap.String("line", line), zap.Error(err))
		return nil
	}

	i.mu.Lock()
	maybeSeen := i.seen.TestAndAddString(d.Code)
	i.mu.Unlock()

	if err := i.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	g.Go(func() error {
		defer i.sem.Release(1)
		return i.insert(ctx, d, maybeSeen)
	})
	return nil
}

func (i *Importer) insert(ctx context.Context, d discount.Draft, maybeSeen bool) error {
	if maybeSeen {
		// Bloom hits may be false positives.
		exists, err := i.store.Exists(ctx, d.SellerID, d.Code)
		if err != nil {
			return errors.Wrapf(err, "check %s", d.Code)
		}
		if exists {
			i.duplicates.Add(1)
			return nil
		}
	}

	_, err := i.creator.Create(ctx, i.principal, d)
	switch {
	case err == nil:
		i.created.Add(1)
		return nil
	case errors.Is(err, discount.ErrCodeExists):
		i.duplicates.Add(1)
		return nil
	case apperr.KindOf(err) == apperr.Invalid:
		i.invalid.Add(1)
		i.lg.Warn("Rejected code", zap.String("code", d.Code), zap.Error(err))
		return nil
	default:
		return errors.Wrapf(err, "create %s", d.Code)
	}
}

// parseRecord turns one line into a draft based on template. ok is false
// for blank and comment lines.
func parseRecord(line string, template discount.Draft) (d discount.Draft, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return d, false, nil
	}

	d = template
	cols := strings.Split(line, ",")
	if len(cols) > 4 {
		return d, true, errors.Errorf("expected at most 4 columns, got %d", len(cols))
	}
	for j := range cols {
		cols[j] = strings.TrimSpace(cols[j])
	}

	d.Code = discount.NormalizeCode(cols[0])
	if d.Code == "" {
		return d, true, errors.New("empty code")
	}
	if len(cols) > 1 && cols[1] != "" {
		d.Kind = discount.Kind(strings.ToLower(cols[1]))
		if !d.Kind.Valid() {
			return d, true, errors.Errorf("unknown discount type %q", cols[1])
		}
	}
	if len(cols) > 2 && cols[2] != "" {
		if d.Value, err = decimal.NewFromString(cols[2]); err != nil {
			return d, true, errors.Wrap(err, "value")
		}
	}
	if len(cols) > 3 && cols[3] != "" {
		limit, err := strconv.Atoi(cols[3])
		if err != nil || limit < 1 {
			return d, true, errors.Errorf("usage limit %q must be a positive integer", cols[3])
		}
		d.UsageLimit = &limit
	}
	return d, true, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
