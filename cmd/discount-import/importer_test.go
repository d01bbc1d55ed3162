package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/cameroon-mark/internal/domain/auth"
	"github.com/xenking/cameroon-mark/internal/domain/discount"
)

type fakeCodes struct {
	mu       sync.Mutex
	existing map[string]bool
	created  []discount.Draft
	failOn   string
}

func (f *fakeCodes) ListBySeller(_ context.Context, sellerID uuid.UUID) ([]discount.Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []discount.Code
	for code := range f.existing {
		out = append(out, discount.Code{SellerID: sellerID, Code: code})
	}
	return out, nil
}

func (f *fakeCodes) Exists(_ context.Context, _ uuid.UUID, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[code], nil
}

func (f *fakeCodes) Create(_ context.Context, _ auth.Principal, d discount.Draft) (*discount.Code, error) {
	if d.Code == f.failOn {
		return nil, errors.New("connection reset")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existing[d.Code] {
		return nil, discount.ErrCodeExists
	}
	if f.existing == nil {
		f.existing = map[string]bool{}
	}
	f.existing[d.Code] = true
	f.created = append(f.created, d)
	return &discount.Code{Code: d.Code}, nil
}

func testTemplate() discount.Draft {
	now := time.Now().UTC()
	return discount.Draft{
		SellerID:    uuid.New(),
		Kind:        discount.KindPercentage,
		Value:       decimal.NewFromInt(10),
		BuyQuantity: 2,
		GetQuantity: 1,
		StartsAt:    now,
		EndsAt:      now.Add(time.Hour),
		Active:      true,
	}
}

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseRecord(t *testing.T) {
	tmpl := testTemplate()

	tests := []struct {
		name    string
		line    string
		skip    bool
		wantErr bool
		check   func(t *testing.T, d discount.Draft)
	}{
		{name: "blank", line: "   ", skip: true},
		{name: "comment", line: "# header", skip: true},
		{
			name: "code only takes defaults",
			line: " save5 ",
			check: func(t *testing.T, d discount.Draft) {
				assert.Equal(t, "SAVE5", d.Code)
				assert.Equal(t, discount.KindPercentage, d.Kind)
				assert.True(t, d.Value.Equal(decimal.NewFromInt(10)))
				assert.Nil(t, d.UsageLimit)
			},
		},
		{
			name: "all columns",
			line: "FLAT500,FIXED_AMOUNT,500.50,3",
			check: func(t *testing.T, d discount.Draft) {
				assert.Equal(t, discount.KindFixedAmount, d.Kind)
				assert.True(t, d.Value.Equal(decimal.RequireFromString("500.50")))
				require.NotNil(t, d.UsageLimit)
				assert.Equal(t, 3, *d.UsageLimit)
			},
		},
		{
			name: "empty columns keep defaults",
			line: "KEEP,,,7",
			check: func(t *testing.T, d discount.Draft) {
				assert.Equal(t, discount.KindPercentage, d.Kind)
				assert.Equal(t, 7, *d.UsageLimit)
			},
		},
		{name: "unknown type", line: "X1,mystery", wantErr: true},
		{name: "bad value", line: "X1,percentage,ten", wantErr: true},
		{name: "bad limit", line: "X1,percentage,10,0", wantErr: true},
		{name: "too many columns", line: "X1,percentage,10,1,extra", wantErr: true},
		{name: "empty code", line: ",percentage", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok, err := parseRecord(tt.line, tmpl)
			if tt.skip {
				assert.False(t, ok)
				return
			}
			assert.True(t, ok)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tmpl.SellerID, d.SellerID)
			tt.check(t, d)
		})
	}
}

func TestImporter_Import(t *testing.T) {
	dir := t.TempDir()
	a := writeGz(t, dir, "a.gz",
		"# spring batch",
		"NEW1",
		"OLD1",
		"SHARED,fixed_amount,250",
		"BAD,percentage,150",
	)
	b := writeGz(t, dir, "b.gz",
		"NEW2,percentage,5,10",
		"shared",
		"X,unknown",
	)

	store := &fakeCodes{existing: map[string]bool{"OLD1": true}}
	tmpl := testTemplate()
	p := auth.Principal{UserID: tmpl.SellerID, Role: auth.Seller}
	imp := NewImporter(store, store, p, tmpl, 3, zap.NewNop())

	ctx := context.Background()
	require.NoError(t, imp.Preload(ctx))
	stats, err := imp.Import(ctx, []string{a, b})
	require.NoError(t, err)

	assert.Equal(t, int64(7), stats.Read)
	assert.Equal(t, int64(3), stats.Created)
	assert.Equal(t, int64(2), stats.Duplicates)
	// Percentage above 100 is rejected by validation, unknown type by parsing.
	assert.Equal(t, int64(2), stats.Invalid)

	var codes []string
	for _, d := range store.created {
		codes = append(codes, d.Code)
	}
	assert.ElementsMatch(t, []string{"NEW1", "NEW2", "SHARED"}, codes)
}

func TestImporter_AbortsOnStoreFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeGz(t, dir, "codes.gz", "OK1", "BROKEN", "OK2")

	store := &fakeCodes{failOn: "BROKEN"}
	tmpl := testTemplate()
	imp := NewImporter(store, store, auth.Principal{UserID: tmpl.SellerID, Role: auth.Seller}, tmpl, 1, zap.NewNop())

	_, err := imp.Import(context.Background(), []string{path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BROKEN")
}

func TestImporter_MissingFile(t *testing.T) {
	store := &fakeCodes{}
	tmpl := testTemplate()
	imp := NewImporter(store, store, auth.Principal{UserID: tmpl.SellerID, Role: auth.Seller}, tmpl, 1, zap.NewNop())

	_, err := imp.Import(context.Background(), []string{filepath.Join(t.TempDir(), "absent.gz")})
	require.Error(t, err)
}

func TestDryRun_Validates(t *testing.T) {
	tmpl := testTemplate()
	tmpl.Code = "ok"
	c, err := dryRun{}.Create(context.Background(), auth.Principal{}, tmpl)
	require.NoError(t, err)
	assert.Equal(t, "OK", c.Code)

	tmpl.Value = decimal.Zero
	_, err = dryRun{}.Create(context.Background(), auth.Principal{}, tmpl)
	require.Error(t, err)
}
