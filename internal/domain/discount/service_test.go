package discount

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cameroon-mark/internal/domain/apperr"
	"github.com/xenking/cameroon-mark/internal/domain/auth"
)

type mockCampaigns struct {
	windows map[uuid.UUID]CampaignWindow
}

var errCampaignMissing = apperr.New(apperr.NotFound, "campaign not found")

func (m *mockCampaigns) Window(_ context.Context, id uuid.UUID) (CampaignWindow, error) {
	w, ok := m.windows[id]
	if !ok {
		return CampaignWindow{}, errCampaignMissing
	}
	return w, nil
}

func newTestService(codes ...*Code) (*Service, *memUsageStore, *mockCampaigns) {
	store := newMemUsageStore(codes...)
	campaigns := &mockCampaigns{windows: make(map[uuid.UUID]CampaignWindow)}
	svc := NewService(store, campaigns, auth.NewAuthorizer())
	svc.now = func() time.Time { return fixedNow }
	return svc, store, campaigns
}

func sellerPrincipal() auth.Principal {
	return auth.Principal{UserID: sellerID, Role: auth.Seller}
}

func validDraft() Draft {
	return Draft{
		SellerID: sellerID,
		Code:     "summer-25",
		Kind:     KindPercentage,
		Value:    d("25"),
		StartsAt: fixedNow,
		EndsAt:   fixedNow.Add(30 * 24 * time.Hour),
		Active:   true,
	}
}

func fieldNames(err error) []string {
	var names []string
	for _, f := range apperr.FieldsOf(err) {
		names = append(names, f.Name)
	}
	return names
}

func TestDraft_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(dr *Draft)
		fields []string
	}{
		{name: "valid", mutate: func(*Draft) {}},
		{name: "empty code", mutate: func(dr *Draft) { dr.Code = "  " }, fields: []string{"code"}},
		{name: "bad characters", mutate: func(dr *Draft) { dr.Code = "SAVE 10!" }, fields: []string{"code"}},
		{name: "too long", mutate: func(dr *Draft) { dr.Code = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456" }, fields: []string{"code"}},
		{name: "unknown kind", mutate: func(dr *Draft) { dr.Kind = "bogus" }, fields: []string{"discount_type"}},
		{name: "missing seller", mutate: func(dr *Draft) { dr.SellerID = uuid.Nil }, fields: []string{"seller_id"}},
		{name: "window reversed", mutate: func(dr *Draft) { dr.EndsAt = dr.StartsAt }, fields: []string{"end_date"}},
		{name: "percentage above 100", mutate: func(dr *Draft) { dr.Value = d("100.01") }, fields: []string{"value"}},
		{name: "percentage zero", mutate: func(dr *Draft) { dr.Value = decimal.Zero }, fields: []string{"value"}},
		{
			name: "fixed amount must be positive",
			mutate: func(dr *Draft) {
				dr.Kind = KindFixedAmount
				dr.Value = d("-1")
			},
			fields: []string{"value"},
		},
		{
			name: "free shipping allows zero",
			mutate: func(dr *Draft) {
				dr.Kind = KindFreeShipping
				dr.Value = decimal.Zero
			},
		},
		{
			name: "buy x get y needs quantities",
			mutate: func(dr *Draft) {
				dr.Kind = KindBuyXGetY
				dr.Value = d("100")
			},
			fields: []string{"buy_quantity", "get_quantity"},
		},
		{
			name: "bundle needs two products",
			mutate: func(dr *Draft) {
				dr.Kind = KindBundled
				dr.ProductIDs = []uuid.UUID{shoes}
			},
			fields: []string{"products"},
		},
		{name: "usage limit zero", mutate: func(dr *Draft) { dr.UsageLimit = intPtr(0) }, fields: []string{"usage_limit"}},
		{
			name: "negative minimum and zero cap",
			mutate: func(dr *Draft) {
				dr.MinPurchase = decimal.NewNullDecimal(d("-10"))
				dr.MaxDiscount = decimal.NewNullDecimal(decimal.Zero)
			},
			fields: []string{"min_purchase_amount", "max_discount_amount"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dr := validDraft()
			tt.mutate(&dr)
			err := dr.Validate()
			if len(tt.fields) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apperr.Invalid, apperr.KindOf(err))
			assert.Subset(t, fieldNames(err), tt.fields)
		})
	}
}

func TestService_Create(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, sellerPrincipal(), validDraft())
	require.NoError(t, err)
	assert.Equal(t, "SUMMER-25", created.Code)
	assert.Equal(t, sellerID, created.SellerID)
	assert.Equal(t, fixedNow, created.CreatedAt)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Len(t, store.codes, 1)

	_, err = svc.Create(ctx, sellerPrincipal(), validDraft())
	require.ErrorIs(t, err, ErrCodeExists)

	// The same code is fine in another seller's namespace.
	other := uuid.New()
	dr := validDraft()
	dr.SellerID = other
	_, err = svc.Create(ctx, auth.Principal{UserID: other, Role: auth.Seller}, dr)
	require.NoError(t, err)
}

func TestService_CreateAuthorization(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name string
		p    auth.Principal
		kind apperr.Kind
	}{
		{name: "customer", p: auth.Principal{UserID: uuid.New(), Role: auth.Customer}, kind: apperr.Forbidden},
		{name: "other seller", p: auth.Principal{UserID: uuid.New(), Role: auth.Seller}, kind: apperr.Forbidden},
		{name: "pending seller", p: auth.Principal{UserID: sellerID, Role: auth.PendingSeller}, kind: apperr.Forbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.p, validDraft())
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
	assert.Empty(t, store.codes)

	_, err := svc.Create(ctx, auth.Principal{UserID: uuid.New(), Role: auth.Admin}, validDraft())
	require.NoError(t, err)
}

func TestService_CreateWithinCampaign(t *testing.T) {
	svc, _, campaigns := newTestService()
	ctx := context.Background()

	campaignID := uuid.New()
	campaigns.windows[campaignID] = CampaignWindow{
		SellerID: sellerID,
		StartsAt: fixedNow.Add(-time.Hour),
		EndsAt:   fixedNow.Add(7 * 24 * time.Hour),
	}

	dr := validDraft()
	dr.CampaignID = &campaignID
	_, err := svc.Create(ctx, sellerPrincipal(), dr)
	require.ErrorIs(t, err, ErrCampaignMismatch)

	dr.EndsAt = fixedNow.Add(7 * 24 * time.Hour)
	created, err := svc.Create(ctx, sellerPrincipal(), dr)
	require.NoError(t, err)
	assert.Equal(t, campaignID, *created.CampaignID)

	missing := uuid.New()
	dr.Code = "OTHER"
	dr.CampaignID = &missing
	_, err = svc.Create(ctx, sellerPrincipal(), dr)
	require.ErrorIs(t, err, errCampaignMissing)
}

func TestService_UpdateKeepsUsage(t *testing.T) {
	existing := baseCode()
	existing.UsageLimit = intPtr(10)
	existing.UsageCount = 4
	existing.CreatedAt = fixedNow.Add(-48 * time.Hour)
	svc, store, _ := newTestService(existing)

	dr := validDraft()
	dr.Code = "SAVE15"
	dr.Value = d("15")
	dr.SellerID = uuid.New()

	updated, err := svc.Update(context.Background(), sellerPrincipal(), existing.ID, dr)
	require.NoError(t, err)
	assert.Equal(t, "SAVE15", updated.Code)
	assert.Equal(t, 4, updated.UsageCount)
	assert.Equal(t, sellerID, updated.SellerID)
	assert.Equal(t, existing.CreatedAt, updated.CreatedAt)
	assert.Nil(t, updated.UsageLimit, "update replaces every editable field")

	stored := store.codes[existing.ID]
	assert.True(t, d("15").Equal(stored.Value))

	dr.UsageLimit = intPtr(3)
	_, err = svc.Update(context.Background(), sellerPrincipal(), existing.ID, dr)
	assert.Equal(t, []string{"usage_limit"}, fieldNames(err))
}

func TestService_UpdateRechecksLimitAtWrite(t *testing.T) {
	existing := baseCode()
	existing.UsageLimit = intPtr(10)
	existing.UsageCount = 4
	svc, store, _ := newTestService(existing)
	ctx := context.Background()

	// Two checkouts land between the read and the write.
	store.beforeReplace = func(stored *Code) { stored.UsageCount = 6 }

	dr := validDraft()
	dr.UsageLimit = intPtr(5)
	_, err := svc.Update(ctx, sellerPrincipal(), existing.ID, dr)
	require.Error(t, err)
	assert.Equal(t, apperr.Invalid, apperr.KindOf(err))
	assert.Equal(t, []string{"usage_limit"}, fieldNames(err))
	assert.Equal(t, 10, *store.codes[existing.ID].UsageLimit)

	dr.UsageLimit = intPtr(6)
	updated, err := svc.Update(ctx, sellerPrincipal(), existing.ID, dr)
	require.NoError(t, err)
	assert.Equal(t, 6, updated.UsageCount)
	assert.Equal(t, 6, *store.codes[existing.ID].UsageLimit)
}

func TestService_OtherSellersCodesAreHidden(t *testing.T) {
	existing := baseCode()
	svc, store, _ := newTestService(existing)
	ctx := context.Background()
	intruder := auth.Principal{UserID: uuid.New(), Role: auth.Seller}

	_, err := svc.Get(ctx, intruder, existing.ID)
	require.ErrorIs(t, err, ErrCodeNotFound)

	_, err = svc.Update(ctx, intruder, existing.ID, validDraft())
	require.ErrorIs(t, err, ErrCodeNotFound)

	require.ErrorIs(t, svc.Deactivate(ctx, intruder, existing.ID), ErrCodeNotFound)
	assert.True(t, store.codes[existing.ID].Active)

	require.NoError(t, svc.Deactivate(ctx, sellerPrincipal(), existing.ID))
	assert.False(t, store.codes[existing.ID].Active)
}

func TestService_List(t *testing.T) {
	mine := baseCode()
	theirs := baseCode()
	theirs.SellerID = uuid.New()
	svc, _, _ := newTestService(mine, theirs)

	codes, err := svc.List(context.Background(), sellerPrincipal(), sellerID)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, mine.ID, codes[0].ID)

	_, err = svc.List(context.Background(), sellerPrincipal(), theirs.SellerID)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestService_Generate(t *testing.T) {
	svc, _, _ := newTestService(baseCode())
	ctx := context.Background()

	code, err := svc.Generate(ctx, sellerPrincipal(), sellerID, 0)
	require.NoError(t, err)
	assert.Len(t, code, DefaultGeneratedLength)
	assert.Equal(t, NormalizeCode(code), code)

	dr := validDraft()
	dr.Code = code
	require.NoError(t, dr.Validate())

	code, err = svc.Generate(ctx, sellerPrincipal(), sellerID, 12)
	require.NoError(t, err)
	assert.Len(t, code, 12)

	_, err = svc.Generate(ctx, sellerPrincipal(), sellerID, 64)
	assert.Equal(t, []string{"length"}, fieldNames(err))
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestService_GenerateEntropyFailure(t *testing.T) {
	svc, _, _ := newTestService(baseCode())
	svc.entropy = brokenReader{}

	_, err := svc.Generate(context.Background(), sellerPrincipal(), sellerID, 8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entropy exhausted")
}

func TestRandomCode_Uniform(t *testing.T) {
	const draws = 360_000
	code, err := randomCode(rand.Reader, draws)
	require.NoError(t, err)

	counts := make(map[rune]int)
	for _, r := range code {
		counts[r]++
	}
	require.Len(t, counts, len(codeAlphabet))
	// Byte modulo 36 puts the first four characters near 11250.
	for _, r := range codeAlphabet {
		assert.InDelta(t, draws/len(codeAlphabet), counts[r], 500, "character %q", r)
	}
}
