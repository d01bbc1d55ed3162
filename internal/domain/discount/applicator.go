package discount

import (
	"slices"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places money is stored with.
const MoneyScale = 2

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Discount is the effect of a code on a cart.
type Discount struct {
	Amount       decimal.Decimal
	FreeShipping bool
}

// Strategy computes the raw discount for one kind. The Applicator caps,
// rounds and clamps whatever a strategy returns.
type Strategy interface {
	Discount(code *Code, cart Cart) (decimal.Decimal, error)
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(code *Code, cart Cart) (decimal.Decimal, error)

func (f StrategyFunc) Discount(code *Code, cart Cart) (decimal.Decimal, error) {
	return f(code, cart)
}

// Applicator computes discounts using one Strategy per Kind.
type Applicator struct {
	strategies map[Kind]Strategy
}

// Option configures an Applicator.
type Option func(*Applicator)

// WithStrategy registers s for kind, replacing the built-in one.
func WithStrategy(kind Kind, s Strategy) Option {
	return func(a *Applicator) {
		a.strategies[kind] = s
	}
}

// NewApplicator returns an Applicator with the built-in strategies.
func NewApplicator(opts ...Option) *Applicator {
	a := &Applicator{
		strategies: map[Kind]Strategy{
			KindPercentage:   StrategyFunc(applyPercentage),
			KindFixedAmount:  StrategyFunc(applyFixed),
			KindFreeShipping: StrategyFunc(applyFreeShipping),
			KindBuyXGetY:     StrategyFunc(applyBuyXGetY),
			KindBundled:      StrategyFunc(applyBundle),
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply computes the discount of code on cart. Only lines the code is
// eligible for are discounted. The amount is rounded to MoneyScale and
// always satisfies 0 <= amount <= eligible subtotal.
func (a *Applicator) Apply(code *Code, cart Cart) (Discount, error) {
	s, ok := a.strategies[code.Kind]
	if !ok {
		return Discount{}, ErrUnsupportedKind
	}

	ceiling := eligibleSubtotal(code, cart)
	amount, err := s.Discount(code, cart)
	if err != nil {
		return Discount{}, errors.Wrapf(err, "apply %s discount", code.Kind)
	}
	if code.MaxDiscount.Valid {
		amount = decimal.Min(amount, code.MaxDiscount.Decimal)
	}
	amount = clamp(amount.Round(MoneyScale), ceiling)

	return Discount{
		Amount:       amount,
		FreeShipping: code.Kind == KindFreeShipping,
	}, nil
}

// eligibleSubtotal sums the lines code applies to.
func eligibleSubtotal(code *Code, cart Cart) decimal.Decimal {
	sum := zero
	for _, l := range cart {
		if code.Eligible(l) {
			sum = sum.Add(l.Total())
		}
	}
	return sum
}

func applyPercentage(code *Code, cart Cart) (decimal.Decimal, error) {
	return eligibleSubtotal(code, cart).Mul(code.Value).Div(hundred), nil
}

func applyFixed(code *Code, cart Cart) (decimal.Decimal, error) {
	return decimal.Min(code.Value, eligibleSubtotal(code, cart)), nil
}

func applyFreeShipping(*Code, Cart) (decimal.Decimal, error) {
	return zero, nil
}

// applyBuyXGetY discounts the cheapest GetQuantity units out of every
// BuyQuantity+GetQuantity eligible units by Value percent.
func applyBuyXGetY(code *Code, cart Cart) (decimal.Decimal, error) {
	if code.BuyQuantity < 1 || code.GetQuantity < 1 {
		return zero, errors.Errorf("buy %d get %d is not a valid offer", code.BuyQuantity, code.GetQuantity)
	}

	var eligible Cart
	units := 0
	for _, l := range cart {
		if code.Eligible(l) && l.Quantity > 0 {
			eligible = append(eligible, l)
			units += l.Quantity
		}
	}
	free := units / (code.BuyQuantity + code.GetQuantity) * code.GetQuantity
	if free == 0 {
		return zero, nil
	}

	slices.SortStableFunc(eligible, func(a, b Line) int {
		return a.UnitPrice.Cmp(b.UnitPrice)
	})
	sum := zero
	for _, l := range eligible {
		n := min(free, l.Quantity)
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(n))))
		free -= n
		if free == 0 {
			break
		}
	}
	return sum.Mul(code.Value).Div(hundred), nil
}

// applyBundle treats ProductIDs as a bundle and discounts every complete set
// found in the cart by Value percent of the bundle price.
func applyBundle(code *Code, cart Cart) (decimal.Decimal, error) {
	if len(code.ProductIDs) == 0 {
		return zero, errors.New("bundle has no products")
	}

	qty := make(map[uuid.UUID]int, len(code.ProductIDs))
	price := make(map[uuid.UUID]decimal.Decimal, len(code.ProductIDs))
	for _, l := range cart {
		if !slices.Contains(code.ProductIDs, l.ProductID) {
			continue
		}
		qty[l.ProductID] += l.Quantity
		if p, ok := price[l.ProductID]; !ok || l.UnitPrice.LessThan(p) {
			price[l.ProductID] = l.UnitPrice
		}
	}

	sets := -1
	bundlePrice := zero
	for _, id := range code.ProductIDs {
		n := qty[id]
		if sets < 0 || n < sets {
			sets = n
		}
		bundlePrice = bundlePrice.Add(price[id])
	}
	if sets <= 0 {
		return zero, nil
	}
	return bundlePrice.Mul(decimal.NewFromInt(int64(sets))).Mul(code.Value).Div(hundred), nil
}

// clamp bounds d to [0, ceiling].
func clamp(d, ceiling decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	if d.GreaterThan(ceiling) {
		return ceiling
	}
	return d
}
