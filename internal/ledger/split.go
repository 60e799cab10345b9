package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// EqualSplits divides total into n shares rounded to cents. Any remainder
// cents are assigned to the first shares, one cent each, so the shares
// always sum to the total exactly and the outcome is deterministic for a
// given participant order.
func EqualSplits(total decimal.Decimal, n int) ([]decimal.Decimal, error) {
	if n <= 0 {
		return nil, fmt.Errorf("must have at least one participant")
	}
	if total.Sign() < 0 {
		return nil, fmt.Errorf("total cannot be negative")
	}

	base := total.Div(decimal.NewFromInt(int64(n))).RoundDown(2)
	shares := make([]decimal.Decimal, n)
	for i := range shares {
		shares[i] = base
	}

	cent := decimal.New(1, -2)
	remainder := total.Sub(base.Mul(decimal.NewFromInt(int64(n))))
	for i := 0; remainder.Sign() > 0 && i < n; i++ {
		shares[i] = shares[i].Add(cent)
		remainder = remainder.Sub(cent)
	}
	return shares, nil
}
