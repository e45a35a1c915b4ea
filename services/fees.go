// services/fees.go
package services

// Stripe's standard card schedule: 2.9% + 30¢, charged on the gross.
// Percentage kept in basis points so all math stays in integers.
const (
	stripeFeeBasisPoints int64 = 290
	stripeFixedFeeCents  int64 = 30
	basisPointsPerWhole  int64 = 10000
)

// FeeBreakdown is the result of grossing a net amount up for the
// payment-processor fee.
type FeeBreakdown struct {
	NetCents   int64 `json:"net_cents"`
	FeeCents   int64 `json:"fee_cents"`
	TotalCents int64 `json:"total_cents"`
}

// PayoutTotalBreakdown is what the founder is charged to fund a payout:
// the pool amount (contributors), the platform fee (operator), and the
// processor fee layered on top of both. Contributors and the platform
// always receive their stated amounts in full.
type PayoutTotalBreakdown struct {
	PoolAmountCents   int64 `json:"pool_amount_cents"`
	PlatformFeeCents  int64 `json:"platform_fee_cents"`
	SubtotalCents     int64 `json:"subtotal_cents"`
	StripeFeeCents    int64 `json:"stripe_fee_cents"`
	FounderTotalCents int64 `json:"founder_total_cents"`
}

// CalculateStripeFee computes the gross charge needed so the recipient
// nets netCents after the processor takes its percentage + fixed fee.
// Rounding is always ceiling: the net amount is never under-collected.
func CalculateStripeFee(netCents int64) (*FeeBreakdown, error) {
	if netCents < 0 {
		return nil, ErrInvalidAmount("net amount must not be negative")
	}

	// gross = ceil((net + fixed) / (1 − pct)) in integer basis points
	numerator := (netCents + stripeFixedFeeCents) * basisPointsPerWhole
	denominator := basisPointsPerWhole - stripeFeeBasisPoints
	grossCents := (numerator + denominator - 1) / denominator

	return &FeeBreakdown{
		NetCents:   netCents,
		FeeCents:   grossCents - netCents,
		TotalCents: grossCents,
	}, nil
}

// FounderPayoutTotal layers the processor fee on top of pool amount +
// platform fee. 100% of payment-processing cost lands on the founder.
func FounderPayoutTotal(poolAmountCents, platformFeeCents int64) (*PayoutTotalBreakdown, error) {
	if poolAmountCents < 0 || platformFeeCents < 0 {
		return nil, ErrInvalidAmount("amounts must not be negative")
	}

	subtotal := poolAmountCents + platformFeeCents
	fee, err := CalculateStripeFee(subtotal)
	if err != nil {
		return nil, err
	}

	return &PayoutTotalBreakdown{
		PoolAmountCents:   poolAmountCents,
		PlatformFeeCents:  platformFeeCents,
		SubtotalCents:     subtotal,
		StripeFeeCents:    fee.FeeCents,
		FounderTotalCents: subtotal + fee.FeeCents,
	}, nil
}
