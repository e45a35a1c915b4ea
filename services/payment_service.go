// services/payment_service.go
package services

import (
	"fmt"
	"os"

	"bounty-board-system/models"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// PaymentService wraps Stripe Connect. It is only ever called after the
// data store transaction commits — a Stripe outage can delay money
// movement but can never leave the database inconsistent.
type PaymentService struct {
	api        *client.API
	successURL string
	cancelURL  string
}

// NewPaymentServiceFromEnv returns nil when Stripe is not configured,
// which callers treat as "payments disabled".
func NewPaymentServiceFromEnv() *PaymentService {
	key := os.Getenv("STRIPE_SECRET_KEY")
	if key == "" {
		return nil
	}
	api := &client.API{}
	api.Init(key, nil)
	return &PaymentService{
		api:        api,
		successURL: os.Getenv("STRIPE_SUCCESS_URL"),
		cancelURL:  os.Getenv("STRIPE_CANCEL_URL"),
	}
}

// CreateFounderCheckout builds the checkout session charging the founder
// the full grossed-up total: pool amount + platform fee + processor fee.
func (p *PaymentService) CreateFounderCheckout(payout *models.Payout) (string, error) {
	breakdown, err := FounderPayoutTotal(payout.PoolAmountCents, payout.PlatformFeeCents)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("Contributor payout %s", payout.PeriodLabel)
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount: stripe.Int64(breakdown.FounderTotalCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
		}},
		SuccessURL: stripe.String(p.successURL),
		CancelURL:  stripe.String(p.cancelURL),
	}
	params.AddMetadata("payout_id", payout.ID)
	params.AddMetadata("pool_amount_cents", fmt.Sprintf("%d", breakdown.PoolAmountCents))
	params.AddMetadata("platform_fee_cents", fmt.Sprintf("%d", breakdown.PlatformFeeCents))
	params.AddMetadata("stripe_fee_cents", fmt.Sprintf("%d", breakdown.StripeFeeCents))

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("checkout session: %w", err)
	}
	return session.URL, nil
}

// TransferToContributor moves a recipient's share to their connected
// account. Transfers for one payout share a transfer group.
func (p *PaymentService) TransferToContributor(stripeAccountID string, amountCents int64, payoutID string) error {
	_, err := p.api.Transfers.New(&stripe.TransferParams{
		Amount:        stripe.Int64(amountCents),
		Currency:      stripe.String(string(stripe.CurrencyUSD)),
		Destination:   stripe.String(stripeAccountID),
		TransferGroup: stripe.String("payout_" + payoutID),
	})
	if err != nil {
		return fmt.Errorf("transfer to %s: %w", stripeAccountID, err)
	}
	return nil
}
