package service

import (
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
)

// StripeService implements PaymentGateway on manual-capture PaymentIntents:
// the authorization is placed when a booking confirms, captured on check-out
// and cancelled when the booking dies before completion.
type StripeService struct{}

func NewStripeService(apiKey string) *StripeService {
	stripe.Key = apiKey
	return &StripeService{}
}

func (s *StripeService) AuthorizeHold(email string, amountCents int64, memo string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amountCents),
		Currency:      stripe.String(string(stripe.CurrencyEUR)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Description:   stripe.String(memo),
		ReceiptEmail:  stripe.String(email),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

func (s *StripeService) CaptureHold(ref string) error {
	_, err := paymentintent.Capture(ref, nil)
	return err
}

func (s *StripeService) ReleaseHold(ref string) error {
	_, err := paymentintent.Cancel(ref, nil)
	return err
}
