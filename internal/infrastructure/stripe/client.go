// Package stripe charges cards through the Stripe charges API.
package stripe

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/example/ticketing/internal/apperr"
	"github.com/example/ticketing/internal/domain/payment"
	"github.com/sirupsen/logrus"
	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/charge"
)

const DefaultURL = stripego.APIURL

type Client struct {
	charges charge.Client
	timeout time.Duration
}

// NewClient talks to baseURL, which tests point at a local server. Network
// retries are left to the idempotency key and the caller.
func NewClient(baseURL, key string, timeout time.Duration, logger *logrus.Entry) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	backend := stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		URL:               stripego.String(baseURL),
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     logger.WithField("client", "stripe"),
	})

	return &Client{
		charges: charge.Client{B: backend, Key: key},
		timeout: timeout,
	}
}

// Charge creates a charge. Declined cards are business rule errors; every
// other failure is an infrastructure error.
func (c *Client) Charge(ctx context.Context, req payment.ChargeRequest) (string, error) {
	params := &stripego.ChargeParams{
		Amount:   stripego.Int64(req.AmountCents),
		Currency: stripego.String(req.Currency),
		Source:   &stripego.PaymentSourceSourceParams{Token: stripego.String(req.Token)},
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	ch, err := c.charges.New(params)
	if err != nil {
		var stripeErr *stripego.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripego.ErrorTypeCard {
			return "", apperr.BusinessRule(stripeErr.Msg)
		}
		return "", apperr.Infrastructure("calling payment processor", err)
	}
	if ch.ID == "" {
		return "", apperr.Infrastructure("charge response without id", nil)
	}
	return ch.ID, nil
}
