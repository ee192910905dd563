// Package payments wraps the Stripe checkout-session API that funds wallet
// top-ups.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
)

var ErrNotConfigured = errors.New("payment provider not configured")

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	SuccessURL string
	CancelURL  string
	Currency   string
}

// ProviderError is an error answer from Stripe.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider returned status %d: %s", e.StatusCode, e.Message)
}

// CheckoutSession is the part of a Stripe session the ledger reads.
type CheckoutSession struct {
	ID                string
	URL               string
	ClientReferenceID string
	PaymentStatus     string
	AmountTotal       int64
	Metadata          map[string]string
}

// Paid reports whether the provider has captured the payment.
func (s *CheckoutSession) Paid() bool {
	return s.PaymentStatus == "paid"
}

// AmountCents is the top-up amount recorded when the session was created.
func (s *CheckoutSession) AmountCents() (int64, error) {
	raw, ok := s.Metadata["amount_cents"]
	if !ok {
		if s.AmountTotal > 0 {
			return s.AmountTotal, nil
		}
		return 0, errors.New("session has no amount")
	}
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse session amount: %w", err)
	}
	return amount, nil
}

type CheckoutRequest struct {
	UserID      int64
	Email       string
	AmountCents int64
}

type Client struct {
	sessions *session.Client
	cfg      Config
}

// NewClient builds a session client on its own backend so the timeout and
// base URL stay local to this client. Retries are off: a failed call surfaces
// to the caller, who can verify the session again.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		URL:               stripe.String(cfg.BaseURL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	})
	return &Client{
		sessions: &session.Client{B: backend, Key: cfg.APIKey},
		cfg:      cfg,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.cfg.BaseURL != "" && c.cfg.APIKey != ""
}

func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	log.Printf("[PAYMENTS] Retrieving checkout session %s", sessionID)
	s, err := c.sessions.Get(sessionID, params)
	if err != nil {
		return nil, providerError(err)
	}
	return fromStripe(s), nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, in CheckoutRequest) (*CheckoutSession, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	userID := strconv.FormatInt(in.UserID, 10)
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(c.cfg.Currency),
				UnitAmount: stripe.Int64(in.AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Wallet top-up"),
				},
			},
		}},
		ClientReferenceID: stripe.String(userID),
	}
	if c.cfg.SuccessURL != "" {
		params.SuccessURL = stripe.String(c.cfg.SuccessURL)
	}
	if c.cfg.CancelURL != "" {
		params.CancelURL = stripe.String(c.cfg.CancelURL)
	}
	if in.Email != "" {
		params.CustomerEmail = stripe.String(in.Email)
	}
	params.AddMetadata("user_id", userID)
	params.AddMetadata("amount_cents", strconv.FormatInt(in.AmountCents, 10))
	params.AddMetadata("type", "wallet_topup")
	params.Context = ctx

	log.Printf("[PAYMENTS] Creating checkout session for user %d (%d cents)", in.UserID, in.AmountCents)
	s, err := c.sessions.New(params)
	if err != nil {
		return nil, providerError(err)
	}
	return fromStripe(s), nil
}

func fromStripe(s *stripe.CheckoutSession) *CheckoutSession {
	return &CheckoutSession{
		ID:                s.ID,
		URL:               s.URL,
		ClientReferenceID: s.ClientReferenceID,
		PaymentStatus:     string(s.PaymentStatus),
		AmountTotal:       s.AmountTotal,
		Metadata:          s.Metadata,
	}
}

// providerError turns an API error into a ProviderError. Transport errors,
// including the client timeout, pass through unchanged.
func providerError(err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		log.Printf("[PAYMENTS] Provider returned status %d: %s", serr.HTTPStatusCode, serr.Msg)
		return &ProviderError{StatusCode: serr.HTTPStatusCode, Message: serr.Msg}
	}
	log.Printf("[PAYMENTS] Request failed: %v", err)
	return err
}
