package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/paypr/backend/internal/models"
	"github.com/paypr/backend/internal/payments"
)

const (
	MinCheckoutCents int64 = 100
	MaxCheckoutCents int64 = 50000
)

type CheckoutProvider interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*payments.CheckoutSession, error)
	CreateCheckoutSession(ctx context.Context, in payments.CheckoutRequest) (*payments.CheckoutSession, error)
}

type ReconcileResult struct {
	Transaction     *models.Transaction `json:"transaction"`
	BalanceCents    int64               `json:"balance_cents"`
	AlreadyCredited bool                `json:"already_credited"`
}

type CheckoutResult struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// ReconciliationService turns provider-confirmed payments into wallet credit.
// A session is credited at most once no matter how often it is confirmed.
type ReconciliationService struct {
	ledger   *LedgerService
	provider CheckoutProvider
}

func NewReconciliationService(ledger *LedgerService, provider CheckoutProvider) *ReconciliationService {
	return &ReconciliationService{ledger: ledger, provider: provider}
}

func (s *ReconciliationService) ConfirmAndCredit(ctx context.Context, userID int64, sessionID string) (*ReconcileResult, error) {
	if sessionID == "" {
		return nil, newError(KindInvalidState, "session id is required", nil)
	}

	existing, err := s.ledger.FindExternalTopup(ctx, userID, sessionID)
	if err == nil {
		balance, err := s.ledger.Balance(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &ReconcileResult{Transaction: existing, BalanceCents: balance, AlreadyCredited: true}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	session, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		log.Printf("[RECONCILE] Provider lookup for session %s failed: %v", sessionID, err)
		return nil, newError(KindExternalProvider, "could not confirm payment with provider, try again", err)
	}

	if session.ClientReferenceID != strconv.FormatInt(userID, 10) {
		return nil, newError(KindUnauthorized, "payment session does not belong to this account", nil)
	}
	if !session.Paid() {
		return nil, newError(KindExternalProvider, fmt.Sprintf("payment not completed (status %q)", session.PaymentStatus), nil)
	}

	amount, err := session.AmountCents()
	if err != nil || amount <= 0 {
		return nil, newError(KindExternalProvider, "payment session has no valid amount", err)
	}

	credited, created, err := s.ledger.CreditExternal(ctx, userID, amount, sessionID)
	if err != nil {
		return nil, err
	}
	if created {
		log.Printf("[RECONCILE] Credited %d cents to user %d from session %s", amount, userID, sessionID)
	}
	return &ReconcileResult{
		Transaction:     credited.Transaction,
		BalanceCents:    credited.BalanceCents,
		AlreadyCredited: !created,
	}, nil
}

// StartCheckout opens a provider checkout for a wallet top-up.
func (s *ReconciliationService) StartCheckout(ctx context.Context, userID int64, email string, amountCents int64) (*CheckoutResult, error) {
	if amountCents < MinCheckoutCents || amountCents > MaxCheckoutCents {
		return nil, newError(KindInvalidAmount, fmt.Sprintf("amount must be between %d and %d cents", MinCheckoutCents, MaxCheckoutCents), nil)
	}

	session, err := s.provider.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		UserID:      userID,
		Email:       email,
		AmountCents: amountCents,
	})
	if err != nil {
		log.Printf("[RECONCILE] Failed to create checkout for user %d: %v", userID, err)
		return nil, newError(KindExternalProvider, "could not start checkout, try again", err)
	}
	return &CheckoutResult{SessionID: session.ID, CheckoutURL: session.URL}, nil
}
