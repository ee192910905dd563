package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/paypr/backend/internal/audit"
	"github.com/paypr/backend/internal/models"
	"github.com/paypr/backend/internal/money"
	"github.com/paypr/backend/internal/repository"
)

// LedgerConfig holds the tunables of the ledger engine.
type LedgerConfig struct {
	PlatformFeeBps     int64
	DailyCapCents      int64
	RefundWindow       time.Duration
	TopupDenominations []int64
}

func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		PlatformFeeBps:     1000,
		DailyCapCents:      1500,
		RefundWindow:       10 * time.Minute,
		TopupDenominations: []int64{500, 1000, 2500, 5000, 10000},
	}
}

const maxNoteLength = 300

// LedgerStore is the persistence the ledger needs. *repository.LedgerRepo
// implements it.
type LedgerStore interface {
	WithTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error
	WalletBalance(ctx context.Context, userID int64) (int64, error)
	FindTopupByReference(ctx context.Context, userID int64, reference string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error)
}

type ArticleLookup interface {
	GetArticle(ctx context.Context, id int64) (*models.Article, error)
	PublisherLookup
}

type EarningsDispatcher interface {
	Dispatch(job EarningsJob)
}

type UnlockIssuer interface {
	Issue(userID, articleID int64, publisherID *int64) (string, time.Time, error)
	Revoke(ctx context.Context, token string) error
}

// Actor is the identity performing a privileged operation. PublisherID is set
// when the caller manages a publisher.
type Actor struct {
	UserID      int64
	IsAdmin     bool
	PublisherID *int64
}

type PurchaseResult struct {
	Transaction    *models.Transaction `json:"transaction"`
	BalanceCents   int64               `json:"balance_cents"`
	Split          money.Breakdown     `json:"split"`
	SplitRules     money.Rules         `json:"split_rules"`
	AccessToken    string              `json:"access_token"`
	TokenExpiresAt time.Time           `json:"token_expires_at"`
}

type RefundResult struct {
	Refund       *models.Transaction `json:"refund"`
	BalanceCents int64               `json:"balance_cents"`
	TokenRevoked bool                `json:"token_revoked"`
}

type MovementResult struct {
	Transaction  *models.Transaction `json:"transaction"`
	BalanceCents int64               `json:"balance_cents"`
}

// LedgerService owns every wallet mutation. Each mutation locks the user's
// wallet row, changes the balance and writes exactly one transaction row in a
// single database transaction.
type LedgerService struct {
	store    LedgerStore
	articles ArticleLookup
	resolver *SplitResolver
	earnings EarningsDispatcher
	tokens   UnlockIssuer
	audit    *audit.Logger
	cfg      LedgerConfig
	now      func() time.Time
}

func NewLedgerService(
	store LedgerStore,
	articles ArticleLookup,
	resolver *SplitResolver,
	earnings EarningsDispatcher,
	tokens UnlockIssuer,
	auditLogger *audit.Logger,
	cfg LedgerConfig,
) *LedgerService {
	return &LedgerService{
		store:    store,
		articles: articles,
		resolver: resolver,
		earnings: earnings,
		tokens:   tokens,
		audit:    auditLogger,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *LedgerService) Config() LedgerConfig {
	return s.cfg
}

// Purchase debits the article price from the user's wallet, books the split and
// returns an unlock credential. The daily cap is checked before the balance.
func (s *LedgerService) Purchase(ctx context.Context, userID, articleID int64) (*PurchaseResult, error) {
	article, err := s.articles.GetArticle(ctx, articleID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, "article not found", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("load article %d: %w", articleID, err)
	}
	if article.Status != models.ArticlePublished {
		return nil, newError(KindInvalidState, "article is not available for purchase", nil)
	}

	var publisher *models.Publisher
	if article.PublisherID != nil {
		publisher, err = s.articles.GetPublisher(ctx, *article.PublisherID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("load publisher %d: %w", *article.PublisherID, err)
		}
	}

	price := article.EffectivePrice(publisher)
	rules, err := s.resolver.Resolve(ctx, article)
	if err != nil {
		return nil, err
	}
	fee, net, breakdown := SplitPurchase(price, s.cfg.PlatformFeeBps, rules)

	txn := &models.Transaction{
		UserID:         userID,
		ArticleID:      &article.ID,
		PublisherID:    article.PublisherID,
		PriceCents:     price,
		FeeCents:       fee,
		NetCents:       net,
		Type:           models.TransactionDebit,
		SplitBreakdown: breakdown,
	}

	var balance int64
	err = s.store.WithTx(ctx, func(tx repository.LedgerTx) error {
		// A concurrent removal either finished before this lock or waits for our commit.
		status, err := tx.ArticleStatusForShare(ctx, article.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return newError(KindNotFound, "article not found", nil)
		}
		if err != nil {
			return fmt.Errorf("lock article %d: %w", article.ID, err)
		}
		if status != models.ArticlePublished {
			return newError(KindInvalidState, "article is not available for purchase", nil)
		}

		current, err := tx.LockWallet(ctx, userID)
		if err != nil {
			return lockError(err)
		}

		if s.cfg.DailyCapCents > 0 {
			spent, err := tx.SumDebitsSince(ctx, userID, s.now().Add(-24*time.Hour))
			if err != nil {
				return fmt.Errorf("sum daily debits: %w", err)
			}
			if spent+price > s.cfg.DailyCapCents {
				return ErrDailyCapExceeded
			}
		}

		if current < price {
			return ErrInsufficientBalance
		}

		balance, err = tx.AdjustWallet(ctx, userID, -price)
		if err != nil {
			return adjustError(err)
		}
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return fmt.Errorf("insert debit: %w", err)
		}
		return nil
	})
	if err != nil {
		s.audit.LogError("PURCHASE", userID, err)
		return nil, err
	}

	s.audit.LogMovement("PURCHASE", txn.ID, userID, price, map[string]any{
		"article_id": article.ID,
		"fee_cents":  fee,
		"split":      breakdown,
	})

	s.earnings.Dispatch(EarningsJob{
		TransactionID: txn.ID,
		AuthorID:      article.AuthorID,
		ArticleID:     txn.ArticleID,
		PublisherID:   txn.PublisherID,
		PriceCents:    price,
		Breakdown:     breakdown,
	})

	result := &PurchaseResult{
		Transaction:  txn,
		BalanceCents: balance,
		Split:        breakdown,
		SplitRules:   rules,
	}
	token, expiresAt, err := s.tokens.Issue(userID, article.ID, article.PublisherID)
	if err != nil {
		log.Printf("[LEDGER] Purchase %d committed but token issue failed: %v", txn.ID, err)
		return result, nil
	}
	result.AccessToken = token
	result.TokenExpiresAt = expiresAt
	return result, nil
}

// Refund reverses one of the user's debits inside the refund window. A debit
// can be refunded once. If accessToken is set it is revoked after the refund
// commits; a revocation failure does not undo the refund.
func (s *LedgerService) Refund(ctx context.Context, userID, transactionID int64, accessToken string) (*RefundResult, error) {
	var (
		refund  *models.Transaction
		balance int64
	)

	err := s.store.WithTx(ctx, func(tx repository.LedgerTx) error {
		if _, err := tx.LockWallet(ctx, userID); err != nil {
			return lockError(err)
		}

		orig, err := tx.GetTransaction(ctx, transactionID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && orig.UserID != userID) {
			return newError(KindNotFound, "transaction not found", nil)
		}
		if err != nil {
			return fmt.Errorf("load transaction %d: %w", transactionID, err)
		}

		if orig.Type != models.TransactionDebit {
			return newError(KindInvalidState, "transaction is not refundable", nil)
		}

		refunded, err := tx.HasRefund(ctx, orig.ID)
		if err != nil {
			return fmt.Errorf("check refund: %w", err)
		}
		if refunded {
			return newError(KindInvalidState, "transaction already refunded", nil)
		}

		if s.now().Sub(orig.CreatedAt) >= s.cfg.RefundWindow {
			return ErrWindowClosed
		}

		balance, err = tx.AdjustWallet(ctx, userID, orig.PriceCents)
		if err != nil {
			return adjustError(err)
		}

		refund = &models.Transaction{
			UserID:      userID,
			ArticleID:   orig.ArticleID,
			PublisherID: orig.PublisherID,
			PriceCents:  orig.PriceCents,
			FeeCents:    0,
			NetCents:    -orig.PriceCents,
			Type:        models.TransactionRefund,
			RefundOf:    &orig.ID,
		}
		if err := tx.InsertTransaction(ctx, refund); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return newError(KindInvalidState, "transaction already refunded", nil)
			}
			return fmt.Errorf("insert refund: %w", err)
		}
		return nil
	})
	if err != nil {
		s.audit.LogError("REFUND", userID, err)
		return nil, err
	}

	s.audit.LogMovement("REFUND", refund.ID, userID, refund.PriceCents, map[string]any{
		"refund_of": transactionID,
	})

	result := &RefundResult{Refund: refund, BalanceCents: balance}
	if accessToken != "" {
		if err := s.tokens.Revoke(ctx, accessToken); err != nil {
			log.Printf("[LEDGER] Refund %d committed but token revocation failed: %v", refund.ID, err)
		} else {
			result.TokenRevoked = true
		}
	}
	return result, nil
}

// Topup credits one of the configured denominations.
func (s *LedgerService) Topup(ctx context.Context, userID, amountCents int64) (*MovementResult, error) {
	if !s.allowedDenomination(amountCents) {
		return nil, newError(KindInvalidAmount, fmt.Sprintf("top-up amount must be one of %v cents", s.cfg.TopupDenominations), nil)
	}
	return s.credit(ctx, userID, amountCents, nil, "TOPUP")
}

func (s *LedgerService) allowedDenomination(amount int64) bool {
	for _, d := range s.cfg.TopupDenominations {
		if d == amount {
			return true
		}
	}
	return false
}

// CreditExternal books a provider-confirmed top-up keyed by reference. If a
// top-up with the same reference already exists for the user it is returned
// with created == false and the wallet is not touched.
func (s *LedgerService) CreditExternal(ctx context.Context, userID, amountCents int64, reference string) (*MovementResult, bool, error) {
	if amountCents <= 0 {
		return nil, false, newError(KindInvalidAmount, "credit amount must be positive", nil)
	}

	var (
		result  *MovementResult
		created bool
	)
	err := s.store.WithTx(ctx, func(tx repository.LedgerTx) error {
		current, err := tx.LockWallet(ctx, userID)
		if err != nil {
			return lockError(err)
		}

		existing, err := tx.FindTopupByReference(ctx, userID, reference)
		if err == nil {
			result = &MovementResult{Transaction: existing, BalanceCents: current}
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("check top-up reference: %w", err)
		}

		result, err = s.creditTx(ctx, tx, userID, amountCents, &reference)
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		existing, findErr := s.store.FindTopupByReference(ctx, userID, reference)
		if findErr != nil {
			return nil, false, fmt.Errorf("resolve duplicate top-up: %w", findErr)
		}
		balance, balErr := s.store.WalletBalance(ctx, userID)
		if balErr != nil {
			return nil, false, fmt.Errorf("load balance: %w", balErr)
		}
		return &MovementResult{Transaction: existing, BalanceCents: balance}, false, nil
	}
	if err != nil {
		s.audit.LogError("TOPUP", userID, err)
		return nil, false, err
	}

	if created {
		s.audit.LogMovement("TOPUP", result.Transaction.ID, userID, amountCents, map[string]any{
			"external_reference": reference,
		})
	}
	return result, created, nil
}

func (s *LedgerService) credit(ctx context.Context, userID, amountCents int64, reference *string, event string) (*MovementResult, error) {
	var result *MovementResult
	err := s.store.WithTx(ctx, func(tx repository.LedgerTx) error {
		if _, err := tx.LockWallet(ctx, userID); err != nil {
			return lockError(err)
		}
		var err error
		result, err = s.creditTx(ctx, tx, userID, amountCents, reference)
		return err
	})
	if err != nil {
		s.audit.LogError(event, userID, err)
		return nil, err
	}
	s.audit.LogMovement(event, result.Transaction.ID, userID, amountCents, nil)
	return result, nil
}

func (s *LedgerService) creditTx(ctx context.Context, tx repository.LedgerTx, userID, amountCents int64, reference *string) (*MovementResult, error) {
	balance, err := tx.AdjustWallet(ctx, userID, amountCents)
	if err != nil {
		return nil, adjustError(err)
	}
	txn := &models.Transaction{
		UserID:            userID,
		PriceCents:        amountCents,
		FeeCents:          0,
		NetCents:          amountCents,
		Type:              models.TransactionTopup,
		ExternalReference: reference,
	}
	if err := tx.InsertTransaction(ctx, txn); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("insert top-up: %w", err)
	}
	return &MovementResult{Transaction: txn, BalanceCents: balance}, nil
}

// AdminAdjust applies a signed manual correction. Positive amounts credit,
// negative amounts debit; a debit can never take the wallet below zero.
func (s *LedgerService) AdminAdjust(ctx context.Context, actor Actor, userID, amountCents int64, note string) (*MovementResult, error) {
	if !actor.IsAdmin {
		return nil, newError(KindUnauthorized, "admin access required", nil)
	}
	if amountCents == 0 {
		return nil, newError(KindInvalidAmount, "amount must be non-zero", nil)
	}

	txType := models.TransactionAdminCredit
	magnitude := amountCents
	if amountCents < 0 {
		txType = models.TransactionAdminDebit
		magnitude = -amountCents
	}

	var notePtr *string
	if note != "" {
		if runes := []rune(note); len(runes) > maxNoteLength {
			note = string(runes[:maxNoteLength])
		}
		notePtr = &note
	}

	var result *MovementResult
	err := s.store.WithTx(ctx, func(tx repository.LedgerTx) error {
		current, err := tx.LockWallet(ctx, userID)
		if err != nil {
			return lockError(err)
		}
		if current+amountCents < 0 {
			return ErrInsufficientBalance
		}

		balance, err := tx.AdjustWallet(ctx, userID, amountCents)
		if err != nil {
			return adjustError(err)
		}

		txn := &models.Transaction{
			UserID:     userID,
			PriceCents: magnitude,
			FeeCents:   0,
			NetCents:   amountCents,
			Type:       txType,
			Note:       notePtr,
		}
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return fmt.Errorf("insert adjustment: %w", err)
		}
		result = &MovementResult{Transaction: txn, BalanceCents: balance}
		return nil
	})
	if err != nil {
		s.audit.LogError("ADMIN_ADJUST", userID, err)
		return nil, err
	}

	s.audit.LogMovement("ADMIN_ADJUST", result.Transaction.ID, userID, amountCents, map[string]any{
		"admin_id": actor.UserID,
		"type":     txType,
	})
	return result, nil
}

// FindExternalTopup returns the top-up already booked for a provider
// reference, or ErrNotFound.
func (s *LedgerService) FindExternalTopup(ctx context.Context, userID int64, reference string) (*models.Transaction, error) {
	txn, err := s.store.FindTopupByReference(ctx, userID, reference)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, "top-up not found", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("check top-up reference: %w", err)
	}
	return txn, nil
}

func (s *LedgerService) Balance(ctx context.Context, userID int64) (int64, error) {
	balance, err := s.store.WalletBalance(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, newError(KindNotFound, "user not found", nil)
	}
	if err != nil {
		return 0, fmt.Errorf("load balance: %w", err)
	}
	return balance, nil
}

// ListTransactions returns the newest transactions first. limit is clamped to
// [1, 200].
func (s *LedgerService) ListTransactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	list, err := s.store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if list == nil {
		list = []models.Transaction{}
	}
	return list, nil
}

func lockError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return newError(KindNotFound, "user not found", nil)
	}
	return fmt.Errorf("lock wallet: %w", err)
}

func adjustError(err error) error {
	if errors.Is(err, repository.ErrInsufficientFunds) {
		return ErrInsufficientBalance
	}
	return fmt.Errorf("adjust wallet: %w", err)
}
