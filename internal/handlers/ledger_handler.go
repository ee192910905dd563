package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/paypr/backend/internal/models"
	"github.com/paypr/backend/internal/money"
	"github.com/paypr/backend/internal/services"
)

// Ledger is the wallet engine surface the HTTP layer drives.
type Ledger interface {
	Purchase(ctx context.Context, userID, articleID int64) (*services.PurchaseResult, error)
	Refund(ctx context.Context, userID, transactionID int64, accessToken string) (*services.RefundResult, error)
	Topup(ctx context.Context, userID, amountCents int64) (*services.MovementResult, error)
	AdminAdjust(ctx context.Context, actor services.Actor, userID, amountCents int64, note string) (*services.MovementResult, error)
	Balance(ctx context.Context, userID int64) (int64, error)
	ListTransactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error)
}

type AccessTokens interface {
	Verify(ctx context.Context, token string, expectedArticleID int64) (*services.UnlockClaims, bool)
	RenderQR(token string, size int) ([]byte, error)
}

type Reconciler interface {
	ConfirmAndCredit(ctx context.Context, userID int64, sessionID string) (*services.ReconcileResult, error)
	StartCheckout(ctx context.Context, userID int64, email string, amountCents int64) (*services.CheckoutResult, error)
}

// EventSink takes analytics events without blocking the request.
type EventSink interface {
	Track(e models.Event)
}

const qrSize = 256

type LedgerHandler struct {
	ledger    Ledger
	tokens    AccessTokens
	reconcile Reconciler
	events    EventSink
}

func NewLedgerHandler(ledger Ledger, tokens AccessTokens, reconcile Reconciler, events EventSink) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, tokens: tokens, reconcile: reconcile, events: events}
}

type payRequest struct {
	ArticleID int64 `json:"article_id" validate:"required,gt=0"`
}

type payResponse struct {
	AccessToken    string          `json:"access_token"`
	TokenExpiresAt string          `json:"token_expires_at"`
	BalanceCents   int64           `json:"balance_cents"`
	PriceCents     int64           `json:"price_cents"`
	TransactionID  int64           `json:"transaction_id"`
	Split          money.Breakdown `json:"split"`
	SplitRules     money.Rules     `json:"split_rules"`
}

// Pay debits the caller's wallet for an article and returns an unlock token.
// @Summary Purchase article
// @Description Debit the article price from the wallet, book the split and issue an unlock token
// @Tags Ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body handlers.payRequest true "Purchase request"
// @Success 200 {object} handlers.payResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 402 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Router /pay [post]
func (h *LedgerHandler) Pay(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req payRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.ledger.Purchase(r.Context(), id.UserID, req.ArticleID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if h.events != nil {
		h.events.Track(models.Event{
			UserID:      &id.UserID,
			Name:        services.EventPay,
			ArticleID:   &req.ArticleID,
			PublisherID: res.Transaction.PublisherID,
			Metadata: map[string]any{
				"price_cents": res.Transaction.PriceCents,
				"ip":          r.RemoteAddr,
				"user_agent":  r.UserAgent(),
			},
		})
	}

	writeJSON(w, http.StatusOK, payResponse{
		AccessToken:    res.AccessToken,
		TokenExpiresAt: res.TokenExpiresAt.UTC().Format(time.RFC3339),
		BalanceCents:   res.BalanceCents,
		PriceCents:     res.Transaction.PriceCents,
		TransactionID:  res.Transaction.ID,
		Split:          res.Split,
		SplitRules:     res.SplitRules,
	})
}

type verifyRequest struct {
	AccessToken string `json:"access_token" validate:"required"`
	ArticleID   int64  `json:"article_id" validate:"required,gt=0"`
}

// Verify reports whether an unlock token grants access to an article. It never
// says why a token is invalid.
// @Summary Verify unlock token
// @Description Check an unlock token against an article
// @Tags Access
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body handlers.verifyRequest true "Token and article"
// @Success 200 {object} object{valid=bool}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /verify [post]
func (h *LedgerHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	_, valid := h.tokens.Verify(r.Context(), req.AccessToken, req.ArticleID)
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// AccessQR renders a still-valid unlock token as a PNG QR code for handoff to
// another device.
// @Summary Unlock token QR code
// @Description Render a valid unlock token as a base64 PNG QR code
// @Tags Access
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body handlers.verifyRequest true "Token and article"
// @Success 200 {object} object{qr_image=string,format=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /access/qr [post]
func (h *LedgerHandler) AccessQR(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, valid := h.tokens.Verify(r.Context(), req.AccessToken, req.ArticleID); !valid {
		services.SendCodedError(w, http.StatusBadRequest, services.KindInvalidState, "access token is not valid for this article")
		return
	}

	png, err := h.tokens.RenderQR(req.AccessToken, qrSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"qr_image": base64.StdEncoding.EncodeToString(png),
		"format":   "image/png",
	})
}

type refundRequest struct {
	TransactionID int64  `json:"transaction_id" validate:"required,gt=0"`
	AccessToken   string `json:"access_token,omitempty"`
}

// Refund reverses one of the caller's debits inside the refund window.
// @Summary Refund purchase
// @Description Reverse a debit inside the refund window and revoke its unlock token
// @Tags Ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body handlers.refundRequest true "Refund request"
// @Success 200 {object} object{ok=bool,balance_cents=int64,refund_id=int64,token_revoked=bool}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /refund [post]
func (h *LedgerHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req refundRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.ledger.Refund(r.Context(), id.UserID, req.TransactionID, req.AccessToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"balance_cents": res.BalanceCents,
		"refund_id":     res.Refund.ID,
		"token_revoked": res.TokenRevoked,
	})
}

// Wallet returns the caller's balance.
// @Summary Wallet balance
// @Tags Account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{balance_cents=int64,email=string}
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /account/wallet [get]
func (h *LedgerHandler) Wallet(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	balance, err := h.ledger.Balance(r.Context(), id.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balance_cents": balance,
		"email":         id.Email,
	})
}

// Transactions lists the caller's wallet history, newest first. The limit
// query parameter is clamped by the ledger.
// @Summary Transaction history
// @Tags Account
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum rows, clamped to 1..200"
// @Success 200 {object} object{items=[]models.Transaction}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /account/transactions [get]
func (h *LedgerHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			services.SendCodedError(w, http.StatusBadRequest, services.CodeInvalidRequest, "Invalid limit")
			return
		}
		limit = n
	}

	txns, err := h.ledger.ListTransactions(r.Context(), id.UserID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": txns})
}

type amountRequest struct {
	AmountCents int64 `json:"amount_cents" validate:"required,gt=0"`
}

// Topup credits one of the configured top-up denominations.
// @Summary Top up wallet
// @Description Credit one of the configured top-up denominations
// @Tags Account
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body handlers.amountRequest true "Top-up amount"
// @Success 200 {object} object{ok=bool,balance_cents=int64,transaction_id=int64}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /account/topup [post]
func (h *LedgerHandler) Topup(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.ledger.Topup(r.Context(), id.UserID, req.AmountCents)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"balance_cents":  res.BalanceCents,
		"transaction_id": res.Transaction.ID,
	})
}

// StartCheckout opens a card checkout for a wallet top-up.
// @Summary Start checkout
// @Description Open a payment provider checkout session for a wallet top-up
// @Tags Account
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body handlers.amountRequest true "Top-up amount"
// @Success 200 {object} services.CheckoutResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /account/topup/checkout [post]
func (h *LedgerHandler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.reconcile.StartCheckout(r.Context(), id.UserID, id.Email, req.AmountCents)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type verifySessionRequest struct {
	SessionID string `json:"session_id" validate:"required,max=255"`
}

// VerifySession credits a paid checkout session exactly once. Replays return
// the original credit with already_credited set.
// @Summary Confirm checkout session
// @Description Credit a paid checkout session once; replays report already_credited
// @Tags Account
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body handlers.verifySessionRequest true "Checkout session"
// @Success 200 {object} object{ok=bool,balance_cents=int64,transaction_id=int64,already_credited=bool}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /account/topup/verify-session [post]
func (h *LedgerHandler) VerifySession(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req verifySessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.reconcile.ConfirmAndCredit(r.Context(), id.UserID, req.SessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":               true,
		"balance_cents":    res.BalanceCents,
		"transaction_id":   res.Transaction.ID,
		"already_credited": res.AlreadyCredited,
	})
}

type adminCreditRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Note        string `json:"note,omitempty"`
}

// AdminCredit applies a signed manual adjustment to another user's wallet.
// @Summary Adjust user wallet
// @Description Apply a signed manual credit or debit to a user's wallet
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param userId path int true "User ID"
// @Param request body handlers.adminCreditRequest true "Adjustment"
// @Success 200 {object} object{ok=bool,user_id=int64,balance_cents=int64,transaction_id=int64}
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/users/{userId}/credit [post]
func (h *LedgerHandler) AdminCredit(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	var req adminCreditRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.ledger.AdminAdjust(r.Context(), id.Actor(), userID, req.AmountCents, req.Note)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"user_id":        userID,
		"balance_cents":  res.BalanceCents,
		"transaction_id": res.Transaction.ID,
	})
}
