package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/go-chi/chi/v5"
	mW "github.com/paypr/backend/internal/middleware"
	"github.com/paypr/backend/internal/models"
	"github.com/paypr/backend/internal/money"
	"github.com/paypr/backend/internal/services"
	"github.com/stretchr/testify/mock"
)

type MockLedger struct{ mock.Mock }

func (m *MockLedger) Purchase(ctx context.Context, userID, articleID int64) (*services.PurchaseResult, error) {
	args := m.Called(ctx, userID, articleID)
	res, _ := args.Get(0).(*services.PurchaseResult)
	return res, args.Error(1)
}

func (m *MockLedger) Refund(ctx context.Context, userID, transactionID int64, accessToken string) (*services.RefundResult, error) {
	args := m.Called(ctx, userID, transactionID, accessToken)
	res, _ := args.Get(0).(*services.RefundResult)
	return res, args.Error(1)
}

func (m *MockLedger) Topup(ctx context.Context, userID, amountCents int64) (*services.MovementResult, error) {
	args := m.Called(ctx, userID, amountCents)
	res, _ := args.Get(0).(*services.MovementResult)
	return res, args.Error(1)
}

func (m *MockLedger) AdminAdjust(ctx context.Context, actor services.Actor, userID, amountCents int64, note string) (*services.MovementResult, error) {
	args := m.Called(ctx, actor, userID, amountCents, note)
	res, _ := args.Get(0).(*services.MovementResult)
	return res, args.Error(1)
}

func (m *MockLedger) Balance(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) ListTransactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	args := m.Called(ctx, userID, limit)
	res, _ := args.Get(0).([]models.Transaction)
	return res, args.Error(1)
}

type MockTokens struct{ mock.Mock }

func (m *MockTokens) Verify(ctx context.Context, token string, articleID int64) (*services.UnlockClaims, bool) {
	args := m.Called(ctx, token, articleID)
	claims, _ := args.Get(0).(*services.UnlockClaims)
	return claims, args.Bool(1)
}

func (m *MockTokens) RenderQR(token string, size int) ([]byte, error) {
	args := m.Called(token, size)
	png, _ := args.Get(0).([]byte)
	return png, args.Error(1)
}

type MockReconciler struct{ mock.Mock }

func (m *MockReconciler) ConfirmAndCredit(ctx context.Context, userID int64, sessionID string) (*services.ReconcileResult, error) {
	args := m.Called(ctx, userID, sessionID)
	res, _ := args.Get(0).(*services.ReconcileResult)
	return res, args.Error(1)
}

func (m *MockReconciler) StartCheckout(ctx context.Context, userID int64, email string, amountCents int64) (*services.CheckoutResult, error) {
	args := m.Called(ctx, userID, email, amountCents)
	res, _ := args.Get(0).(*services.CheckoutResult)
	return res, args.Error(1)
}

type MockSplitAdmin struct{ mock.Mock }

func (m *MockSplitAdmin) ListRules(ctx context.Context, actor services.Actor, publisherID int64) (*services.SplitRulesResult, error) {
	args := m.Called(ctx, actor, publisherID)
	res, _ := args.Get(0).(*services.SplitRulesResult)
	return res, args.Error(1)
}

func (m *MockSplitAdmin) ReplaceRules(ctx context.Context, actor services.Actor, publisherID int64, rules []models.SplitRule) (*services.SplitRulesResult, error) {
	args := m.Called(ctx, actor, publisherID, rules)
	res, _ := args.Get(0).(*services.SplitRulesResult)
	return res, args.Error(1)
}

func (m *MockSplitAdmin) SetArticleSplits(ctx context.Context, actor services.Actor, articleID int64, splits money.Rules) (int64, error) {
	args := m.Called(ctx, actor, articleID, splits)
	return args.Get(0).(int64), args.Error(1)
}

type MockArticles struct{ mock.Mock }

func (m *MockArticles) Delete(ctx context.Context, userID, articleID int64) (services.DeleteOutcome, error) {
	args := m.Called(ctx, userID, articleID)
	return args.Get(0).(services.DeleteOutcome), args.Error(1)
}

type MockEarnings struct{ mock.Mock }

func (m *MockEarnings) SummaryForUser(ctx context.Context, userID int64) (*models.EarningsSummary, error) {
	args := m.Called(ctx, userID)
	res, _ := args.Get(0).(*models.EarningsSummary)
	return res, args.Error(1)
}

type recordingEvents struct {
	events []models.Event
}

func (r *recordingEvents) Track(e models.Event) {
	r.events = append(r.events, e)
}

type fixture struct {
	ledger    *MockLedger
	tokens    *MockTokens
	reconcile *MockReconciler
	splits    *MockSplitAdmin
	articles  *MockArticles
	earnings  *MockEarnings
	events    *recordingEvents
	router    chi.Router
}

var (
	reader = mW.Identity{UserID: 7, Email: "reader@example.com"}
	admin  = mW.Identity{UserID: 1, IsAdmin: true}
)

// newFixture mounts the routes behind a stub that plays the auth middleware's
// role. A nil identity leaves the request anonymous.
func newFixture(identity *mW.Identity) *fixture {
	f := &fixture{
		ledger:    &MockLedger{},
		tokens:    &MockTokens{},
		reconcile: &MockReconciler{},
		splits:    &MockSplitAdmin{},
		articles:  &MockArticles{},
		earnings:  &MockEarnings{},
		events:    &recordingEvents{},
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if identity != nil {
				req = req.WithContext(mW.WithIdentity(req.Context(), *identity))
			}
			next.ServeHTTP(w, req)
		})
	})
	RegisterRoutes(r,
		NewLedgerHandler(f.ledger, f.tokens, f.reconcile, f.events),
		NewPublisherHandler(f.splits, f.articles, f.earnings),
	)
	f.router = r
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}
