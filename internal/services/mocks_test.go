package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/paypr/backend/internal/models"
	"github.com/paypr/backend/internal/money"
	"github.com/paypr/backend/internal/payments"
	"github.com/paypr/backend/internal/repository"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memLedger is an in-memory LedgerStore. WithTx serializes callers the way a
// row lock on the wallet would and restores the previous state when fn fails.
type memLedger struct {
	mu      sync.Mutex
	clock   *testClock
	wallets map[int64]int64
	txns    []models.Transaction
	nextID  int64

	// hideReferences makes the in-transaction reference lookup miss, as if a
	// concurrent request inserted the same top-up after our check.
	hideReferences bool

	// articles backs ArticleStatusForShare. beforeTx runs ahead of each
	// transaction to stage a concurrent write.
	articles *memArticles
	beforeTx func()
}

func newMemLedger(clock *testClock) *memLedger {
	return &memLedger{clock: clock, wallets: map[int64]int64{}, nextID: 1}
}

func (m *memLedger) WithTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error {
	if m.beforeTx != nil {
		m.beforeTx()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	wallets := make(map[int64]int64, len(m.wallets))
	for k, v := range m.wallets {
		wallets[k] = v
	}
	count, nextID := len(m.txns), m.nextID

	if err := fn(&memTx{m: m}); err != nil {
		m.wallets, m.txns, m.nextID = wallets, m.txns[:count], nextID
		return err
	}
	return nil
}

func (m *memLedger) WalletBalance(ctx context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.wallets[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return balance, nil
}

func (m *memLedger) FindTopupByReference(ctx context.Context, userID int64, reference string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findTopup(userID, reference)
}

func (m *memLedger) ListTransactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for i := len(m.txns) - 1; i >= 0 && len(out) < limit; i-- {
		if m.txns[i].UserID == userID {
			out = append(out, m.txns[i])
		}
	}
	return out, nil
}

func (m *memLedger) findTopup(userID int64, reference string) (*models.Transaction, error) {
	for i := range m.txns {
		t := m.txns[i]
		if t.UserID == userID && t.Type == models.TransactionTopup && t.ExternalReference != nil && *t.ExternalReference == reference {
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memLedger) balance(userID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[userID]
}

func (m *memLedger) count(txType models.TransactionType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.txns {
		if t.Type == txType {
			n++
		}
	}
	return n
}

// seedDebit inserts a historical debit directly.
func (m *memLedger) seedDebit(userID, price int64, at time.Time) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.txns = append(m.txns, models.Transaction{
		ID: id, UserID: userID, PriceCents: price, NetCents: price,
		Type: models.TransactionDebit, CreatedAt: at,
	})
	return id
}

type memTx struct {
	m *memLedger
}

func (t *memTx) LockWallet(ctx context.Context, userID int64) (int64, error) {
	balance, ok := t.m.wallets[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return balance, nil
}

func (t *memTx) AdjustWallet(ctx context.Context, userID, delta int64) (int64, error) {
	balance, ok := t.m.wallets[userID]
	if !ok || balance+delta < 0 {
		return 0, repository.ErrInsufficientFunds
	}
	t.m.wallets[userID] = balance + delta
	return balance + delta, nil
}

func (t *memTx) SumDebitsSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var total int64
	for _, txn := range t.m.txns {
		if txn.UserID == userID && txn.Type == models.TransactionDebit && !txn.CreatedAt.Before(since) {
			total += txn.PriceCents
		}
	}
	return total, nil
}

func (t *memTx) InsertTransaction(ctx context.Context, txn *models.Transaction) error {
	for _, existing := range t.m.txns {
		if txn.RefundOf != nil && existing.RefundOf != nil && *existing.RefundOf == *txn.RefundOf {
			return repository.ErrDuplicate
		}
		if txn.Type == models.TransactionTopup && existing.Type == models.TransactionTopup &&
			txn.ExternalReference != nil && existing.ExternalReference != nil &&
			existing.UserID == txn.UserID && *existing.ExternalReference == *txn.ExternalReference {
			return repository.ErrDuplicate
		}
	}
	txn.ID = t.m.nextID
	t.m.nextID++
	txn.CreatedAt = t.m.clock.Now()
	t.m.txns = append(t.m.txns, *txn)
	return nil
}

func (t *memTx) GetTransaction(ctx context.Context, id int64) (*models.Transaction, error) {
	for i := range t.m.txns {
		if t.m.txns[i].ID == id {
			txn := t.m.txns[i]
			return &txn, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *memTx) HasRefund(ctx context.Context, id int64) (bool, error) {
	for _, txn := range t.m.txns {
		if txn.RefundOf != nil && *txn.RefundOf == id {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) FindTopupByReference(ctx context.Context, userID int64, reference string) (*models.Transaction, error) {
	if t.m.hideReferences {
		return nil, repository.ErrNotFound
	}
	return t.m.findTopup(userID, reference)
}

// memArticles implements every article-side store the services use.
func (t *memTx) ArticleStatusForShare(ctx context.Context, articleID int64) (models.ArticleStatus, error) {
	a, err := t.m.articles.GetArticle(ctx, articleID)
	if err != nil {
		return "", err
	}
	return a.Status, nil
}

type memArticles struct {
	mu         sync.Mutex
	articles   map[int64]*models.Article
	publishers map[int64]*models.Publisher
	debits     map[int64]int64
	deleted    []int64
}

func newMemArticles() *memArticles {
	return &memArticles{
		articles:   map[int64]*models.Article{},
		publishers: map[int64]*models.Publisher{},
		debits:     map[int64]int64{},
	}
}

func (m *memArticles) GetArticle(ctx context.Context, id int64) (*models.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memArticles) GetPublisher(ctx context.Context, id int64) (*models.Publisher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.publishers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memArticles) RemoveArticle(ctx context.Context, articleID, authorID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[articleID]
	if !ok || a.AuthorID == nil || *a.AuthorID != authorID {
		return false, repository.ErrNotFound
	}
	if m.debits[articleID] > 0 {
		a.Status = models.ArticleArchived
		return true, nil
	}
	delete(m.articles, articleID)
	m.deleted = append(m.deleted, articleID)
	return false, nil
}

func (m *memArticles) SetCustomSplits(ctx context.Context, articleID int64, splits money.Rules) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[articleID]
	if !ok {
		return repository.ErrNotFound
	}
	a.CustomSplits = splits
	return nil
}

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []EarningsJob
}

func (d *recordingDispatcher) Dispatch(job EarningsJob) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
}

func (d *recordingDispatcher) Jobs() []EarningsJob {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]EarningsJob(nil), d.jobs...)
}

type memRevocations struct {
	mu      sync.Mutex
	hashes  map[string]bool
	lookErr error
}

func newMemRevocations() *memRevocations {
	return &memRevocations{hashes: map[string]bool{}}
}

func (r *memRevocations) IsRevoked(ctx context.Context, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lookErr != nil {
		return false, r.lookErr
	}
	return r.hashes[hash], nil
}

func (r *memRevocations) Revoke(ctx context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hashes[hash] = true
	return nil
}

type MockEarningsStore struct {
	mock.Mock
}

func (m *MockEarningsStore) InsertEarning(ctx context.Context, e *models.AuthorEarnings) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockEarningsStore) Summary(ctx context.Context, authorID int64, since time.Time) (*models.EarningsSummary, error) {
	args := m.Called(ctx, authorID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EarningsSummary), args.Error(1)
}

func (m *MockEarningsStore) AuthorIDForUser(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

type memQueue struct {
	mu    sync.Mutex
	items [][]byte
}

func (q *memQueue) Push(ctx context.Context, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, payload)
	return nil
}

func (q *memQueue) Pop(ctx context.Context) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, nil
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, nil
}

func (q *memQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type MockCheckoutProvider struct {
	mock.Mock
}

func (m *MockCheckoutProvider) GetCheckoutSession(ctx context.Context, id string) (*payments.CheckoutSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.CheckoutSession), args.Error(1)
}

func (m *MockCheckoutProvider) CreateCheckoutSession(ctx context.Context, in payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.CheckoutSession), args.Error(1)
}

var errStoreDown = errors.New("store down")

func int64Ptr(v int64) *int64 { return &v }

// ledgerFixture wires a LedgerService over in-memory stores.
type ledgerFixture struct {
	clock    *testClock
	store    *memLedger
	articles *memArticles
	earnings *recordingDispatcher
	revoked  *memRevocations
	tokens   *TokenService
	svc      *LedgerService
}

func newLedgerFixture() *ledgerFixture {
	clock := newTestClock()
	store := newMemLedger(clock)
	articles := newMemArticles()
	store.articles = articles
	earnings := &recordingDispatcher{}
	revoked := newMemRevocations()

	tokens := NewTokenService("test-secret", 10*time.Minute, revoked, nil)
	tokens.now = clock.Now

	svc := NewLedgerService(store, articles, NewSplitResolver(articles), earnings, tokens, nil, DefaultLedgerConfig())
	svc.now = clock.Now

	return &ledgerFixture{
		clock: clock, store: store, articles: articles, earnings: earnings,
		revoked: revoked, tokens: tokens, svc: svc,
	}
}

func (f *ledgerFixture) addArticle(id int64, price int64, license models.LicenseType, authorID *int64) {
	f.articles.articles[id] = &models.Article{
		ID: id, AuthorID: authorID, Title: "Article", PriceCents: &price,
		LicenseType: license, Status: models.ArticlePublished,
	}
}
