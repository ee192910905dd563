package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/paypr/backend/internal/models"
	"github.com/paypr/backend/internal/money"
	"github.com/paypr/backend/internal/repository"
)

// EarningsRetryQueueKey is the Redis list holding earnings jobs whose insert
// failed and must be replayed.
const EarningsRetryQueueKey = "earnings_retry_queue"

// EarningsJob describes the author share of one committed debit.
type EarningsJob struct {
	TransactionID int64           `json:"transaction_id"`
	AuthorID      *int64          `json:"author_id,omitempty"`
	ArticleID     *int64          `json:"article_id,omitempty"`
	PublisherID   *int64          `json:"publisher_id,omitempty"`
	PriceCents    int64           `json:"price_cents"`
	Breakdown     money.Breakdown `json:"breakdown"`
	Attempts      int             `json:"attempts"`
}

type EarningsStore interface {
	InsertEarning(ctx context.Context, e *models.AuthorEarnings) error
	Summary(ctx context.Context, authorID int64, since time.Time) (*models.EarningsSummary, error)
	AuthorIDForUser(ctx context.Context, userID int64) (int64, error)
}

type RetryQueue interface {
	Push(ctx context.Context, payload []byte) error
	Pop(ctx context.Context) ([]byte, error)
}

// EarningsRecorder writes author earnings outside the purchase transaction.
// A failed write never affects the purchase; the job is queued and replayed by
// DrainRetryQueue.
type EarningsRecorder struct {
	store   EarningsStore
	queue   RetryQueue
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

func NewEarningsRecorder(store EarningsStore, queue RetryQueue) *EarningsRecorder {
	return &EarningsRecorder{
		store:   store,
		queue:   queue,
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

// Dispatch records job in the background. Call Wait before shutdown.
func (r *EarningsRecorder) Dispatch(job EarningsJob) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.Record(ctx, job); err != nil {
			log.Printf("[EARNINGS] Failed to record earnings for transaction %d: %v", job.TransactionID, err)
			r.enqueue(context.Background(), job)
		}
	}()
}

// Wait blocks until every dispatched job has finished.
func (r *EarningsRecorder) Wait() {
	r.wg.Wait()
}

// Record writes the author row for job. Jobs without an author or without an
// author share are a no-op. Replays are harmless: the insert ignores a row
// that already exists for the (transaction, author) pair.
func (r *EarningsRecorder) Record(ctx context.Context, job EarningsJob) error {
	if job.AuthorID == nil {
		return nil
	}
	amount := job.Breakdown[money.RoleAuthor]
	if amount <= 0 {
		return nil
	}

	return r.store.InsertEarning(ctx, &models.AuthorEarnings{
		AuthorID:      *job.AuthorID,
		ArticleID:     job.ArticleID,
		TransactionID: job.TransactionID,
		AmountCents:   amount,
		PercentageBps: money.ShareBps(amount, job.PriceCents),
		PublisherID:   job.PublisherID,
	})
}

func (r *EarningsRecorder) enqueue(ctx context.Context, job EarningsJob) {
	if r.queue == nil {
		log.Printf("[EARNINGS] No retry queue configured, dropping job for transaction %d", job.TransactionID)
		return
	}
	job.Attempts++
	payload, err := json.Marshal(job)
	if err != nil {
		log.Printf("[EARNINGS] Failed to encode retry job: %v", err)
		return
	}
	if err := r.queue.Push(ctx, payload); err != nil {
		log.Printf("[EARNINGS] Failed to queue retry for transaction %d: %v", job.TransactionID, err)
	}
}

// DrainRetryQueue replays up to max queued jobs and returns how many were
// recorded. It stops at the first failure after putting that job back, so a
// persistent outage does not spin.
func (r *EarningsRecorder) DrainRetryQueue(ctx context.Context, max int) (int, error) {
	if r.queue == nil {
		return 0, nil
	}

	recorded := 0
	for i := 0; i < max; i++ {
		payload, err := r.queue.Pop(ctx)
		if err != nil {
			return recorded, fmt.Errorf("pop earnings job: %w", err)
		}
		if payload == nil {
			return recorded, nil
		}

		var job EarningsJob
		if err := json.Unmarshal(payload, &job); err != nil {
			log.Printf("[EARNINGS] Discarding malformed retry job: %v", err)
			continue
		}

		if err := r.Record(ctx, job); err != nil {
			r.enqueue(ctx, job)
			return recorded, fmt.Errorf("replay earnings for transaction %d: %w", job.TransactionID, err)
		}
		recorded++
	}
	return recorded, nil
}

// Summary returns the dashboard totals for an author.
func (r *EarningsRecorder) Summary(ctx context.Context, authorID int64) (*models.EarningsSummary, error) {
	since := r.now().Add(-30 * 24 * time.Hour)
	summary, err := r.store.Summary(ctx, authorID, since)
	if err != nil {
		return nil, fmt.Errorf("load earnings summary: %w", err)
	}
	return summary, nil
}

// SummaryForUser resolves the caller's author profile before summarizing.
func (r *EarningsRecorder) SummaryForUser(ctx context.Context, userID int64) (*models.EarningsSummary, error) {
	authorID, err := r.store.AuthorIDForUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, "no author profile for this account", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve author profile: %w", err)
	}
	return r.Summary(ctx, authorID)
}
