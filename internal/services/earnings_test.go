package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paypr/backend/internal/models"
	"github.com/paypr/backend/internal/money"
	"github.com/paypr/backend/internal/repository"
)

func sampleJob() EarningsJob {
	return EarningsJob{
		TransactionID: 42,
		AuthorID:      int64Ptr(11),
		ArticleID:     int64Ptr(7),
		PublisherID:   int64Ptr(3),
		PriceCents:    99,
		Breakdown:     money.Breakdown{money.RolePlatform: 10, money.RoleAuthor: 89},
	}
}

func TestEarningsRecorder_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("writes the author share", func(t *testing.T) {
		store := new(MockEarningsStore)
		recorder := NewEarningsRecorder(store, nil)

		store.On("InsertEarning", mock.Anything, mock.MatchedBy(func(e *models.AuthorEarnings) bool {
			return e.AuthorID == 11 && e.TransactionID == 42 && e.AmountCents == 89 && e.PercentageBps == 8989
		})).Return(nil)

		assert.NoError(t, recorder.Record(ctx, sampleJob()))
		store.AssertExpectations(t)
	})

	t.Run("no author is a no-op", func(t *testing.T) {
		store := new(MockEarningsStore)
		recorder := NewEarningsRecorder(store, nil)

		job := sampleJob()
		job.AuthorID = nil
		assert.NoError(t, recorder.Record(ctx, job))
		store.AssertNotCalled(t, "InsertEarning", mock.Anything, mock.Anything)
	})

	t.Run("no author share is a no-op", func(t *testing.T) {
		store := new(MockEarningsStore)
		recorder := NewEarningsRecorder(store, nil)

		job := sampleJob()
		job.Breakdown = money.Breakdown{money.RolePublisher: 89, money.RolePlatform: 10}
		assert.NoError(t, recorder.Record(ctx, job))
		store.AssertNotCalled(t, "InsertEarning", mock.Anything, mock.Anything)
	})
}

func TestEarningsRecorder_DispatchFailureIsQueued(t *testing.T) {
	store := new(MockEarningsStore)
	queue := &memQueue{}
	recorder := NewEarningsRecorder(store, queue)

	store.On("InsertEarning", mock.Anything, mock.Anything).Return(errStoreDown).Once()

	recorder.Dispatch(sampleJob())
	recorder.Wait()

	require.Equal(t, 1, queue.Len())
	var queued EarningsJob
	require.NoError(t, json.Unmarshal(queue.items[0], &queued))
	assert.Equal(t, int64(42), queued.TransactionID)
	assert.Equal(t, 1, queued.Attempts)

	store.On("InsertEarning", mock.Anything, mock.Anything).Return(nil).Once()

	recorded, err := recorder.DrainRetryQueue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, recorded)
	assert.Equal(t, 0, queue.Len())
	store.AssertExpectations(t)
}

func TestEarningsRecorder_DrainStopsOnFailure(t *testing.T) {
	store := new(MockEarningsStore)
	queue := &memQueue{}
	recorder := NewEarningsRecorder(store, queue)

	payload, err := json.Marshal(sampleJob())
	require.NoError(t, err)
	queue.Push(context.Background(), payload)
	queue.Push(context.Background(), []byte("not json"))

	store.On("InsertEarning", mock.Anything, mock.Anything).Return(errStoreDown)

	recorded, err := recorder.DrainRetryQueue(context.Background(), 10)
	assert.Error(t, err)
	assert.Equal(t, 0, recorded)
	assert.Equal(t, 2, queue.Len(), "failed job goes back on the queue")
}

func TestEarningsRecorder_SummaryForUser(t *testing.T) {
	ctx := context.Background()
	store := new(MockEarningsStore)
	recorder := NewEarningsRecorder(store, nil)
	clock := newTestClock()
	recorder.now = clock.Now

	summary := &models.EarningsSummary{TotalCents: 178, Last30DaysCents: 89}
	store.On("AuthorIDForUser", mock.Anything, int64(5)).Return(int64(11), nil)
	store.On("Summary", mock.Anything, int64(11), clock.Now().Add(-30*24*time.Hour)).Return(summary, nil)
	store.On("AuthorIDForUser", mock.Anything, int64(6)).Return(int64(0), repository.ErrNotFound)

	got, err := recorder.SummaryForUser(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(178), got.TotalCents)

	_, err = recorder.SummaryForUser(ctx, 6)
	assert.ErrorIs(t, err, ErrNotFound)
}
