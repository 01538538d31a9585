package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock_monitor/models"
)

func pendingAlert(symbol string, retries int) *models.AlertLog {
	return &models.AlertLog{
		Symbol:         symbol,
		AlertType:      models.AlertTypePriceChange,
		DedupHash:      models.AlertDedupHash(models.AlertTypePriceChange, symbol, time.Now().UTC().Format("2006-01-02-15")),
		SentStatus:     models.AlertStatusPending,
		RetryCount:     retries,
		AlertTimestamp: time.Now().UTC(),
		ScheduledFor:   time.Now().UTC(),
	}
}

func TestAlertQueueEnqueueAndDedup(t *testing.T) {
	st := newFakeStore()
	q := NewAlertQueue(st, 5)

	alert := pendingAlert("AAPL", 0)
	ok, err := q.Enqueue(context.Background(), alert)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotZero(t, alert.ID)

	dup := pendingAlert("AAPL", 0)
	ok, err = q.Enqueue(context.Background(), dup)
	require.NoError(t, err)
	assert.False(t, ok, "same hash inside the window is suppressed")
	assert.Len(t, st.alerts, 1)
}

func TestAlertQueueMarkFailedEscalatesToDeadLetter(t *testing.T) {
	st := newFakeStore()
	q := NewAlertQueue(st, 3)

	alert := pendingAlert("AAPL", 0)
	_, err := q.Enqueue(context.Background(), alert)
	require.NoError(t, err)

	deliveryErr := errors.New("send failed")
	for i := 0; i < 2; i++ {
		q.MarkFailed(context.Background(), alert, deliveryErr)
		stored, ok := st.alertByID(alert.ID)
		require.True(t, ok)
		assert.Equal(t, models.AlertStatusFailed, stored.SentStatus)
		alert.RetryCount = stored.RetryCount
	}

	// Third failure exhausts the budget
	q.MarkFailed(context.Background(), alert, deliveryErr)
	stored, ok := st.alertByID(alert.ID)
	require.True(t, ok)
	assert.Equal(t, models.AlertStatusDeadLetter, stored.SentStatus)
	assert.Equal(t, 3, stored.RetryCount)
}

func TestAlertQueueRetryPending(t *testing.T) {
	st := newFakeStore()
	q := NewAlertQueue(st, 5)
	n := &fakeNotifier{}

	first := pendingAlert("AAPL", 0)
	second := pendingAlert("MSFT", 0)
	_, err := q.Enqueue(context.Background(), first)
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), second)
	require.NoError(t, err)

	sent, err := q.RetryPending(context.Background(), n, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	for _, id := range []uint{first.ID, second.ID} {
		stored, ok := st.alertByID(id)
		require.True(t, ok)
		assert.Equal(t, models.AlertStatusSent, stored.SentStatus)
	}
}

func TestAlertQueueRetrySkipsExhaustedAlerts(t *testing.T) {
	st := newFakeStore()
	q := NewAlertQueue(st, 3)
	n := &fakeNotifier{}

	spent := pendingAlert("OLD", 3)
	require.NoError(t, st.AppendAlert(context.Background(), spent))

	sent, err := q.RetryPending(context.Background(), n, 10)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, n.batches)
}

func TestAlertQueueRetryFailureAdvancesRetryCount(t *testing.T) {
	st := newFakeStore()
	q := NewAlertQueue(st, 5)
	n := &fakeNotifier{err: errors.New("still down")}

	alert := pendingAlert("AAPL", 0)
	_, err := q.Enqueue(context.Background(), alert)
	require.NoError(t, err)

	_, err = q.RetryPending(context.Background(), n, 10)
	require.Error(t, err)

	stored, ok := st.alertByID(alert.ID)
	require.True(t, ok)
	assert.Equal(t, models.AlertStatusFailed, stored.SentStatus)
	assert.Equal(t, 1, stored.RetryCount)
}
