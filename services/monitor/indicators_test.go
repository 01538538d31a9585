package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock_monitor/models"
)

func TestCalculateMA(t *testing.T) {
	closes := []float64{10, 20, 30, 40}

	ma, ok := CalculateMA(closes, 2)
	assert.True(t, ok)
	assert.Equal(t, 35.0, ma, "should average the most recent values")

	ma, ok = CalculateMA(closes, 4)
	assert.True(t, ok)
	assert.Equal(t, 25.0, ma)
}

func TestCalculateMAInsufficientData(t *testing.T) {
	_, ok := CalculateMA([]float64{10, 20}, 3)
	assert.False(t, ok, "short series must report unavailable, not zero")

	_, ok = CalculateMA(nil, 1)
	assert.False(t, ok)

	_, ok = CalculateMA([]float64{10}, 0)
	assert.False(t, ok)
}

func TestBuildSnapshotChangePercent(t *testing.T) {
	now := time.Now().UTC()

	snap := BuildSnapshot("AAPL", bars(100, 105), 2, 3, now)
	require.NotNil(t, snap)
	assert.Equal(t, "AAPL", snap.Symbol)
	assert.Equal(t, 105.0, snap.CurrentPrice.InexactFloat64())
	assert.Equal(t, 100.0, snap.PreviousClose.InexactFloat64())
	assert.Equal(t, 5.0, snap.ChangePercent.InexactFloat64())
}

func TestBuildSnapshotSingleBar(t *testing.T) {
	snap := BuildSnapshot("AAPL", bars(100), 2, 3, time.Now().UTC())
	require.NotNil(t, snap)
	assert.Equal(t, 0.0, snap.ChangePercent.InexactFloat64(), "one bar means no change to report")
	assert.Equal(t, snap.CurrentPrice, snap.PreviousClose)
}

func TestBuildSnapshotNoBars(t *testing.T) {
	assert.Nil(t, BuildSnapshot("AAPL", nil, 2, 3, time.Now().UTC()))
}

func TestBuildSnapshotMAUnavailable(t *testing.T) {
	// Two bars: enough for the short window (2), not the long one (3)
	snap := BuildSnapshot("AAPL", bars(100, 102), 2, 3, time.Now().UTC())
	require.NotNil(t, snap)

	assert.True(t, snap.ShortMA.Valid)
	assert.False(t, snap.LongMA.Valid, "long MA must be null, never zero-filled")
	assert.Equal(t, models.CrossoverUnavailable, snap.CrossoverState)
}

func TestBuildSnapshotCrossoverStates(t *testing.T) {
	now := time.Now().UTC()

	// Rising closes: short MA above long MA
	snap := BuildSnapshot("UP", bars(100, 110, 120), 2, 3, now)
	require.NotNil(t, snap)
	assert.Equal(t, models.CrossoverAbove, snap.CrossoverState)

	// Falling closes: short MA below long MA
	snap = BuildSnapshot("DOWN", bars(120, 110, 100), 2, 3, now)
	require.NotNil(t, snap)
	assert.Equal(t, models.CrossoverBelow, snap.CrossoverState)
}

func TestCrossoverMagnitude(t *testing.T) {
	snap := BuildSnapshot("UP", bars(100, 110, 120), 2, 3, time.Now().UTC())
	require.NotNil(t, snap)

	// short MA = 115, long MA = 110 -> +4.55%
	assert.InDelta(t, 4.55, CrossoverMagnitude(*snap), 0.01)

	// Missing averages yield zero magnitude
	partial := BuildSnapshot("X", bars(100, 102), 2, 3, time.Now().UTC())
	require.NotNil(t, partial)
	assert.Equal(t, 0.0, CrossoverMagnitude(*partial))
}
