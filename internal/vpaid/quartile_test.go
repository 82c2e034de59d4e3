package vpaid

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fullSequence = []EventName{
	AdVideoStart, AdVideoFirstQuartile, AdVideoMidpoint, AdVideoThirdQuartile, AdVideoComplete,
}

func newCollectingReporter(t *testing.T) (*QuartileReporter, *[]EventName) {
	t.Helper()
	var fired []EventName
	q, err := NewQuartileReporter(DefaultQuartiles, func(e EventName) { fired = append(fired, e) })
	require.NoError(t, err)
	return q, &fired
}

func TestQuartileReporter_ArbitraryStepSizes(t *testing.T) {
	steps := [][]float64{
		{0, 100},
		{100},
		{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		{24.9, 25, 49.99, 50, 74, 75.5, 99.9, 100},
		{60, 60, 60, 100, 100},
	}

	for _, progress := range steps {
		q, fired := newCollectingReporter(t)
		for _, p := range progress {
			q.OnProgress(p)
		}
		assert.Equal(t, fullSequence, *fired, "progress %v", progress)
		assert.True(t, q.Done())
	}
}

func TestQuartileReporter_RandomWalk(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		q, fired := newCollectingReporter(t)
		p := 0.0
		for p < 100 {
			p += rng.Float64() * 40
			if p > 100 {
				p = 100
			}
			q.OnProgress(p)
		}
		assert.Equal(t, fullSequence, *fired)
	}
}

func TestQuartileReporter_NeverRewinds(t *testing.T) {
	q, fired := newCollectingReporter(t)

	q.OnProgress(55)
	q.OnProgress(10)
	q.OnProgress(0)

	assert.Equal(t, fullSequence[:3], *fired)
	assert.Equal(t, 3, q.Index())
}

func TestQuartileReporter_InertAfterComplete(t *testing.T) {
	q, fired := newCollectingReporter(t)
	q.OnProgress(100)

	assert.Zero(t, q.OnProgress(100))
	assert.Zero(t, q.OnProgress(150))
	assert.Len(t, *fired, 5)
}

func TestQuartileReporter_SingleJumpFiresInOrder(t *testing.T) {
	q, fired := newCollectingReporter(t)

	n := q.OnProgress(80)

	assert.Equal(t, 4, n)
	assert.Equal(t, fullSequence[:4], *fired)
}

func TestQuartileReporter_ReentrantProgress(t *testing.T) {
	var fired []EventName
	var q *QuartileReporter
	q, err := NewQuartileReporter(DefaultQuartiles, func(e EventName) {
		fired = append(fired, e)
		if e == AdVideoMidpoint {
			q.OnProgress(100)
		}
	})
	require.NoError(t, err)

	q.OnProgress(50)
	q.OnProgress(100)

	assert.Equal(t, fullSequence, fired)
}

func TestQuartileReporter_IgnoresNaN(t *testing.T) {
	q, fired := newCollectingReporter(t)
	q.OnProgress(nanValue())
	assert.Empty(t, *fired)
}

func TestValidateQuartiles(t *testing.T) {
	tests := []struct {
		name     string
		schedule []Quartile
		wantErr  bool
	}{
		{"default", DefaultQuartiles, false},
		{"empty", nil, true},
		{"not increasing", []Quartile{{50, AdVideoMidpoint}, {50, AdVideoComplete}}, true},
		{"decreasing", []Quartile{{50, AdVideoMidpoint}, {25, AdVideoFirstQuartile}}, true},
		{"out of range", []Quartile{{0, AdVideoStart}, {120, AdVideoComplete}}, true},
		{"missing event", []Quartile{{0, ""}}, true},
		{"halves", []Quartile{{0, AdVideoStart}, {50, AdVideoMidpoint}, {100, AdVideoComplete}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuartiles(tt.schedule)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func nanValue() float64 {
	zero := 0.0
	return zero / zero
}
