package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestRateZero tests that an unused rate reads zero
func TestRateZero(t *testing.T) {
	r := NewRate(10)
	assert.Equal(t, 0.0, r.Value())
}

// TestRateConverges tests that marks show up in the rate after a tick
func TestRateConverges(t *testing.T) {
	r := NewRate(1)

	r.Mark(100)
	time.Sleep(tickInterval + 50*time.Millisecond)

	v := r.Value()
	if v <= 0 {
		t.Fatalf("Rate.Value() = %v, want > 0", v)
	}

	// 100 events over roughly one second
	assert.InDelta(t, 100.0, v, 30.0)
}

// TestRateDecays tests that the rate falls when marking stops
func TestRateDecays(t *testing.T) {
	r := NewRate(1)

	r.Mark(100)
	time.Sleep(tickInterval + 50*time.Millisecond)
	first := r.Value()

	time.Sleep(tickInterval + 50*time.Millisecond)
	second := r.Value()

	if second >= first {
		t.Errorf("rate did not decay: first=%v second=%v", first, second)
	}
}

// TestRateWindowClamped tests that invalid window sizes are clamped
func TestRateWindowClamped(t *testing.T) {
	r := NewRate(0)
	if r.alpha <= 0 || r.alpha > 1 {
		t.Errorf("alpha out of range: %v", r.alpha)
	}
}
