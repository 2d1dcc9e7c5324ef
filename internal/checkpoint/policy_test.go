package checkpoint

import (
	"testing"
	"time"
)

func TestPolicy_ShouldCheckpoint_ItemInterval(t *testing.T) {
	p := Policy{IntervalItems: 10}
	if p.ShouldCheckpoint(9, time.Time{}, time.Now()) {
		t.Error("expected no checkpoint below interval")
	}
	if !p.ShouldCheckpoint(10, time.Time{}, time.Now()) {
		t.Error("expected checkpoint at interval")
	}
}

func TestPolicy_ShouldCheckpoint_DurationInterval(t *testing.T) {
	p := Policy{IntervalDuration: time.Minute}
	last := time.Now().Add(-2 * time.Minute)
	if !p.ShouldCheckpoint(0, last, time.Now()) {
		t.Error("expected checkpoint after interval duration elapsed")
	}
}

func TestPolicy_ShouldCheckpoint_NoLastTimestampSkipsDurationCheck(t *testing.T) {
	p := Policy{IntervalDuration: time.Minute}
	if p.ShouldCheckpoint(0, time.Time{}, time.Now()) {
		t.Error("expected no checkpoint with zero-value last timestamp")
	}
}

func TestPolicy_ShouldCheckpoint_Never(t *testing.T) {
	p := Policy{}
	if p.ShouldCheckpoint(1000, time.Now().Add(-time.Hour), time.Now()) {
		t.Error("expected no checkpoint when policy has no thresholds")
	}
}
