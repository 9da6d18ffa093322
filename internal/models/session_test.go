package models

import "testing"

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{SessionStatusPending, SessionStatusAwaitingFunding, true},
		{SessionStatusPending, SessionStatusEnding, true},
		{SessionStatusPending, SessionStatusActive, false},
		{SessionStatusAwaitingFunding, SessionStatusActive, true},
		{SessionStatusAwaitingFunding, SessionStatusEnding, true},
		{SessionStatusActive, SessionStatusEnding, true},
		{SessionStatusActive, SessionStatusEnded, false},
		{SessionStatusEnding, SessionStatusEnded, true},
		{SessionStatusEnding, SessionStatusActive, false},
		{SessionStatusEnded, SessionStatusEnding, false},
		{SessionStatusEnded, SessionStatusActive, false},
		{SessionStatusActive, SessionStatusActive, false},
		{"bogus", SessionStatusEnding, false},
	}

	for _, tt := range tests {
		if got := IsValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("IsValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestUnpaidCents(t *testing.T) {
	s := Session{AccruedCents: 750, ReleasedCents: 300}
	if got := s.UnpaidCents(); got != 450 {
		t.Errorf("UnpaidCents() = %d, want 450", got)
	}
}

func TestRecomputePercents(t *testing.T) {
	s := Session{AccruedCents: 400, ReleasedCents: 100, EscrowDepositCents: 1000}
	s.RecomputePercents()
	if s.PercentEscrowUsed != 10 {
		t.Errorf("PercentEscrowUsed = %v, want 10", s.PercentEscrowUsed)
	}
	if s.PercentPaidOfAccrued != 25 {
		t.Errorf("PercentPaidOfAccrued = %v, want 25", s.PercentPaidOfAccrued)
	}
}

func TestRecomputePercentsZeroDenominators(t *testing.T) {
	s := Session{ReleasedCents: 100}
	s.RecomputePercents()
	if s.PercentEscrowUsed != 0 || s.PercentPaidOfAccrued != 0 {
		t.Errorf("zero denominators must yield zero percents, got %v / %v",
			s.PercentEscrowUsed, s.PercentPaidOfAccrued)
	}
}
