package domain

import (
	"errors"
	"testing"
)

func TestTransition_Table(t *testing.T) {
	cases := []struct {
		current State
		outcome Outcome
		next    State
	}{
		{StatePendingSales, OutcomeApproved, StatePendingVerification},
		{StatePendingSales, OutcomeRejected, StateRejected},
		{StatePendingVerification, OutcomeApproved, StatePendingUnderwriting},
		{StatePendingVerification, OutcomeRejected, StateRejected},
		{StatePendingVerification, OutcomeNeedsInfo, StatePendingVerification},
		{StatePendingUnderwriting, OutcomeApproved, StatePendingSanction},
		{StatePendingUnderwriting, OutcomeRejected, StateRejected},
		{StatePendingSanction, OutcomeApproved, StateSanctioned},
		{StatePendingSanction, OutcomeRejected, StateRejected},
	}

	for _, tc := range cases {
		next, err := Transition(tc.current, tc.outcome)
		if err != nil {
			t.Errorf("Transition(%s, %s): unexpected error: %v", tc.current, tc.outcome, err)
			continue
		}
		if next != tc.next {
			t.Errorf("Transition(%s, %s) = %s, want %s", tc.current, tc.outcome, next, tc.next)
		}
	}
}

func TestTransition_InvalidEdges(t *testing.T) {
	cases := []struct {
		current State
		outcome Outcome
	}{
		// NEEDS_INFO определён только для verification
		{StatePendingSales, OutcomeNeedsInfo},
		{StatePendingUnderwriting, OutcomeNeedsInfo},
		{StatePendingSanction, OutcomeNeedsInfo},
		// Терминальные состояния не имеют исходящих рёбер
		{StateSanctioned, OutcomeApproved},
		{StateRejected, OutcomeApproved},
		{StateAbandoned, OutcomeApproved},
		// FAILED восстанавливается только через Recover, не через Transition
		{StateFailed, OutcomeApproved},
	}

	for _, tc := range cases {
		_, err := Transition(tc.current, tc.outcome)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Transition(%s, %s): expected ErrInvalidTransition, got %v", tc.current, tc.outcome, err)
		}
	}
}

func TestState_IsTerminal(t *testing.T) {
	terminal := []State{StateSanctioned, StateRejected, StateAbandoned}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	// FAILED — восстанавливаемое, не терминальное
	if StateFailed.IsTerminal() {
		t.Error("FAILED must not be terminal")
	}
	for _, s := range PendingStates() {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestCompleted(t *testing.T) {
	cases := map[State]State{
		StatePendingSales:        StateSalesDone,
		StatePendingVerification: StateVerificationDone,
		StatePendingUnderwriting: StateUnderwritingDone,
		StatePendingSanction:     StateSanctioned,
	}
	for pending, done := range cases {
		if got := Completed(pending); got != done {
			t.Errorf("Completed(%s) = %s, want %s", pending, got, done)
		}
	}
}

func TestStageFor(t *testing.T) {
	cases := map[State]Stage{
		StatePendingSales:        StageSales,
		StatePendingVerification: StageVerification,
		StatePendingUnderwriting: StageUnderwriting,
		StatePendingSanction:     StageSanction,
	}
	for state, stage := range cases {
		got, ok := StageFor(state)
		if !ok || got != stage {
			t.Errorf("StageFor(%s) = %s, %v; want %s", state, got, ok, stage)
		}
	}

	if _, ok := StageFor(StateFailed); ok {
		t.Error("StageFor(FAILED) should return false")
	}
}

func TestApplication_FailAndRecover(t *testing.T) {
	app := NewApplication("CUST001", map[string]any{CtxRequestedAmount: 50000})

	if app.State != StatePendingSales {
		t.Fatalf("new application should start in PENDING_SALES, got %s", app.State)
	}
	if app.Version != 1 {
		t.Fatalf("new application should have version 1, got %d", app.Version)
	}

	app.Advance(StatePendingVerification, map[string]any{CtxPreApprovedLimit: 100000})
	app.Advance(StatePendingUnderwriting, nil)

	app.MarkFailed("credit bureau unreachable")
	if app.State != StateFailed {
		t.Errorf("expected FAILED, got %s", app.State)
	}
	if app.FailedFrom != StatePendingUnderwriting {
		t.Errorf("expected FailedFrom=PENDING_UNDERWRITING, got %s", app.FailedFrom)
	}
	if app.LastError == "" {
		t.Error("LastError should be set")
	}

	// Retry возвращает ровно в то состояние, откуда упали
	prior := app.Recover()
	if prior != StatePendingUnderwriting || app.State != StatePendingUnderwriting {
		t.Errorf("Recover should re-enter PENDING_UNDERWRITING, got %s", app.State)
	}
	if app.LastError != "" {
		t.Error("LastError should be cleared after recover")
	}
	if app.RetryCount != 1 {
		t.Errorf("RetryCount should be 1, got %d", app.RetryCount)
	}

	// Контекст накоплен
	if app.Context[CtxPreApprovedLimit] != 100000 {
		t.Error("context should keep accumulated stage outputs")
	}
}

func TestApplication_Snapshot_Isolated(t *testing.T) {
	app := NewApplication("CUST002", map[string]any{CtxRequestedAmount: 30000})

	snap := app.Snapshot()
	app.Context[CtxMonthlySalary] = 75000

	if _, ok := snap.Context[CtxMonthlySalary]; ok {
		t.Error("snapshot must not observe later mutations")
	}
}

func TestApplication_CanRecover(t *testing.T) {
	app := NewApplication("CUST003", nil)
	app.MarkFailed("boom")

	if !app.CanRecover(1) {
		t.Error("first recover should be allowed")
	}
	app.Recover()
	if app.CanRecover(1) {
		t.Error("recover past the cap should not be allowed")
	}
}
