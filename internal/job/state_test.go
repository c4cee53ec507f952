package job

import (
	"errors"
	"testing"
)

func TestValidateTransition_ValidMatrix(t *testing.T) {
	t.Parallel()

	valid := [][2]Status{
		{StatusQueued, StatusRunning},
		{StatusQueued, StatusCancelled},
		{StatusRunning, StatusPlanning},
		{StatusRunning, StatusResearching},
		{StatusPlanning, StatusResearching},
		{StatusResearching, StatusReporting},
		{StatusReporting, StatusCompleted},
		{StatusPlanning, StatusFailed},
		{StatusResearching, StatusCancelled},
		{StatusReporting, StatusFailed},
	}
	for _, pair := range valid {
		if err := ValidateTransition(pair[0], pair[1]); err != nil {
			t.Fatalf("expected valid transition %s->%s, got %v", pair[0], pair[1], err)
		}
	}
}

func TestValidateTransition_InvalidTransitions(t *testing.T) {
	t.Parallel()

	invalid := [][2]Status{
		{StatusQueued, StatusCompleted},
		{StatusRunning, StatusReporting},
		{StatusResearching, StatusPlanning},
		{StatusCompleted, StatusFailed},
		{StatusFailed, StatusQueued},
		{StatusCancelled, StatusRunning},
		{StatusResearching, StatusStopping},
	}
	for _, pair := range invalid {
		if err := ValidateTransition(pair[0], pair[1]); err == nil {
			t.Fatalf("expected invalid transition %s->%s", pair[0], pair[1])
		}
	}
	if err := ValidateTransition(StatusCompleted, StatusCancelled); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusQueued, StatusRunning, StatusPlanning, StatusResearching, StatusReporting, StatusStopping} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
