package safety

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"mexc-sniper-bot/internal/mexc"
)

func TestHaltIsIdempotentAndFirstReasonWins(t *testing.T) {
	c := NewController(nil, zerolog.Nop())

	c.Halt("exchange down")
	c.Halt("second reason")

	if !c.Halted() {
		t.Fatal("controller should be halted")
	}
	if got := c.HaltReason(); got != "exchange down" {
		t.Errorf("halt reason = %q, want the first", got)
	}

	c.Resume()
	if c.Halted() || c.HaltReason() != "" {
		t.Error("resume should clear halt state")
	}
}

func TestFailureStreakResetsOnSuccess(t *testing.T) {
	c := NewController(nil, zerolog.Nop())

	c.RecordExecutionFailure()
	c.RecordExecutionFailure()
	if c.ConsecutiveFailures() != 2 {
		t.Fatalf("streak = %d, want 2", c.ConsecutiveFailures())
	}

	c.RecordExecutionSuccess()
	if c.ConsecutiveFailures() != 0 {
		t.Errorf("streak = %d after success, want 0", c.ConsecutiveFailures())
	}
}

type failingHealth struct{ err error }

func (h failingHealth) HealthCheck(context.Context) error { return h.err }

func TestAssessReportsPerCheckResults(t *testing.T) {
	client := mexc.NewMockClient()
	controller := NewController(nil, zerolog.Nop())
	assessor := NewAssessor(client, failingHealth{err: errors.New("pool exhausted")}, controller, DefaultAssessConfig())

	assessment, err := assessor.Assess(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if assessment.Safe {
		t.Fatal("failing database health must make the system unsafe")
	}

	byName := map[string]CheckResult{}
	for _, check := range assessment.Checks {
		byName[check.Name] = check
	}
	if !byName["exchange_connectivity"].Passed {
		t.Error("exchange probe should pass against the mock")
	}
	if byName["database_health"].Passed {
		t.Error("database check should fail")
	}
	if !byName["execution_failures"].Passed {
		t.Error("fresh controller has no failure streak")
	}
}

func TestAssessFlagsFailureStreak(t *testing.T) {
	client := mexc.NewMockClient()
	controller := NewController(nil, zerolog.Nop())
	config := DefaultAssessConfig()
	config.MaxConsecutiveFailures = 2
	assessor := NewAssessor(client, nil, controller, config)

	controller.RecordExecutionFailure()
	controller.RecordExecutionFailure()

	assessment, err := assessor.Assess(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if assessment.Safe {
		t.Error("streak at the limit must be unsafe")
	}
}

func TestAssessErrorsWhenUnwired(t *testing.T) {
	assessor := NewAssessor(nil, nil, nil, DefaultAssessConfig())
	if _, err := assessor.Assess(context.Background()); err == nil {
		t.Fatal("unwired assessor must error, not report unsafe")
	}
}
