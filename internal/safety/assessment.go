package safety

import (
	"context"
	"fmt"

	"mexc-sniper-bot/internal/mexc"
)

// AssessConfig holds the thresholds for the system safety assessment.
type AssessConfig struct {
	// ProbeSymbol is the liquid symbol used for the exchange connectivity
	// probe.
	ProbeSymbol string `json:"probe_symbol"`

	// MaxConsecutiveFailures is the execution failure streak that flips the
	// system unsafe.
	MaxConsecutiveFailures int `json:"max_consecutive_failures"`
}

// DefaultAssessConfig returns default assessment thresholds.
func DefaultAssessConfig() AssessConfig {
	return AssessConfig{
		ProbeSymbol:            "BTCUSDT",
		MaxConsecutiveFailures: 5,
	}
}

// CheckResult is the outcome of one assessment check.
type CheckResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// Assessment is the structured result of a full safety assessment.
type Assessment struct {
	Safe   bool          `json:"safe"`
	Checks []CheckResult `json:"checks"`
}

// HealthChecker is the persistence health probe the assessor depends on.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Assessor runs the system-wide safety assessment.
type Assessor struct {
	client     mexc.ExchangeClient
	db         HealthChecker
	controller *Controller
	config     AssessConfig
}

// NewAssessor creates a safety assessor.
func NewAssessor(client mexc.ExchangeClient, db HealthChecker, controller *Controller, config AssessConfig) *Assessor {
	if config.ProbeSymbol == "" {
		config = DefaultAssessConfig()
	}
	return &Assessor{client: client, db: db, controller: controller, config: config}
}

// Assess runs every check and reports the combined verdict. A failing check
// makes the system unsafe but is not an error; only a broken assessment
// subsystem itself (no exchange client wired, nil controller) returns one.
func (a *Assessor) Assess(ctx context.Context) (*Assessment, error) {
	if a.client == nil || a.controller == nil {
		return nil, fmt.Errorf("safety assessor not fully wired")
	}

	assessment := &Assessment{Safe: true}

	add := func(name string, passed bool, message string) {
		if !passed {
			assessment.Safe = false
		}
		assessment.Checks = append(assessment.Checks, CheckResult{Name: name, Passed: passed, Message: message})
	}

	// Exchange connectivity: one cheap price probe.
	if price, err := a.client.GetCurrentPrice(ctx, a.config.ProbeSymbol); err != nil {
		add("exchange_connectivity", false, err.Error())
	} else if price <= 0 {
		add("exchange_connectivity", false, fmt.Sprintf("probe price %v for %s", price, a.config.ProbeSymbol))
	} else {
		add("exchange_connectivity", true, "")
	}

	// Persistence health.
	if a.db != nil {
		if err := a.db.HealthCheck(ctx); err != nil {
			add("database_health", false, err.Error())
		} else {
			add("database_health", true, "")
		}
	}

	// Execution failure streak.
	failures := a.controller.ConsecutiveFailures()
	if failures >= a.config.MaxConsecutiveFailures {
		add("execution_failures", false,
			fmt.Sprintf("%d consecutive execution failures (limit %d)", failures, a.config.MaxConsecutiveFailures))
	} else {
		add("execution_failures", true, "")
	}

	return assessment, nil
}
