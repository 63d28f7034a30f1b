package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"mexc-sniper-bot/internal/database"
	"mexc-sniper-bot/internal/safety"
)

// RiskCheckHandler runs the periodic safety assessment and engages the
// emergency halt when the system is unsafe.
type RiskCheckHandler struct {
	assessor   *safety.Assessor
	controller *safety.Controller
	logger     zerolog.Logger
}

// NewRiskCheckHandler creates the risk-check handler.
func NewRiskCheckHandler(assessor *safety.Assessor, controller *safety.Controller, logger zerolog.Logger) *RiskCheckHandler {
	return &RiskCheckHandler{
		assessor:   assessor,
		controller: controller,
		logger:     logger.With().Str("component", "risk_check").Logger(),
	}
}

func (h *RiskCheckHandler) Type() JobType { return JobTypeRiskCheck }

// Handle assesses system safety. An unsafe verdict halts execution but the
// job itself still succeeds; only a broken assessment errors.
func (h *RiskCheckHandler) Handle(ctx context.Context, _ *database.Job) (*Result, error) {
	assessment, err := h.assessor.Assess(ctx)
	if err != nil {
		return nil, fmt.Errorf("safety assessment failed: %w", err)
	}

	details := map[string]interface{}{"safe": assessment.Safe}
	for _, check := range assessment.Checks {
		details[check.Name] = check.Passed
	}

	if !assessment.Safe {
		var failing []string
		for _, check := range assessment.Checks {
			if !check.Passed {
				failing = append(failing, fmt.Sprintf("%s: %s", check.Name, check.Message))
			}
		}
		reason := "risk check failed: " + strings.Join(failing, "; ")
		h.logger.Warn().Strs("failing_checks", failing).Msg("System assessed unsafe")
		h.controller.Halt(reason)
		return &Result{Message: reason, Details: details}, nil
	}

	h.logger.Debug().Msg("Risk check passed")
	return &Result{Message: "system safe", Details: details}, nil
}
