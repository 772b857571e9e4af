package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/truthlens/truthlens/internal/domain"
)

// InitCalibration loads calibration rules at startup. With a repository,
// stored rules win; an empty store is seeded with defaults first. Without
// one, defaults are loaded directly.
func (o *Orchestrator) InitCalibration(ctx context.Context, defaults []domain.CalibrationRule) error {
	if o.calibration == nil {
		return nil
	}
	if o.repo == nil {
		return o.calibration.LoadRules(defaults)
	}

	stored, err := o.repo.ListCalibrationRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list calibration rules: %w", err)
	}
	if len(stored) == 0 {
		for i := range defaults {
			if err := o.repo.SaveCalibrationRule(ctx, &defaults[i]); err != nil {
				return fmt.Errorf("failed to seed calibration rule %s: %w", defaults[i].ID, err)
			}
		}
		slog.Info("seeded calibration rules", "count", len(defaults))
	}

	_, err = o.ReloadCalibration(ctx)
	return err
}

// ReloadCalibration replaces the loaded rules with the stored ones and
// returns how many are active.
func (o *Orchestrator) ReloadCalibration(ctx context.Context) (int, error) {
	if o.calibration == nil {
		return 0, fmt.Errorf("calibration is disabled")
	}
	if o.repo == nil {
		return 0, ErrNoRepository
	}

	rules, err := o.repo.ListCalibrationRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list calibration rules: %w", err)
	}
	if err := o.calibration.LoadRules(rules); err != nil {
		return 0, err
	}

	n := o.calibration.RulesCount()
	slog.Info("calibration rules loaded", "count", n)
	return n, nil
}

// SaveCalibrationRule validates and stores a rule, then reloads.
func (o *Orchestrator) SaveCalibrationRule(ctx context.Context, rule domain.CalibrationRule) error {
	if o.calibration == nil {
		return fmt.Errorf("calibration is disabled")
	}
	if o.repo == nil {
		return ErrNoRepository
	}
	if err := o.calibration.ValidateRule(rule); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if err := o.repo.SaveCalibrationRule(ctx, &rule); err != nil {
		return err
	}
	_, err := o.ReloadCalibration(ctx)
	return err
}

// CalibrationRules returns the active rules.
func (o *Orchestrator) CalibrationRules() []domain.CalibrationRule {
	if o.calibration == nil {
		return []domain.CalibrationRule{}
	}
	return o.calibration.Rules()
}

// Repository returns the configured repository, which may be nil.
func (o *Orchestrator) Repository() domain.Repository {
	return o.repo
}
