package judge

import (
	"log/slog"

	"github.com/axialab/axial/pkg/config"
	"github.com/axialab/axial/pkg/store"
)

// DecideMode is the rollout policy: it inspects the recent judge history of a
// project (newest first) and decides whether the next run judges strictly or
// warn-only.
//
// A project with no history starts warn-only. Promotion to strict requires
// enough clean runs in the window with few bad runs; accumulating bad runs
// demotes back. A cooldown after each mode change and a cap on flips per
// window keep the mode from oscillating.
func DecideMode(outcomes []store.JudgeOutcome, cfg *config.RolloutConfig) string {
	if len(outcomes) == 0 {
		return ModeWarnOnly
	}

	if len(outcomes) > cfg.Window {
		outcomes = outcomes[:cfg.Window]
	}

	current := outcomes[0].Mode
	if current != ModeStrict {
		current = ModeWarnOnly
	}

	changes := 0
	for i := 1; i < len(outcomes); i++ {
		if outcomes[i].Mode != outcomes[i-1].Mode {
			changes++
		}
	}
	if changes >= cfg.MaxModeChangesPerWindow {
		slog.Debug("rollout mode pinned, too many recent flips", "mode", current, "changes", changes)
		return current
	}

	runsSinceChange := 1
	for i := 1; i < len(outcomes) && outcomes[i].Mode == current; i++ {
		runsSinceChange++
	}
	if changes > 0 && runsSinceChange < cfg.CooldownRuns {
		slog.Debug("rollout mode in cooldown", "mode", current, "runs_since_change", runsSinceChange)
		return current
	}

	good, bad := 0, 0
	for _, outcome := range outcomes {
		if outcome.OK {
			good++
		} else {
			bad++
		}
	}

	switch current {
	case ModeWarnOnly:
		if good >= cfg.MinTheories && bad <= cfg.PromoteMaxBad {
			slog.Info("rollout promoting judge to strict mode", "good", good, "bad", bad)
			return ModeStrict
		}
	case ModeStrict:
		if bad >= cfg.DegradeMinBad {
			slog.Info("rollout demoting judge to warn-only mode", "good", good, "bad", bad)
			return ModeWarnOnly
		}
	}
	return current
}
