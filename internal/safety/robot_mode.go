package safety

import "fmt"

// RobotModeConfig gates autonomous (non-interactive) execution behind
// stricter thresholds than an interactively-confirmed run.
type RobotModeConfig struct {
	Enabled                bool
	PosteriorFloor         float64
	BlastRadiusCapMB       float64
	KillCountCap           int
	RequireKnownSignature  bool
}

// RobotModeState is the mutable run-scoped counter the gate consults and
// updates; the caller is responsible for incrementing KillsThisRun after
// a kill actually completes.
type RobotModeState struct {
	KillsThisRun int
}

// CheckRobotModeGates is a no-op (PreCheckSkip) when robot mode is
// disabled. When enabled, it enforces: posterior confidence at or above
// the floor, blast radius at or below the cap, kills already made in this
// run below the cap (so the count including this kill stays at or below
// it), and — optionally — a known process
// signature.
func CheckRobotModeGates(cfg RobotModeConfig, state RobotModeState, posteriorConfidence, blastRadiusMB float64, knownSignature bool) PreCheckResult {
	if !cfg.Enabled {
		return skip("robot_mode", "robot mode disabled")
	}
	if posteriorConfidence < cfg.PosteriorFloor {
		return fail("robot_mode_posterior_floor", fmt.Sprintf("posterior confidence %.4f below floor %.4f", posteriorConfidence, cfg.PosteriorFloor))
	}
	if blastRadiusMB > cfg.BlastRadiusCapMB {
		return fail("robot_mode_blast_radius", fmt.Sprintf("blast radius %.1fMB exceeds cap %.1fMB", blastRadiusMB, cfg.BlastRadiusCapMB))
	}
	if state.KillsThisRun >= cfg.KillCountCap {
		return fail("robot_mode_kill_count", fmt.Sprintf("kill count %d reached cap %d", state.KillsThisRun, cfg.KillCountCap))
	}
	if cfg.RequireKnownSignature && !knownSignature {
		return fail("robot_mode_unknown_signature", "process signature is not in the known-signature set")
	}
	return pass("robot_mode")
}
