// Package main — cmd/pt-core/main.go
//
// Process Triage core entrypoint.
//
// Startup sequence:
//  1. Parse flags.
//  2. Initialise structured logger (PT_LOG / PT_LOG_FORMAT).
//  3. Load and validate priors.json + policy.json (CLI flag → env var →
//     config dirs → built-in defaults), recording every source hash.
//  4. Resolve the per-user data root, open the session store and index.
//  5. Acquire the per-user run lock (only when -execute is set).
//  6. Open the global hash-chained audit log.
//  7. Start Prometheus metrics server (when -metrics-addr is set).
//  8. Create the session directory, write context/capabilities, open the
//     session event stream.
//  9. Quick scan (C1), posterior inference per candidate (C2).
// 10. VOI probe allocation and deep scan of selected candidates (C3⇄C1).
// 11. Decision per candidate (C4): load-aware, dependency-weighted,
//     CVaR per policy; FDR + alpha-investing over kill candidates in
//     robot mode.
// 12. Safety pre-checks (C5), plan materialization (C6).
// 13. Optional staged execution (C5), outcome persistence, exit-code fold.
//
// Shutdown on SIGINT/SIGTERM: the session transitions to Cancelled, a
// final audit entry names the cancelled stage, partial artifacts already
// written are preserved, and the process exits 6 (Interrupted).

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/renameio/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/process-triage/pt-core/contrib"
	"github.com/process-triage/pt-core/internal/action"
	"github.com/process-triage/pt-core/internal/audit"
	"github.com/process-triage/pt-core/internal/collect"
	"github.com/process-triage/pt-core/internal/config"
	"github.com/process-triage/pt-core/internal/decision"
	"github.com/process-triage/pt-core/internal/eventstream"
	"github.com/process-triage/pt-core/internal/exitcode"
	"github.com/process-triage/pt-core/internal/identity"
	"github.com/process-triage/pt-core/internal/inference"
	"github.com/process-triage/pt-core/internal/observability"
	"github.com/process-triage/pt-core/internal/safety"
	"github.com/process-triage/pt-core/internal/sequential"
	"github.com/process-triage/pt-core/internal/session"
)

func main() {
	os.Exit(int(run()))
}

// candidate carries one process through the whole C1→C5 pipeline.
type candidate struct {
	rec       collect.ProcessRecord
	deep      *collect.DeepRecord
	posterior inference.Posterior
	ledger    inference.EvidenceLedger
	inferErr  error
}

func run() exitcode.Code {
	// ── Step 1: Flags ─────────────────────────────────────────────────────────
	priorsPath := flag.String("priors", "", "Path to priors.json (overrides env and config dirs)")
	policyPath := flag.String("policy", "", "Path to policy.json (overrides env and config dirs)")
	dataRoot := flag.String("data-root", "", "Session data root (overrides PROCESS_TRIAGE_DATA)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus listen address (empty disables)")
	execute := flag.Bool("execute", false, "Execute the plan's unblocked actions instead of stopping at plan_ready")
	probeWall := flag.Float64("probe-wall-seconds", 5.0, "Deep-scan probe budget: wall-clock seconds")
	probeOverhead := flag.Float64("probe-overhead", 0.10, "Deep-scan probe budget: overhead fraction")
	deepParallel := flag.Int("deep-parallel", 8, "Max concurrent per-PID deep-scan probes")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("pt-core %s (commit=%s built=%s)\n",
			config.Version, config.GitCommit, config.BuildTime)
		return exitcode.Clean
	}

	// ── Step 2: Logger ────────────────────────────────────────────────────────
	log, err := buildLogger(os.Getenv("PT_LOG"), os.Getenv("PT_LOG_FORMAT"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		return exitcode.ArgsError
	}
	defer log.Sync() //nolint:errcheck

	// ── Step 3: Config ────────────────────────────────────────────────────────
	cfg, err := config.Load(config.LoadOptions{PriorsPath: *priorsPath, PolicyPath: *policyPath})
	if err != nil {
		log.Error("config load failed", zap.Error(err))
		return exitcode.ArgsError
	}
	policy := cfg.Policy
	priors := cfg.Priors.ToPriors()
	log.Info("config resolved",
		zap.String("priors_source", cfg.Snapshot.Priors.Kind.String()),
		zap.String("policy_source", cfg.Snapshot.Policy.Kind.String()),
	)

	// ── Step 4: Session store ─────────────────────────────────────────────────
	store, err := session.Open(*dataRoot)
	if err != nil {
		log.Error("session store open failed", zap.Error(err))
		return exitcode.SessionError
	}
	defer store.Close() //nolint:errcheck

	// ── Step 5: Run lock (execution only) ─────────────────────────────────────
	if *execute {
		runLock, err := session.AcquireRunLock(store.DataRoot)
		if errors.Is(err, session.ErrLockContention) {
			log.Error("another action run is in progress", zap.String("lock", session.RunLockPath(store.DataRoot)))
			return exitcode.LockError
		}
		if err != nil {
			log.Error("run lock acquisition failed", zap.Error(err))
			return exitcode.IoError
		}
		defer runLock.Release() //nolint:errcheck
	}

	// ── Step 6: Audit log ─────────────────────────────────────────────────────
	auditLog, err := audit.Open(session.AuditDir(store.DataRoot), audit.DefaultRotationConfig())
	if err != nil {
		log.Error("audit log open failed", zap.Error(err))
		return exitcode.IoError
	}
	defer auditLog.Close() //nolint:errcheck

	// ── Step 7: Metrics ───────────────────────────────────────────────────────
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	if *metricsAddr != "" {
		go func() {
			if err := metrics.ServeMetrics(rootCtx, *metricsAddr); err != nil {
				log.Error("metrics server error", zap.Error(err))
			}
		}()
		log.Info("metrics server started", zap.String("addr", *metricsAddr))
	}

	// ── Step 8: Session + event stream ────────────────────────────────────────
	sessionStart := time.Now()
	sid, layout, err := store.Create(sessionStart)
	if err != nil {
		log.Error("session create failed", zap.Error(err))
		return exitcode.SessionError
	}
	log = log.With(zap.String("session_id", sid.String()))

	bootID := readBootID()
	if err := writeContextFiles(layout, sid, bootID, cfg.Snapshot); err != nil {
		log.Warn("context/capabilities write failed", zap.Error(err))
	}

	events, err := eventstream.Open(filepath.Join(layout.Logs, "session.jsonl"), sid)
	if err != nil {
		log.Error("event stream open failed", zap.Error(err))
		return exitcode.IoError
	}
	defer events.Close() //nolint:errcheck

	auditCtx := map[string]string{"session_id": sid.String()}
	_, _ = auditLog.Append(audit.EventSessionStarted, auditCtx, map[string]interface{}{"boot_id": bootID})
	_ = events.Emit(eventstream.EventSessionStarted, "startup", nil, nil)

	// finish moves the session to a terminal state and records the final
	// exit code, preserving artifacts already written.
	finish := func(state session.State, code exitcode.Code) exitcode.Code {
		if err := store.Transition(sid, layout, state, time.Now()); err != nil {
			log.Warn("terminal transition failed", zap.String("state", string(state)), zap.Error(err))
		}
		metrics.SessionsTotal.WithLabelValues(string(state)).Inc()
		metrics.SessionDuration.Observe(time.Since(sessionStart).Seconds())
		if entry, aerr := auditLog.Append(audit.EventSessionEnded, auditCtx, map[string]interface{}{
			"state": string(state), "exit_code": int(code), "exit_name": code.Name(),
		}); aerr == nil {
			_ = store.Index.PutAuditCheckpoint(session.AuditCheckpoint{Seq: entry.Seq, Hash: entry.Hash})
		}
		_ = events.Emit(eventstream.EventSessionEnded, "shutdown", nil, map[string]interface{}{"state": string(state)})
		return code
	}
	cancelled := func(stage string) exitcode.Code {
		log.Warn("run cancelled", zap.String("stage", stage))
		_, _ = auditLog.Append(audit.EventError, auditCtx, map[string]interface{}{
			"reason": "cancelled", "stage": stage,
		})
		return finish(session.StateCancelled, exitcode.Interrupted)
	}

	// ── Step 9: Quick scan + inference ───────────────────────────────────────
	if err := store.Transition(sid, layout, session.StateScanning, time.Now()); err != nil {
		log.Error("transition to Scanning failed", zap.Error(err))
		return finish(session.StateFailed, exitcode.SessionError)
	}
	_ = events.Emit(eventstream.EventQuickScanStart, "scan", nil, nil)

	scanStart := time.Now()
	scan, err := collect.QuickScan(rootCtx, collect.QuickScanOptions{BootID: bootID})
	if err != nil {
		log.Error("quick scan failed", zap.Error(err))
		_, _ = auditLog.Append(audit.EventError, auditCtx, map[string]interface{}{"reason": err.Error(), "stage": "quick_scan"})
		return finish(session.StateFailed, exitcode.CapabilityError)
	}
	metrics.ProcessesScannedTotal.Add(float64(len(scan.Processes)))
	metrics.ScanDuration.WithLabelValues("quick").Observe(time.Since(scanStart).Seconds())
	_ = events.Emit(eventstream.EventQuickScanDone, "scan", nil, map[string]interface{}{
		"process_count": len(scan.Processes), "warnings": len(scan.Warnings),
	})
	_, _ = auditLog.Append(audit.EventScan, auditCtx, map[string]interface{}{
		"kind": "quick", "process_count": len(scan.Processes),
	})
	if rootCtx.Err() != nil {
		return cancelled("quick_scan")
	}

	engine := inference.NewEngine()
	selfPID := identity.PID(os.Getpid())
	code := exitcode.Clean

	_ = events.Emit(eventstream.EventInferenceStart, "inference", nil, nil)
	candidates := make([]*candidate, 0, len(scan.Processes))
	for i := range scan.Processes {
		rec := scan.Processes[i]
		if rec.Identity.PID == selfPID {
			continue
		}
		c := &candidate{rec: rec}
		c.posterior, c.ledger, c.inferErr = engine.Compute(priors, buildEvidence(rec, nil, scan.ScannedAt))
		if c.inferErr != nil {
			// A numeric error aborts this candidate only; the batch continues.
			metrics.PosteriorsComputedTotal.WithLabelValues("non_finite").Inc()
			log.Warn("inference aborted candidate",
				zap.Uint32("pid", uint32(rec.Identity.PID)), zap.Error(c.inferErr))
			code = exitcode.Worst(code, exitcode.InternalError)
		} else {
			metrics.PosteriorsComputedTotal.WithLabelValues("ok").Inc()
		}
		candidates = append(candidates, c)
	}
	if rootCtx.Err() != nil {
		return cancelled("inference")
	}

	// ── Step 10: VOI probe allocation + deep scan ────────────────────────────
	lossBase := policy.LossMatrix
	if adj := loadAdjustment(rootCtx, policy.LoadAware); adj != nil {
		log.Info("load-aware scaling active", zap.Float64("load_score", adj.LoadScore))
		lossBase = decision.ApplyLoadToLossMatrix(lossBase, *adj)
	}

	deepPIDs := allocateDeepScans(candidates, priors, lossBase, sequential.Budget{
		WallTimeSeconds:  *probeWall,
		OverheadFraction: *probeOverhead,
	})
	if len(deepPIDs) > 0 {
		_ = events.Emit(eventstream.EventDeepScanStart, "scan", nil, map[string]interface{}{"pid_count": len(deepPIDs)})
		deepStart := time.Now()
		deep, err := collect.DeepScan(rootCtx, deepPIDs, collect.DeepScanOptions{
			BootID:      bootID,
			MaxParallel: *deepParallel,
			Budget:      time.Duration(*probeWall * float64(time.Second)),
			Logger:      log.With(zap.String("phase", "deep_scan")),
		})
		if err != nil {
			log.Warn("deep scan degraded", zap.Error(err))
		}
		metrics.ScanDuration.WithLabelValues("deep").Observe(time.Since(deepStart).Seconds())
		byPID := make(map[identity.PID]*collect.DeepRecord, len(deep.Records))
		for i := range deep.Records {
			byPID[deep.Records[i].Identity.PID] = &deep.Records[i]
			metrics.DeepScanProbesTotal.WithLabelValues("ok").Inc()
		}
		for range deep.Partial {
			metrics.DeepScanProbesTotal.WithLabelValues("degraded").Inc()
		}
		for _, c := range candidates {
			dr, ok := byPID[c.rec.Identity.PID]
			if !ok || c.inferErr != nil {
				continue
			}
			c.deep = dr
			post, ledger, err := engine.Compute(priors, buildEvidence(c.rec, dr, scan.ScannedAt))
			if err != nil {
				c.inferErr = err
				code = exitcode.Worst(code, exitcode.InternalError)
				continue
			}
			c.posterior, c.ledger = post, ledger
		}
		_ = events.Emit(eventstream.EventDeepScanDone, "scan", nil, map[string]interface{}{
			"records": len(deep.Records), "missing": len(deep.Missing), "partial": len(deep.Partial),
		})
		_, _ = auditLog.Append(audit.EventScan, auditCtx, map[string]interface{}{
			"kind": "deep", "pid_count": len(deepPIDs), "records": len(deep.Records),
		})
	}
	_ = events.Emit(eventstream.EventInferenceDone, "inference", nil, map[string]interface{}{"candidate_count": len(candidates)})
	_, _ = auditLog.Append(audit.EventInference, auditCtx, map[string]interface{}{"candidate_count": len(candidates)})
	if rootCtx.Err() != nil {
		return cancelled("deep_scan")
	}

	// ── Step 11: Decision ─────────────────────────────────────────────────────
	_ = events.Emit(eventstream.EventDecisionStart, "decision", nil, nil)
	reader := action.OSProcessReader{BootID: bootID}
	robotState := safety.RobotModeState{}

	plan := session.Plan{
		SchemaVersion: session.PlanSchemaVersion,
		SessionID:     sid,
		CreatedAt:     time.Now().UTC(),
	}
	planIdx := make(map[identity.PID]int)

	for _, c := range candidates {
		if c.inferErr != nil {
			continue
		}
		ext := extendedEvidence(c.deep)
		loss := lossBase
		if impact := decision.ComputeImpactScore(dependencyFactors(ext), policy.ImpactWeights); impact > 0 {
			loss = decision.ApplyDependencyWeightedLoss(loss, impact)
		}
		feasible := feasibilityFor(c)

		var rationale decision.DecisionRationale
		var chosen decision.Action
		if policy.CVaREnabled {
			res, err := decision.CVaRRule(c.posterior, loss, feasible, policy.CVaRAlpha)
			if err != nil {
				code = exitcode.Worst(code, exitcode.InternalError)
				continue
			}
			rationale, chosen = res.RiskNeutral, res.RiskAdjusted
			rationale.ChosenAction = chosen
		} else {
			rationale, err = decision.ExpectedLossRule(c.posterior, loss, feasible)
			if err != nil {
				code = exitcode.Worst(code, exitcode.InternalError)
				continue
			}
			chosen = rationale.ChosenAction
		}
		metrics.ActionsChosenTotal.WithLabelValues(chosen.String()).Inc()
		metrics.ExpectedLossHistogram.Observe(chosenLoss(rationale))
		winner, mass := topClass(c.posterior)
		metrics.PosteriorByClassHistogram.WithLabelValues(winner.String()).Observe(mass)

		pa := session.PlanAction{
			Target: c.rec.Identity,
			Action: chosen,
			Stage:  session.PlanStageObserve,
			Timeouts: session.StageTimeouts{
				MitigateMillis:  5000,
				TerminateMillis: 2000,
			},
			Rationale: session.PlanRationale{
				Decision: rationale,
				MemoryMB: memoryMB(c.deep),
			},
		}

		// ── Step 12: Safety pre-checks ────────────────────────────────────────
		if chosen != decision.ActionKeep {
			live, lerr := reader.Read(c.rec.Identity.PID)
			if lerr != nil {
				// Vanished between scan and planning: never act on a guess.
				live = identity.ProcessIdentity{PID: c.rec.Identity.PID}
			}
			report := safety.RunPreChecks(safety.PreCheckInput{
				Action:              chosen,
				Candidate:           safetyCandidate(c),
				RecordedIdentity:    c.rec.Identity,
				LiveIdentity:        live,
				Extended:            ext,
				PosteriorConfidence: mass,
				BlastRadiusMB:       pa.Rationale.MemoryMB,
			}, policy.ProtectedRules, policy.DataLossGate, policy.RobotMode, robotState)
			pa.ApplyPreCheckReport(report)
			if fail, ok := report.FirstFailure(); ok {
				metrics.PreCheckBlockedTotal.WithLabelValues(fail.Name).Inc()
				_, _ = auditLog.Append(audit.EventPolicyCheck, auditCtx, map[string]interface{}{
					"pid": uint32(c.rec.Identity.PID), "gate": fail.Name, "reason": fail.Reason,
				})
				code = exitcode.Worst(code, exitcode.PolicyBlocked)
			}
		}

		planIdx[c.rec.Identity.PID] = len(plan.Actions)
		plan.Actions = append(plan.Actions, pa)

		_, _ = auditLog.Append(audit.EventRecommend, auditCtx, map[string]interface{}{
			"pid":       uint32(c.rec.Identity.PID),
			"action":    chosen.String(),
			"posterior": posteriorMap(c.posterior),
			"blocked":   pa.Blocked,
		})
	}

	// FDR + alpha-investing across kill candidates, robot mode only: a
	// kill not cleared by e-BH/e-BY stays in the plan but blocked.
	if policy.RobotMode.Enabled {
		applyFDRGate(&plan, planIdx, candidates, policy, store.DataRoot, metrics, log)
		for i := range plan.Actions {
			if plan.Actions[i].Blocked {
				code = exitcode.Worst(code, exitcode.PolicyBlocked)
			}
		}
	}
	if rootCtx.Err() != nil {
		return cancelled("decision")
	}

	_ = events.Emit(eventstream.EventDecisionDone, "decision", nil, map[string]interface{}{"plan_size": len(plan.Actions)})

	if err := session.WritePlan(layout, plan); err != nil {
		log.Error("plan write failed", zap.Error(err))
		return finish(session.StateFailed, exitcode.IoError)
	}
	if err := store.Transition(sid, layout, session.StatePlanned, time.Now()); err != nil {
		return finish(session.StateFailed, exitcode.SessionError)
	}
	_ = events.Emit(eventstream.EventPlanReady, "decision", nil, map[string]interface{}{"actions": len(plan.Actions)})

	actionable := 0
	for _, pa := range plan.Actions {
		if pa.Action != decision.ActionKeep && !pa.Blocked {
			actionable++
		}
	}
	if !*execute {
		if actionable > 0 {
			code = exitcode.Worst(code, exitcode.PlanReady)
		}
		log.Info("plan ready", zap.Int("actions", len(plan.Actions)), zap.Int("actionable", actionable))
		return finish(session.StateCompleted, code)
	}

	// ── Step 13: Staged execution ─────────────────────────────────────────────
	if err := store.Transition(sid, layout, session.StateExecuting, time.Now()); err != nil {
		return finish(session.StateFailed, exitcode.SessionError)
	}
	runner := action.CompositeRunner{
		Signal: action.SignalRunner{Signaler: action.UnixSignaler{}, Identity: reader, State: reader},
		Renice: action.ReniceRunner{Adjuster: action.UnixPriorityAdjuster{}},
		Cgroup: action.CgroupRunner{FS: action.OSCgroupFS{}, ThrottleCPUMax: "50000 100000"},
	}

	var outcomes []actionOutcome
	for i := range plan.Actions {
		pa := &plan.Actions[i]
		if pa.Action == decision.ActionKeep || pa.Blocked {
			continue
		}
		if rootCtx.Err() != nil {
			writeOutcomes(layout, outcomes, log)
			return cancelled("action_execution")
		}
		_ = events.Emit(eventstream.EventActionStart, "action", nil, map[string]interface{}{
			"pid": uint32(pa.Target.PID), "action": pa.Action.String(),
		})

		target := action.Target{
			Identity:    pa.Target,
			Action:      pa.Action,
			NiceDelta:   10,
			GraceMillis: pa.Timeouts.MitigateMillis,
			CgroupPath:  cgroupPathFor(candidates, pa.Target.PID),
		}
		// Parent linkage is resolved live at execution time, never cached
		// from the scan, so a reparented zombie re-routes correctly.
		if ppid, err := reader.ParentPID(pa.Target.PID); err == nil {
			target.PPID = ppid
		} else {
			target.PPID = lookupScanPPID(candidates, pa.Target.PID)
		}

		execStart := time.Now()
		res := runner.Execute(target)
		metrics.ActionExecutionsTotal.WithLabelValues(pa.Action.String(), res.Status.String()).Inc()
		metrics.ActionExecutionDuration.WithLabelValues(pa.Action.String()).Observe(time.Since(execStart).Seconds())

		if res.OriginalZombieTarget != nil {
			pa.OriginalZombieTarget = res.OriginalZombieTarget
		}
		if pa.Action == decision.ActionKill && res.Status == action.StatusOK {
			robotState.KillsThisRun++
		}

		outcomes = append(outcomes, newOutcome(pa, res))
		code = exitcode.Worst(code, codeForStatus(res.Status))

		details := map[string]interface{}{
			"pid": uint32(pa.Target.PID), "action": pa.Action.String(), "status": res.Status.String(),
		}
		if res.RedirectedTo != nil {
			details["redirected_to_parent"] = uint32(*res.RedirectedTo)
		}
		if res.Err != nil {
			details["error"] = res.Err.Error()
		}
		_, _ = auditLog.Append(audit.EventAction, auditCtx, details)
		_ = events.Emit(eventstream.EventActionDone, "action", nil, details)
	}
	writeOutcomes(layout, outcomes, log)

	if code == exitcode.Clean && len(outcomes) > 0 {
		code = exitcode.ActionsOk
	}
	log.Info("run complete", zap.Int("executed", len(outcomes)), zap.Int("exit_code", int(code)))
	return finish(session.StateCompleted, code)
}

// ── Evidence construction ────────────────────────────────────────────────────

// buildEvidence maps one scan record (plus optional deep probes) onto the
// inference engine's Evidence contract. Quick-scan evidence carries
// runtime, orphan status, and raw process state; deep probes add CPU
// occupancy, TTY, network, and I/O activity.
func buildEvidence(rec collect.ProcessRecord, deep *collect.DeepRecord, scannedAt time.Time) inference.Evidence {
	ev := inference.Evidence{ProcessState: rec.State}

	if rt := scannedAt.Sub(rec.StartedAt).Seconds(); rt > 0 {
		ev.RuntimeSeconds = &rt
	}
	orphan := rec.PPID == 1
	ev.Orphan = &orphan

	if deep != nil {
		if deep.CPUFraction != nil {
			ev.CPU = &inference.CPUOccupancy{Fraction: deep.CPUFraction}
		}
		ev.HasTTY = deep.HasTTY
		if deep.Sockets != nil {
			hasNet := len(deep.Sockets) > 0
			ev.HasNetwork = &hasNet
		}
		if deep.IO != nil {
			ioActive := derefU64(deep.IO.ReadBytes)+derefU64(deep.IO.WriteBytes) > 0
			ev.IOActive = &ioActive
		}
		ev.Extended = extendedEvidence(deep)
	}
	return ev
}

// extendedEvidence flattens the optional deep-scan fields into the
// ExtendedEvidence shape the data-loss gates and dependency-weighted
// loss computation consume.
func extendedEvidence(deep *collect.DeepRecord) inference.ExtendedEvidence {
	var ext inference.ExtendedEvidence
	if deep == nil {
		return ext
	}
	if deep.Cgroup != nil {
		ext.CgroupPath = deep.Cgroup.Path
	}
	if deep.SystemdUnit != nil {
		ext.SystemdUnit = *deep.SystemdUnit
	}
	if deep.OpenFiles != nil {
		ext.OpenWritableHandles = deep.OpenFiles.WritableCount
		for _, h := range deep.OpenFiles.CriticalHandles {
			switch h.Category {
			case collect.CriticalWAL:
				ext.WALOrJournalOpen = true
			case collect.CriticalLockFile, collect.CriticalPackageManagerState:
				ext.LockFilesHeld = true
			}
		}
	}
	for _, s := range deep.Sockets {
		switch s.State {
		case "LISTEN":
			ext.ListeningPortCount++
		case "ESTABLISHED":
			ext.EstablishedConnCount++
		}
	}
	if deep.HasTTY != nil {
		ext.ActiveTTY = *deep.HasTTY
	}
	return ext
}

func derefU64(p *uint64) uint64 {
	if p == nil {
		return 0
	}
	return *p
}

func dependencyFactors(ext inference.ExtendedEvidence) decision.DependencyFactors {
	return decision.DependencyFactors{
		ChildCount:             ext.ChildProcessCount,
		EstablishedConnections: ext.EstablishedConnCount,
		ListeningPorts:         ext.ListeningPortCount,
		OpenWritableHandles:    ext.OpenWritableHandles,
		SharedMemorySegments:   ext.SharedMemorySegments,
	}
}

// ── VOI / deep-scan allocation ───────────────────────────────────────────────

// allocateDeepScans runs the per-candidate act-now-vs-probe rule with a
// single predicted deep-scan probe, then allocates the population probe
// budget greedily across the candidates that prefer probing.
func allocateDeepScans(candidates []*candidate, priors inference.Priors, loss decision.LossMatrix, budget sequential.Budget) []identity.PID {
	estimator, err := contrib.GetProbeCostEstimator("flat")
	if err != nil {
		return nil
	}

	var pool []sequential.CandidateProbe
	byID := make(map[string]identity.PID)

	for _, c := range candidates {
		if c.inferErr != nil {
			continue
		}
		id := fmt.Sprintf("%08d", uint32(c.rec.Identity.PID))
		est, err := estimator.Estimate(contrib.ProbeCostRequest{CandidateID: id, ProbeName: "deep_scan_io"})
		if err != nil {
			continue
		}
		probe, ok := deepScanProbe(c.posterior, priors, est.WallTimeSeconds)
		if !ok {
			continue
		}
		d, err := sequential.DecideSequential(c.posterior, loss, feasibilityFor(c), []sequential.Probe{probe})
		if err != nil || d.ActNow || d.BestProbe == nil {
			continue
		}
		byID[id] = c.rec.Identity.PID
		pool = append(pool, sequential.CandidateProbe{
			CandidateID:  id,
			ProbeName:    probe.Name,
			VOI:          d.BestProbe.VOI,
			WallTimeCost: est.WallTimeSeconds,
			OverheadCost: est.OverheadFraction,
		})
	}

	selected := sequential.AllocatePopulationProbes(pool, sequential.PopulationAllocationOptions{
		Budget:             budget,
		RequireNegativeVOI: true,
	})
	pids := make([]identity.PID, 0, len(selected))
	for _, cp := range selected {
		pids = append(pids, byID[cp.CandidateID])
	}
	return pids
}

// deepScanProbe predicts a deep scan's outcome distribution through the
// io_active Beta-Bernoulli feature: the predictive probability of
// observing activity is the posterior-weighted prior mean per class, and
// each outcome's updated posterior follows from one Bayes step.
func deepScanProbe(post inference.Posterior, priors inference.Priors, cost float64) (sequential.Probe, bool) {
	weights := [4]float64{post.PUseful, post.PUsefulBad, post.PAbandoned, post.PZombie}
	var means [4]float64
	for i, cp := range priors.ByClass {
		a, b := cp.IOActive.Alpha, cp.IOActive.Beta
		if a+b <= 0 {
			return sequential.Probe{}, false
		}
		means[i] = a / (a + b)
	}

	var pTrue float64
	for i := range weights {
		pTrue += weights[i] * means[i]
	}
	if pTrue <= 0 || pTrue >= 1 {
		return sequential.Probe{}, false
	}

	var wTrue, wFalse [4]float64
	for i := range weights {
		wTrue[i] = weights[i] * means[i]
		wFalse[i] = weights[i] * (1 - means[i])
	}

	return sequential.Probe{
		Name: "deep_scan_io",
		Cost: cost,
		Outcomes: []sequential.ProbeOutcome{
			{Probability: pTrue, Posterior: posteriorFromWeights(wTrue)},
			{Probability: 1 - pTrue, Posterior: posteriorFromWeights(wFalse)},
		},
	}, true
}

// posteriorFromWeights normalizes non-negative class weights into a full
// Posterior value (probabilities, logs, and the derived log-odds).
func posteriorFromWeights(w [4]float64) inference.Posterior {
	var sum float64
	for _, v := range w {
		sum += v
	}
	var p inference.Posterior
	if sum <= 0 {
		return p
	}
	p.PUseful = w[0] / sum
	p.PUsefulBad = w[1] / sum
	p.PAbandoned = w[2] / sum
	p.PZombie = w[3] / sum
	p.LogPUseful = math.Log(p.PUseful)
	p.LogPUsefulBad = math.Log(p.PUsefulBad)
	p.LogPAbandoned = math.Log(p.PAbandoned)
	p.LogPZombie = math.Log(p.PZombie)
	p.LogOddsAbandonedVsUseful = p.LogPAbandoned - p.LogPUseful
	return p
}

// ── Decision helpers ─────────────────────────────────────────────────────────

// feasibilityFor masks which actions the executor could actually carry
// out for this candidate: cgroup-backed actions need a known cgroup path
// on Linux, and Restart always needs a supervisor this core doesn't have.
func feasibilityFor(c *candidate) decision.Feasibility {
	f := decision.Feasibility{
		decision.ActionKeep:   true,
		decision.ActionRenice: true,
		decision.ActionPause:  true,
		decision.ActionKill:   true,
	}
	if runtime.GOOS == "linux" && c.deep != nil && c.deep.Cgroup != nil && c.deep.Cgroup.Path != "" {
		f[decision.ActionThrottle] = true
		f[decision.ActionFreeze] = true
		f[decision.ActionQuarantine] = true
	}
	return f
}

func topClass(p inference.Posterior) (inference.Class, float64) {
	best := inference.ClassUseful
	mass := p.PUseful
	for _, c := range inference.AllClasses[1:] {
		if v := p.ByClass(c); v > mass {
			best, mass = c, v
		}
	}
	return best, mass
}

func chosenLoss(r decision.DecisionRationale) float64 {
	for _, el := range r.ExpectedLosses {
		if el.Action == r.ChosenAction {
			return el.Loss
		}
	}
	return 0
}

func posteriorMap(p inference.Posterior) map[string]float64 {
	return map[string]float64{
		"useful":     p.PUseful,
		"useful_bad": p.PUsefulBad,
		"abandoned":  p.PAbandoned,
		"zombie":     p.PZombie,
	}
}

func safetyCandidate(c *candidate) safety.Candidate {
	basename := c.rec.Command
	if len(c.rec.CommandLine) > 0 {
		basename = filepath.Base(c.rec.CommandLine[0])
	}
	cand := safety.Candidate{
		Command:  strings.Join(c.rec.CommandLine, " "),
		Basename: basename,
		User:     strconv.FormatUint(uint64(c.rec.Identity.UID), 10),
	}
	if cand.Command == "" {
		cand.Command = c.rec.Command
	}
	if c.deep != nil && c.deep.Cgroup != nil {
		cand.Cgroup = c.deep.Cgroup.Path
	}
	return cand
}

func memoryMB(deep *collect.DeepRecord) float64 {
	if deep == nil || deep.Cgroup == nil || deep.Cgroup.MemoryCurrent == nil {
		return 0
	}
	return float64(*deep.Cgroup.MemoryCurrent) / (1024 * 1024)
}

func cgroupPathFor(candidates []*candidate, pid identity.PID) string {
	for _, c := range candidates {
		if c.rec.Identity.PID == pid && c.deep != nil && c.deep.Cgroup != nil {
			return c.deep.Cgroup.Path
		}
	}
	return ""
}

func lookupScanPPID(candidates []*candidate, pid identity.PID) identity.PID {
	for _, c := range candidates {
		if c.rec.Identity.PID == pid {
			return c.rec.PPID
		}
	}
	return 0
}

// loadAdjustment gathers live load signals when load-aware scaling is
// enabled: core count, 1-minute load average and memory use. PSI and
// run-queue length are not gathered, so their terms add 0 to the load
// score.
func loadAdjustment(ctx context.Context, cfg decision.LoadAwareConfig) *decision.LoadAdjustment {
	if !cfg.Enabled {
		return nil
	}
	signals := decision.LoadSignals{}
	cores := uint32(runtime.NumCPU())
	signals.Cores = &cores
	if avg, err := load.AvgWithContext(ctx); err == nil {
		signals.Load1 = &avg.Load1
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		frac := vm.UsedPercent / 100
		signals.MemoryUsedFraction = &frac
	}
	return decision.ComputeLoadAdjustment(cfg, signals)
}

// applyFDRGate runs e-BH/e-BY (with the alpha-investing wealth budget
// when enabled) across the plan's unblocked kill candidates, using the
// posterior odds against usefulness as each candidate's e-value. Kills
// not cleared are blocked in place.
func applyFDRGate(plan *session.Plan, planIdx map[identity.PID]int, candidates []*candidate, policy config.Policy, dataRoot string, metrics *observability.Metrics, log *zap.Logger) {
	var kills []decision.KillCandidate
	for _, c := range candidates {
		idx, ok := planIdx[c.rec.Identity.PID]
		if !ok {
			continue
		}
		pa := plan.Actions[idx]
		if pa.Action != decision.ActionKill || pa.Blocked {
			continue
		}
		kills = append(kills, decision.KillCandidate{
			ID:     fmt.Sprintf("%08d", uint32(c.rec.Identity.PID)),
			EValue: math.Exp(-c.posterior.LogPUseful) - 1, // odds against usefulness
		})
	}
	if len(kills) == 0 {
		return
	}

	fdrCfg := policy.FDR
	if policy.AlphaInvesting.Enabled {
		wealth := decision.OpenAlphaWealthFile(filepath.Join(dataRoot, "alpha_wealth.json"))
		if st, err := wealth.Spend(policy.AlphaInvesting); err == nil {
			fdrCfg.Alpha = decision.EffectiveAlpha(policy.FDR.Alpha, policy.AlphaInvesting.AlphaSpend, st.Wealth)
		} else {
			log.Warn("alpha-investing wealth update failed", zap.Error(err))
		}
	}

	res := decision.ApplyFDR(kills, fdrCfg)
	if policy.AlphaInvesting.Enabled && len(res.Rejected) > 0 {
		wealth := decision.OpenAlphaWealthFile(filepath.Join(dataRoot, "alpha_wealth.json"))
		for range res.Rejected {
			if _, err := wealth.Earn(policy.AlphaInvesting); err != nil {
				log.Warn("alpha-investing wealth credit failed", zap.Error(err))
				break
			}
		}
	}
	method := "bh"
	if fdrCfg.Method == decision.FDRMethodBY {
		method = "by"
	}
	metrics.FDRRejectedTotal.WithLabelValues(method).Add(float64(len(res.Rejected)))

	cleared := make(map[string]bool, len(res.Rejected))
	for _, id := range res.Rejected {
		cleared[id] = true
	}
	for _, k := range kills {
		if cleared[k.ID] {
			continue
		}
		pid64, _ := strconv.ParseUint(strings.TrimLeft(k.ID, "0"), 10, 32)
		idx, ok := planIdx[identity.PID(pid64)]
		if !ok {
			continue
		}
		plan.Actions[idx].Blocked = true
		plan.Actions[idx].PreChecks = append(plan.Actions[idx].PreChecks, safety.PreCheckResult{
			Name:   "fdr_control",
			Status: safety.PreCheckFail,
			Reason: fmt.Sprintf("e-value %.3f below %s threshold %.3f", k.EValue, method, res.Threshold),
		})
	}
}

// ── Outcome persistence ──────────────────────────────────────────────────────

type outcomeError struct {
	Code            string `json:"code"`
	Category        string `json:"category"`
	Recoverable     bool   `json:"recoverable"`
	SuggestedAction string `json:"suggested_action,omitempty"`
}

type actionOutcome struct {
	PID          identity.PID  `json:"pid"`
	Action       string        `json:"action"`
	Status       string        `json:"status"`
	Reason       string        `json:"reason,omitempty"`
	RedirectedTo *identity.PID `json:"redirected_to,omitempty"`
	Stages       []string      `json:"stages,omitempty"`
	Error        *outcomeError `json:"error,omitempty"`
}

func newOutcome(pa *session.PlanAction, res action.ExecutionResult) actionOutcome {
	out := actionOutcome{
		PID:          pa.Target.PID,
		Action:       pa.Action.String(),
		Status:       res.Status.String(),
		RedirectedTo: res.RedirectedTo,
	}
	for _, s := range res.Stages {
		out.Stages = append(out.Stages, s.Name)
	}
	if res.Err != nil {
		out.Reason = res.Err.Error()
	}
	switch res.Status {
	case action.StatusIdentityMismatch:
		out.Error = &outcomeError{Code: "identity_mismatch", Category: "identity", Recoverable: true, SuggestedAction: "refresh_scan"}
	case action.StatusVerificationFailed:
		out.Error = &outcomeError{Code: "verification_failed", Category: "policy", Recoverable: true, SuggestedAction: "refresh_scan"}
	case action.StatusBlockedByPrecheck:
		out.Error = &outcomeError{Code: "blocked_by_precheck", Category: "policy", Recoverable: false}
	case action.StatusFailed:
		hint := ""
		if res.Err != nil && strings.Contains(res.Err.Error(), "permission") {
			hint = "retry_with_sudo"
		}
		out.Error = &outcomeError{Code: "execution_failed", Category: "capability", Recoverable: true, SuggestedAction: hint}
	}
	return out
}

func writeOutcomes(layout session.Layout, outcomes []actionOutcome, log *zap.Logger) {
	doc := struct {
		SchemaVersion string          `json:"schema_version"`
		Outcomes      []actionOutcome `json:"outcomes"`
	}{SchemaVersion: "1", Outcomes: outcomes}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		log.Warn("outcomes marshal failed", zap.Error(err))
		return
	}
	path := filepath.Join(layout.Action, "outcomes.json")
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		log.Warn("outcomes write failed", zap.String("path", path), zap.Error(err))
	}
}

func codeForStatus(s action.Status) exitcode.Code {
	switch s {
	case action.StatusOK:
		return exitcode.ActionsOk
	case action.StatusBlockedByPrecheck:
		return exitcode.PolicyBlocked
	case action.StatusIdentityMismatch:
		return exitcode.IdentityError
	default:
		return exitcode.PartialFail
	}
}

// ── Environment plumbing ─────────────────────────────────────────────────────

// writeContextFiles persists context.json (the run's provenance: host,
// boot id, config snapshot) and capabilities.json next to the manifest.
func writeContextFiles(layout session.Layout, sid identity.SessionID, bootID string, snapshot config.ConfigSnapshot) error {
	hostname, _ := os.Hostname()
	ctxDoc := struct {
		SchemaVersion string                `json:"schema_version"`
		SessionID     identity.SessionID    `json:"session_id"`
		Hostname      string                `json:"hostname"`
		BootID        string                `json:"boot_id"`
		PID           int                   `json:"pid"`
		Config        config.ConfigSnapshot `json:"config"`
	}{"1", sid, hostname, bootID, os.Getpid(), snapshot}
	data, err := json.MarshalIndent(ctxDoc, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(layout.ContextPath, data, 0o600); err != nil {
		return err
	}

	capDoc := struct {
		SchemaVersion  string `json:"schema_version"`
		ProcessListing bool   `json:"process_listing"`
		CgroupV2       bool   `json:"cgroup_v2"`
		ProcessGroups  bool   `json:"process_groups"`
		GPU            bool   `json:"gpu"`
	}{"1", true, runtime.GOOS == "linux", runtime.GOOS != "windows", false}
	data, err = json.MarshalIndent(capDoc, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(layout.CapabilitiesPath, data, 0o600)
}

// readBootID returns a stable per-boot identifier for StartId
// construction: the kernel's boot UUID on Linux, otherwise a
// hostname-derived constant that is stable within one boot for the
// purposes of back-to-back scans.
func readBootID() string {
	if data, err := os.ReadFile("/proc/sys/kernel/random/boot_id"); err == nil {
		return strings.TrimSpace(string(data))
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown-boot"
	}
	return hostname
}

// buildLogger constructs a zap.Logger from PT_LOG (level) and
// PT_LOG_FORMAT ("json" or console).
func buildLogger(level, format string) (*zap.Logger, error) {
	if level == "" {
		level = "info"
	}
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid PT_LOG level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	return cfg.Build()
}
