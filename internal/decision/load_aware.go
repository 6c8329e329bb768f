package decision

// LoadSignals are the observed system signals load-aware scaling reads.
type LoadSignals struct {
	QueueLen            int
	Load1               *float64
	Cores               *uint32
	MemoryUsedFraction  *float64
	PSIAvg10            *float64
}

// LoadWeights weight each signal's contribution to the composite load
// score.
type LoadWeights struct {
	Queue  float64
	Load   float64
	Memory float64
	PSI    float64
}

// LoadMultipliers bound how far the load score can push each action
// tier's loss.
type LoadMultipliers struct {
	KeepMax        float64
	ReversibleMin  float64
	RiskyMax       float64
}

// LoadAwareConfig is the policy block controlling load-aware scaling.
// Disabled by default per spec.
type LoadAwareConfig struct {
	Enabled            bool
	QueueHigh          int
	LoadPerCoreHigh    float64
	MemoryUsedFractionHigh float64
	PSIAvg10High       float64
	Weights            LoadWeights
	Multipliers        LoadMultipliers
}

// DefaultLoadAwareConfig mirrors the original's defaults: disabled, with
// sane saturation points and multiplier bounds.
func DefaultLoadAwareConfig() LoadAwareConfig {
	return LoadAwareConfig{
		Enabled:                false,
		QueueHigh:              100,
		LoadPerCoreHigh:        2.0,
		MemoryUsedFractionHigh: 0.9,
		PSIAvg10High:           50.0,
		Weights:                LoadWeights{Queue: 1, Load: 1, Memory: 1, PSI: 1},
		Multipliers:             LoadMultipliers{KeepMax: 2.0, ReversibleMin: 0.5, RiskyMax: 3.0},
	}
}

// LoadAdjustment is the computed load score and per-tier multipliers.
type LoadAdjustment struct {
	LoadScore             float64
	KeepMultiplier        float64
	ReversibleMultiplier  float64
	RiskyMultiplier       float64
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// ComputeLoadAdjustment returns nil when disabled or when all configured
// weights are zero, matching the original's early-return contract.
func ComputeLoadAdjustment(cfg LoadAwareConfig, signals LoadSignals) *LoadAdjustment {
	if !cfg.Enabled {
		return nil
	}

	queueScore := 0.0
	if cfg.QueueHigh > 0 {
		queueScore = minF(float64(signals.QueueLen)/float64(cfg.QueueHigh), 1.0)
	}

	loadScoreRaw := 0.0
	if signals.Load1 != nil && signals.Cores != nil && *signals.Cores > 0 && cfg.LoadPerCoreHigh > 0 {
		loadScoreRaw = minF(*signals.Load1/(float64(*signals.Cores)*cfg.LoadPerCoreHigh), 1.0)
	}

	memoryScore := 0.0
	if signals.MemoryUsedFraction != nil && cfg.MemoryUsedFractionHigh > 0 {
		memoryScore = minF(*signals.MemoryUsedFraction/cfg.MemoryUsedFractionHigh, 1.0)
	}

	psiScore := 0.0
	if signals.PSIAvg10 != nil && cfg.PSIAvg10High > 0 {
		psiScore = minF(*signals.PSIAvg10/cfg.PSIAvg10High, 1.0)
	}

	weightSum := cfg.Weights.Queue + cfg.Weights.Load + cfg.Weights.Memory + cfg.Weights.PSI
	if weightSum <= 0 {
		return nil
	}

	loadScore := (cfg.Weights.Queue*queueScore +
		cfg.Weights.Load*loadScoreRaw +
		cfg.Weights.Memory*memoryScore +
		cfg.Weights.PSI*psiScore) / weightSum

	keepMul := 1.0 + loadScore*maxF(cfg.Multipliers.KeepMax-1.0, 0.0)
	reversibleMul := 1.0 - loadScore*maxF(1.0-cfg.Multipliers.ReversibleMin, 0.0)
	riskyMul := 1.0 + loadScore*maxF(cfg.Multipliers.RiskyMax-1.0, 0.0)

	return &LoadAdjustment{
		LoadScore:            loadScore,
		KeepMultiplier:       keepMul,
		ReversibleMultiplier: reversibleMul,
		RiskyMultiplier:      riskyMul,
	}
}

// ApplyLoadToLossMatrix multiplies Keep by keep_multiplier, reversible
// actions by reversible_multiplier, and risky actions (Kill/Restart) by
// risky_multiplier, in every row.
func ApplyLoadToLossMatrix(loss LossMatrix, adj LoadAdjustment) LossMatrix {
	return loss.Map(func(row LossRow) LossRow {
		return applyLoadToRow(row, adj)
	})
}

func applyLoadToRow(row LossRow, adj LoadAdjustment) LossRow {
	scale := func(p *float64, mul float64) *float64 {
		if p == nil {
			return nil
		}
		v := *p * mul
		return &v
	}
	return LossRow{
		Keep:       row.Keep * adj.KeepMultiplier,
		Renice:     scale(row.Renice, adj.ReversibleMultiplier),
		Pause:      scale(row.Pause, adj.ReversibleMultiplier),
		Throttle:   scale(row.Throttle, adj.ReversibleMultiplier),
		Freeze:     scale(row.Freeze, adj.ReversibleMultiplier),
		Quarantine: scale(row.Quarantine, adj.ReversibleMultiplier),
		Restart:    scale(row.Restart, adj.RiskyMultiplier),
		Kill:       row.Kill * adj.RiskyMultiplier,
	}
}
